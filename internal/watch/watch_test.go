package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

// runWatcher starts w in the background and stops it at test cleanup.
func runWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
}

func TestWatcher_RebuildsOnDependencyChange(t *testing.T) {
	dir := tempDir(t)
	dep := filepath.Join(dir, "lib.rs")
	require.NoError(t, os.WriteFile(dep, []byte("v0"), 0o600))

	var builds atomic.Int32
	w := New(func(context.Context) ([]string, error) {
		builds.Add(1)
		return []string{dep}, nil
	}, WithDebounce(20*time.Millisecond))
	runWatcher(t, w)

	require.Eventually(t, func() bool { return builds.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	edit := 0
	require.Eventually(t, func() bool {
		edit++
		_ = os.WriteFile(dep, []byte(fmt.Sprintf("v%d", edit)), 0o600)
		return builds.Load() >= 2
	}, 5*time.Second, 100*time.Millisecond)
}

func TestWatcher_IgnoresWritesWithoutContentChange(t *testing.T) {
	dir := tempDir(t)
	manifest := filepath.Join(dir, "Cargo.toml")
	original := []byte(`name = "kernel-ptx-builder"`)
	require.NoError(t, os.WriteFile(manifest, original, 0o600))

	var builds atomic.Int32
	w := New(func(context.Context) ([]string, error) {
		builds.Add(1)
		// Patch and restore, as a build does.
		_ = os.WriteFile(manifest, []byte(`name = "kernel-x"`), 0o600)
		_ = os.WriteFile(manifest, original, 0o600)
		return []string{manifest}, nil
	}, WithDebounce(20*time.Millisecond))
	runWatcher(t, w)

	require.Eventually(t, func() bool { return builds.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)
	// Let the watch set settle, then rewrite identical content.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(manifest, original, 0o600))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), builds.Load())
}

func TestWatcher_RootsCoverFailedFirstBuild(t *testing.T) {
	dir := tempDir(t)
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0o750))

	var builds atomic.Int32
	w := New(func(context.Context) ([]string, error) {
		builds.Add(1)
		return nil, fmt.Errorf("does not compile")
	}, WithDebounce(20*time.Millisecond), WithRoots(src))
	runWatcher(t, w)

	require.Eventually(t, func() bool { return builds.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	edit := 0
	require.Eventually(t, func() bool {
		edit++
		_ = os.WriteFile(filepath.Join(src, "lib.rs"), []byte(fmt.Sprintf("fix %d", edit)), 0o600)
		return builds.Load() >= 2
	}, 5*time.Second, 100*time.Millisecond)
}

func TestWatcher_ClosedEventsStopRunningBuild(t *testing.T) {
	fsw, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	t.Cleanup(func() { _ = fsw.Close() })

	started := make(chan struct{})
	var canceled atomic.Bool
	w := New(func(ctx context.Context) ([]string, error) {
		close(started)
		<-ctx.Done()
		canceled.Store(true)
		return nil, ctx.Err()
	})

	events := make(chan fsnotify.Event)
	set := &watchSet{files: map[string]struct{}{}, depDirs: map[string]struct{}{}, rootDirs: map[string]struct{}{}}
	done := make(chan error, 1)
	go func() { done <- w.loop(context.Background(), fsw, events, make(chan error), set) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first build did not start")
	}
	close(events)

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.True(t, canceled.Load())
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not return after the event channel closed")
	}
}

func TestDebouncer_Coalesces(t *testing.T) {
	ch := make(chan struct{}, 1)
	trigger, stop := newDebouncer(30*time.Millisecond, ch)
	defer stop()

	for range 5 {
		trigger()
	}
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no request after debounce")
	}
	select {
	case <-ch:
		t.Fatal("burst produced more than one request")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncer_Stop(t *testing.T) {
	ch := make(chan struct{}, 1)
	trigger, stop := newDebouncer(50*time.Millisecond, ch)
	trigger()
	stop()
	select {
	case <-ch:
		t.Fatal("stopped debouncer fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestChangeTracker(t *testing.T) {
	dir := tempDir(t)
	file := filepath.Join(dir, "a.rs")
	require.NoError(t, os.WriteFile(file, []byte("one"), 0o600))

	c := newChangeTracker()
	assert.True(t, c.changed([]string{file}), "unknown paths count as changed")

	c.record([]string{file})
	assert.False(t, c.changed([]string{file}))

	require.NoError(t, os.WriteFile(file, []byte("two"), 0o600))
	assert.True(t, c.changed([]string{file}))

	require.NoError(t, os.Remove(file))
	c.record([]string{file})
	assert.False(t, c.changed([]string{file}))

	c.note(file)
	c.note(file)
	assert.Equal(t, []string{file}, c.take())
	assert.Empty(t, c.take())
}

func TestShouldIgnore(t *testing.T) {
	for path, want := range map[string]bool{
		"/src/lib.rs":       false,
		"/src/.lib.rs.swp":  true,
		"/src/lib.rs~":      true,
		"/src/#lib.rs#":     true,
		"/src/.git":         true,
		"/crate/Cargo.toml": false,
	} {
		assert.Equal(t, want, shouldIgnore(path), path)
	}
}
