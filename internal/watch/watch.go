// Package watch rebuilds a crate whenever one of its dependencies changes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/ptxbuilder/internal/logfields"
)

// DefaultDebounce is the quiet period before a rebuild starts.
const DefaultDebounce = 300 * time.Millisecond

// BuildFunc runs one build and returns the files it depends on. On failure it
// may return nil dependencies; the previous set stays watched.
type BuildFunc func(ctx context.Context) ([]string, error)

// Watcher runs BuildFunc once and again after every change.
type Watcher struct {
	build    BuildFunc
	debounce time.Duration
	roots    []string
	logger   *slog.Logger
}

// Option customises a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a rebuild; non-positive values are ignored.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithRoots adds directories that are watched recursively regardless of the
// dependency set, so that a crate whose first build fails is still watched.
func WithRoots(dirs ...string) Option {
	return func(w *Watcher) { w.roots = append(w.roots, dirs...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a Watcher.
func New(build BuildFunc, opts ...Option) *Watcher {
	w := &Watcher{build: build, debounce: DefaultDebounce, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// watchSet tracks what the fsnotify watcher currently observes.
type watchSet struct {
	files    map[string]struct{}
	depDirs  map[string]struct{}
	rootDirs map[string]struct{}
	roots    []string
}

// Run builds immediately and then after each debounced change until ctx is
// done. Builds never overlap; changes during a build cause one more build.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	set := &watchSet{
		files:    map[string]struct{}{},
		depDirs:  map[string]struct{}{},
		rootDirs: map[string]struct{}{},
	}
	for _, root := range w.roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolve watch root: %w", err)
		}
		set.roots = append(set.roots, abs)
		w.addDirsRecursive(fsw, abs, set)
	}

	return w.loop(ctx, fsw, fsw.Events, fsw.Errors, set)
}

// loop feeds events to the build worker until ctx is done or either event
// channel closes. The worker has stopped when loop returns.
func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, events <-chan fsnotify.Event, errs <-chan error, set *watchSet) error {
	ctx, cancel := context.WithCancel(ctx)

	rebuildReq := make(chan struct{}, 1)
	trigger, stop := newDebouncer(w.debounce, rebuildReq)
	defer stop()
	rebuildReq <- struct{}{}

	tracker := newChangeTracker()
	depsCh := make(chan []string, 1)
	workerDone := make(chan struct{})
	go w.worker(ctx, rebuildReq, tracker, depsCh, workerDone)
	defer func() {
		cancel()
		<-workerDone
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case deps := <-depsCh:
			w.updateDeps(fsw, deps, set)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if w.handleEvent(fsw, ev, set) {
				tracker.note(filepath.Clean(ev.Name))
				trigger()
			}
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", logfields.Error(err))
		}
	}
}

// worker serialises builds. rebuildReq holds at most one pending request,
// which coalesces every change seen while a build runs.
func (w *Watcher) worker(ctx context.Context, rebuildReq <-chan struct{}, tracker *changeTracker, depsCh chan<- []string, done chan<- struct{}) {
	defer close(done)
	first := true
	var lastDeps []string
	for {
		select {
		case <-ctx.Done():
			return
		case <-rebuildReq:
			paths := tracker.take()
			if !first && !tracker.changed(paths) {
				w.logger.Debug("Change without content difference, not rebuilding", logfields.Count(len(paths)))
				continue
			}
			first = false

			deps, err := w.build(ctx)
			if err != nil {
				w.logger.Debug("Build in watch mode failed", logfields.Error(err))
			}
			if deps != nil {
				lastDeps = deps
			}
			tracker.record(absPaths(lastDeps))
			tracker.record(paths)
			if deps == nil {
				continue
			}
			select {
			case depsCh <- deps:
			case <-ctx.Done():
				return
			}
		}
	}
}

func absPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			out = append(out, abs)
		}
	}
	return out
}

// handleEvent reports whether ev concerns a watched file.
func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event, set *watchSet) bool {
	name := filepath.Clean(ev.Name)
	if shouldIgnore(name) {
		return false
	}

	_, isDep := set.files[name]
	underRoot := set.underRoot(name)
	if !isDep && !underRoot {
		return false
	}
	if underRoot && ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(name); err == nil && fi.IsDir() {
			w.addDirsRecursive(fsw, name, set)
		}
	}
	w.logger.Debug("File change detected", logfields.Path(name), slog.String("op", ev.Op.String()))
	return true
}

// updateDeps replaces the watched dependency files. Directories are watched
// rather than files so that editors replacing a file by rename are noticed.
func (w *Watcher) updateDeps(fsw *fsnotify.Watcher, deps []string, set *watchSet) {
	files := make(map[string]struct{}, len(deps))
	dirs := make(map[string]struct{})
	for _, d := range deps {
		abs, err := filepath.Abs(d)
		if err != nil {
			continue
		}
		files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	for dir := range dirs {
		if _, ok := set.depDirs[dir]; ok {
			continue
		}
		if _, ok := set.rootDirs[dir]; ok {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("Watch add failed", logfields.Path(dir), logfields.Error(err))
		}
	}
	for dir := range set.depDirs {
		if _, keep := dirs[dir]; keep {
			continue
		}
		if _, ok := set.rootDirs[dir]; ok {
			continue
		}
		_ = fsw.Remove(dir)
	}

	set.files = files
	set.depDirs = dirs
	w.logger.Debug("Watching dependencies", logfields.Count(len(files)))
}

func (w *Watcher) addDirsRecursive(fsw *fsnotify.Watcher, root string, set *watchSet) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && shouldIgnore(path) {
				return filepath.SkipDir
			}
			if err := fsw.Add(path); err != nil {
				w.logger.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
				return nil
			}
			set.rootDirs[path] = struct{}{}
		}
		return nil
	})
}

func (s *watchSet) underRoot(path string) bool {
	for _, root := range s.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// shouldIgnore skips hidden entries, editor swap and backup files.
func shouldIgnore(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") ||
		strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#")
}

// newDebouncer returns a trigger that sends to ch once no trigger happened for
// d, and a stop function cancelling any pending send.
func newDebouncer(d time.Duration, ch chan<- struct{}) (trigger, stop func()) {
	var mu sync.Mutex
	var timer *time.Timer

	trigger = func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(d, func() {
			select {
			case ch <- struct{}{}:
			default:
			}
		})
	}
	stop = func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	}
	return trigger, stop
}
