package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	berrors "git.home.luguber.info/inful/ptxbuilder/internal/errors"
	"git.home.luguber.info/inful/ptxbuilder/internal/executable"
	"git.home.luguber.info/inful/ptxbuilder/internal/namingslot"
)

const sampleManifest = `[package]
name = "sample-ptx_crate"
version = "0.1.0"

[dependencies]

[[example]]
name = %q
path = "src/%s"
`

func manifestFor(example, entry string) string {
	return fmt.Sprintf(sampleManifest, example, entry)
}

// fixtureCrate lays out <workspace>/Cargo.lock and <workspace>/crate/ with the
// given source files and returns the crate directory.
func fixtureCrate(t *testing.T, files ...string) string {
	t.Helper()
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "Cargo.lock"), []byte("version = 3\n"), 0o600))

	crate := filepath.Join(workspace, "crate")
	entry := "lib.rs"
	if !contains(files, "src/lib.rs") {
		entry = "main.rs"
	}
	require.NoError(t, os.MkdirAll(filepath.Join(crate, "src"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(crate, "Cargo.toml"),
		[]byte(manifestFor("sample-ptx_crate-ptx-builder", entry)), 0o600))
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(crate, f), []byte("// "+f+"\n"), 0o600))
	}
	return crate
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func newTestBuilder(t *testing.T, crate string, fake *fakeToolchain) *Builder {
	t.Helper()
	b, err := New(crate, WithRunner(fake), WithOutputRoot(t.TempDir()))
	require.NoError(t, err)
	return b
}

func readManifest(t *testing.T, crate string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(crate, "Cargo.toml"))
	require.NoError(t, err)
	return string(data)
}

func TestBuild_Library(t *testing.T) {
	crate := fixtureCrate(t, "src/lib.rs")
	before := readManifest(t, crate)
	fake := newFakeToolchain()

	var patched string
	fake.onCompile = func(executable.Command) { patched = readManifest(t, crate) }

	b := newTestBuilder(t, crate, fake)
	assert.Equal(t, "sample-ptx_crate", b.CrateName())

	status, err := b.Build(context.Background(), TopLevel)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, status.Kind)

	out := status.Output
	assert.Equal(t, CrateTypeLibrary, out.CrateType())
	assert.Equal(t, filepath.Join(out.OutputDir(), "nvptx64-nvidia-cuda", "release", "examples", "sample_ptx_crate_.ptx"),
		out.AssemblyPath())
	assert.FileExists(t, out.AssemblyPath())

	assert.Equal(t, manifestFor("sample-ptx_crate-", "lib.rs"), patched)
	assert.Equal(t, before, readManifest(t, crate))

	calls := fake.cargoCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{
		"rustc", "--release", "--color", "always", "--message-format=human",
		"--target", "nvptx64-nvidia-cuda", "--example", "sample-ptx_crate-", "-v",
		"--", "--crate-type", "cdylib",
	}, calls[0].Args)
	assert.Equal(t, b.Crate().Path(), calls[0].Dir)
	assert.Equal(t, map[string]string{
		"PTX_CRATE_BUILDING": "1",
		"CARGO_TARGET_DIR":   out.OutputDir(),
	}, calls[0].Env)
}

func TestBuild_TwiceIsIdempotent(t *testing.T) {
	crate := fixtureCrate(t, "src/lib.rs")
	before := readManifest(t, crate)
	fake := newFakeToolchain()
	b := newTestBuilder(t, crate, fake)

	first, err := b.Build(context.Background(), TopLevel)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), TopLevel)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, second.Kind)
	assert.Equal(t, first.Output.AssemblyPath(), second.Output.AssemblyPath())
	assert.Len(t, fake.cargoCalls(), 2)
	assert.Equal(t, before, readManifest(t, crate))
}

func TestBuild_ProfileSegment(t *testing.T) {
	crate := fixtureCrate(t, "src/lib.rs")
	fake := newFakeToolchain()
	b := newTestBuilder(t, crate, fake)

	for _, tt := range []struct {
		profile Profile
		segment string
	}{
		{ProfileDebug, "debug"},
		{ProfileRelease, "release"},
	} {
		status, err := b.WithProfile(tt.profile).Build(context.Background(), TopLevel)
		require.NoError(t, err)
		rel, err := filepath.Rel(status.Output.OutputDir(), status.Output.AssemblyPath())
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("nvptx64-nvidia-cuda", tt.segment, "examples", "sample_ptx_crate_.ptx"), rel)
	}
	assert.Equal(t, ProfileRelease, b.Config().Profile(), "WithProfile must not modify the receiver")
}

func TestBuild_MixedCrateNeedsCrateType(t *testing.T) {
	crate := fixtureCrate(t, "src/lib.rs", "src/main.rs")
	before := readManifest(t, crate)
	fake := newFakeToolchain()
	b := newTestBuilder(t, crate, fake)

	_, err := b.Build(context.Background(), TopLevel)
	require.Error(t, err)
	assert.True(t, berrors.IsKind(err, berrors.KindMissingCrateType))
	assert.Zero(t, fake.callCount(), "no subprocess may run")
	assert.Equal(t, before, readManifest(t, crate))
}

func TestBuild_MixedCrateAsBinary(t *testing.T) {
	crate := fixtureCrate(t, "src/lib.rs", "src/main.rs")
	fake := newFakeToolchain()
	b := newTestBuilder(t, crate, fake).WithCrateType(CrateTypeBinary).WithPrefix("bin-kernel")

	status, err := b.Build(context.Background(), TopLevel)
	require.NoError(t, err)
	assert.Equal(t, CrateTypeBinary, status.Output.CrateType())
	assert.Equal(t, "sample-ptx_crate-bin-kernel.ptx", filepath.Base(status.Output.AssemblyPath()))
	assert.FileExists(t, status.Output.AssemblyPath())

	calls := fake.cargoCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "bin", argAfter(calls[0].Args, "--crate-type"))
	assert.Equal(t, "sample-ptx_crate-bin-kernel", argAfter(calls[0].Args, "--example"))
}

func TestBuild_LibraryPrefixWithHyphens(t *testing.T) {
	crate := fixtureCrate(t, "src/lib.rs")
	b := newTestBuilder(t, crate, newFakeToolchain()).WithPrefix("fast-math")

	status, err := b.Build(context.Background(), TopLevel)
	require.NoError(t, err)
	assert.Equal(t, "sample_ptx_crate_fast_math.ptx", filepath.Base(status.Output.AssemblyPath()))
	assert.FileExists(t, status.Output.AssemblyPath())
}

func TestBuild_NestedIsNotNeeded(t *testing.T) {
	crate := fixtureCrate(t, "src/lib.rs")
	before := readManifest(t, crate)
	fake := newFakeToolchain()
	b := newTestBuilder(t, crate, fake)

	status, err := b.Build(context.Background(), Nested)
	require.NoError(t, err)
	assert.Equal(t, StatusNotNeeded, status.Kind)
	assert.Nil(t, status.Output)
	assert.Zero(t, fake.callCount())
	assert.Equal(t, before, readManifest(t, crate))
	assert.NoFileExists(t, filepath.Join(b.Crate().OutputDir(), namingslot.LockFileName))
}

func TestBuild_Dependencies(t *testing.T) {
	crate := fixtureCrate(t, "src/lib.rs", "src/mod1.rs", "src/mod2.rs")
	fake := newFakeToolchain()
	fake.deps = []string{"src/lib.rs", "src/mod1.rs", "src/mod2.rs"}
	b := newTestBuilder(t, crate, fake)

	status, err := b.Build(context.Background(), TopLevel)
	require.NoError(t, err)

	deps, err := status.Output.Dependencies()
	require.NoError(t, err)

	root := b.Crate().Path()
	assert.Equal(t, []string{
		filepath.Join(root, "src", "lib.rs"),
		filepath.Join(root, "src", "mod1.rs"),
		filepath.Join(root, "src", "mod2.rs"),
		filepath.Join(root, "Cargo.toml"),
		filepath.Join(filepath.Dir(root), "Cargo.lock"),
	}, deps)
}

func TestBuild_DependenciesErrors(t *testing.T) {
	crate := fixtureCrate(t, "src/lib.rs")
	b := newTestBuilder(t, crate, newFakeToolchain())
	status, err := b.Build(context.Background(), TopLevel)
	require.NoError(t, err)

	t.Run("empty dep-info", func(t *testing.T) {
		require.NoError(t, os.WriteFile(status.Output.DepInfoPath(), nil, 0o600))
		_, err := status.Output.Dependencies()
		assert.True(t, berrors.IsKind(err, berrors.KindInternal))
	})

	t.Run("missing dep-info", func(t *testing.T) {
		require.NoError(t, os.Remove(status.Output.DepInfoPath()))
		_, err := status.Output.Dependencies()
		assert.True(t, berrors.IsKind(err, berrors.KindInternal))
	})
}

var faultyStderr = []string{
	"   Compiling faulty-ptx_crate v0.1.0 (path)",
	"     Running `rustc --crate-name faulty_ptx_crate --edition=2018 src/lib.rs`",
	"error[E0425]: cannot find function `external_fn` in this scope",
	" --> src/lib.rs:7:20",
	"  |",
	"7 |     *y.offset(0) = external_fn(*x.offset(0)) * a;",
	"  |                    ^^^^^^^^^^^ not found in this scope",
	"",
	"For more information about this error, try `rustc --explain E0425`.",
	"error: could not compile `faulty-ptx_crate` (lib) due to 1 previous error",
	"",
	"Caused by:",
	"  process didn't exit successfully: `rustc --crate-name faulty_ptx_crate` (exit status: 1)",
}

var faultyDiagnostics = []string{
	"   Compiling faulty-ptx_crate v0.1.0 (path)",
	"error[E0425]: cannot find function `external_fn` in this scope",
	" --> src/lib.rs:7:20",
	"  |",
	"7 |     *y.offset(0) = external_fn(*x.offset(0)) * a;",
	"  |                    ^^^^^^^^^^^ not found in this scope",
	"",
	"For more information about this error, try `rustc --explain E0425`.",
	"error: could not compile `faulty-ptx_crate` (lib) due to 1 previous error",
	"",
}

func TestBuild_FaultyCrate(t *testing.T) {
	crate := fixtureCrate(t, "src/lib.rs")
	before := readManifest(t, crate)
	fake := newFakeToolchain()
	fake.stderr = faultyStderr
	fake.exitCode = 101
	b := newTestBuilder(t, crate, fake).DisableColors()

	var live []string
	_, err := b.BuildLive(context.Background(), TopLevel, nil, func(line string) { live = append(live, line) })
	require.Error(t, err)
	assert.Equal(t, berrors.KindBuildFailed, berrors.KindOf(err))
	assert.Equal(t, faultyDiagnostics, berrors.DiagnosticsOf(err))
	assert.Equal(t, faultyDiagnostics, live)
	assert.Equal(t, before, readManifest(t, crate))
	assert.Equal(t, "never", argAfter(fake.cargoCalls()[0].Args, "--color"))
}

func TestBuild_FailedCompileAndLostManifest(t *testing.T) {
	crate := fixtureCrate(t, "src/lib.rs")
	fake := newFakeToolchain()
	fake.stderr = faultyStderr
	fake.exitCode = 101
	fake.onCompile = func(executable.Command) {
		require.NoError(t, os.Remove(filepath.Join(crate, "Cargo.toml")))
	}
	b := newTestBuilder(t, crate, fake).DisableColors()

	_, err := b.Build(context.Background(), TopLevel)
	require.Error(t, err)
	assert.True(t, berrors.IsKind(err, berrors.KindBuildFailed))
	assert.True(t, berrors.IsKind(err, berrors.KindManifestIOFailed))
	assert.Equal(t, berrors.KindManifestIOFailed, berrors.KindOf(err))
	assert.Equal(t, faultyDiagnostics, berrors.DiagnosticsOf(err))
}

func TestBuild_StdoutIsStreamed(t *testing.T) {
	crate := fixtureCrate(t, "src/lib.rs")
	fake := newFakeToolchain()
	fake.stdout = []string{`{"reason":"compiler-artifact"}`, `{"reason":"build-finished","success":true}`}
	b := newTestBuilder(t, crate, fake).WithMessageFormat(MessageFormatJSON(true, false, false))

	var live []string
	_, err := b.BuildLive(context.Background(), TopLevel, func(line string) { live = append(live, line) }, nil)
	require.NoError(t, err)
	assert.Equal(t, fake.stdout, live)
	assert.Contains(t, fake.cargoCalls()[0].Args, "--message-format=json,json-render-diagnostics")
}

func TestBuild_LinkerProblems(t *testing.T) {
	tests := []struct {
		name string
		set  func(f *fakeToolchain)
		kind berrors.Kind
	}{
		{"missing", func(f *fakeToolchain) {
			f.linkerErr = berrors.CommandNotFound("ptx-linker", executable.Linker.Hint)
		}, berrors.KindToolUnavailable},
		{"too old", func(f *fakeToolchain) { f.linkerOutput = "ptx-linker 0.8.0\n" }, berrors.KindCommandVersionNotFulfilled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crate := fixtureCrate(t, "src/lib.rs")
			before := readManifest(t, crate)
			fake := newFakeToolchain()
			tt.set(fake)

			_, err := newTestBuilder(t, crate, fake).Build(context.Background(), TopLevel)
			require.Error(t, err)
			assert.Equal(t, tt.kind, berrors.KindOf(err))
			assert.Empty(t, fake.cargoCalls())
			assert.Equal(t, before, readManifest(t, crate))
		})
	}
}

func TestBuild_MissingArtifact(t *testing.T) {
	crate := fixtureCrate(t, "src/lib.rs")
	before := readManifest(t, crate)
	fake := newFakeToolchain()
	fake.noArtifact = true

	_, err := newTestBuilder(t, crate, fake).Build(context.Background(), TopLevel)
	require.Error(t, err)
	assert.True(t, berrors.IsKind(err, berrors.KindInternal))
	assert.Equal(t, before, readManifest(t, crate))
}

func TestBuild_ConcurrentBuildersShareSlot(t *testing.T) {
	crate := fixtureCrate(t, "src/lib.rs")
	before := readManifest(t, crate)
	outputRoot := t.TempDir()

	var (
		mu       sync.Mutex
		problems []string
	)
	fake := newFakeToolchain()
	fake.onCompile = func(cmd executable.Command) {
		data, err := os.ReadFile(filepath.Join(cmd.Dir, "Cargo.toml"))
		example := argAfter(cmd.Args, "--example")
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			problems = append(problems, err.Error())
			return
		}
		if string(data) != manifestFor(example, "lib.rs") {
			problems = append(problems, fmt.Sprintf("%s compiled against:\n%s", example, data))
		}
	}

	base, err := New(crate, WithRunner(fake), WithOutputRoot(outputRoot))
	require.NoError(t, err)

	prefixes := []string{"alpha", "beta", "gamma", "delta"}
	var wg sync.WaitGroup
	errs := make([]error, len(prefixes))
	for i, prefix := range prefixes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = base.WithPrefix(prefix).Build(context.Background(), TopLevel)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Empty(t, strings.Join(problems, "\n"))
	assert.Len(t, fake.cargoCalls(), len(prefixes))
	assert.Equal(t, before, readManifest(t, crate))
}

func TestNew_InvalidCrate(t *testing.T) {
	_, err := New(t.TempDir(), WithRunner(newFakeToolchain()))
	require.Error(t, err)
	assert.Equal(t, berrors.KindAnalysisFailed, berrors.KindOf(err))
	assert.True(t, berrors.IsKind(err, berrors.KindInvalidCratePath))
}
