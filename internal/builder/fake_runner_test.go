package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	berrors "git.home.luguber.info/inful/ptxbuilder/internal/errors"
	"git.home.luguber.info/inful/ptxbuilder/internal/executable"
)

// fakeToolchain stands in for cargo and ptx-linker. A successful cargo run
// writes the assembly and dep-info files where cargo would, spelling the
// file name the way rustc does.
type fakeToolchain struct {
	mu sync.Mutex

	linkerOutput string
	linkerErr    error

	stdout     []string
	stderr     []string
	exitCode   int
	noArtifact bool
	// deps are paths relative to the crate directory listed in the dep-info file.
	deps []string
	// onCompile runs while cargo "compiles", with the manifest patched.
	onCompile func(cmd executable.Command)

	calls []executable.Command
}

func newFakeToolchain() *fakeToolchain {
	return &fakeToolchain{
		linkerOutput: "ptx-linker 0.9.1\n",
		deps:         []string{"src/lib.rs"},
	}
}

func (f *fakeToolchain) RunLive(_ context.Context, cmd executable.Command, onStdout, onStderr executable.LineFunc) (*executable.Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if cmd.Program == executable.Linker.Name {
		if f.linkerErr != nil {
			return nil, f.linkerErr
		}
		return &executable.Output{Stdout: f.linkerOutput}, nil
	}

	if f.onCompile != nil {
		f.onCompile(cmd)
	}

	out := &executable.Output{ExitCode: f.exitCode}
	for _, line := range f.stdout {
		out.Stdout += line + "\n"
		if onStdout != nil {
			onStdout(line)
		}
	}
	for _, line := range f.stderr {
		out.Stderr += line + "\n"
		if onStderr != nil {
			onStderr(line)
		}
	}
	if f.exitCode != 0 {
		return out, berrors.CommandFailed(cmd.String(), f.exitCode, out.Stdout, out.Stderr)
	}
	if f.noArtifact {
		return out, nil
	}
	return out, f.writeArtifacts(cmd)
}

func (f *fakeToolchain) writeArtifacts(cmd executable.Command) error {
	profile := "debug"
	if slices.Contains(cmd.Args, "--release") {
		profile = "release"
	}
	example := argAfter(cmd.Args, "--example")
	name := example
	if argAfter(cmd.Args, "--crate-type") == "cdylib" {
		name = strings.ReplaceAll(example, "-", "_")
	}

	dir := filepath.Join(cmd.Env["CARGO_TARGET_DIR"], TargetName, profile, "examples")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	artifact := filepath.Join(dir, name+".ptx")
	if err := os.WriteFile(artifact, []byte("// ptx\n"), 0o600); err != nil {
		return err
	}

	deps := make([]string, 0, len(f.deps))
	for _, d := range f.deps {
		deps = append(deps, filepath.Join(cmd.Dir, d))
	}
	depInfo := fmt.Sprintf("%s: %s\n", artifact, strings.Join(deps, " "))
	return os.WriteFile(filepath.Join(dir, name+".d"), []byte(depInfo), 0o600)
}

func (f *fakeToolchain) cargoCalls() []executable.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []executable.Command
	for _, c := range f.calls {
		if c.Program == executable.Cargo.Name {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeToolchain) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
