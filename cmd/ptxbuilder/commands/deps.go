package commands

import (
	"fmt"

	"git.home.luguber.info/inful/ptxbuilder/internal/builder"
	"git.home.luguber.info/inful/ptxbuilder/internal/executable"
)

// DepsCmd implements the 'deps' command, meant to be called from a build.rs
// script: cargo output goes to stderr and stdout only carries directives.
type DepsCmd struct {
	CrateFlags `embed:""`

	EnvVar string `name:"env-var" help:"Environment variable that receives the assembly path" default:"KERNEL_PTX_PATH"`

	extra []builder.Option
}

func (d *DepsCmd) Run(g *Global, root *CLI) error {
	s, err := openSession(root, d.CrateFlags, d.extra...)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	toStderr := executable.LineFunc(func(line string) { _, _ = fmt.Fprintln(g.Stderr, line) })
	status, err := s.build(g.Context, "build-script", toStderr, toStderr)
	if err != nil {
		return err
	}

	if status.Kind == builder.StatusNotNeeded {
		// The outer build owns the artifact; the nested compile of this
		// crate only needs the variable to exist.
		_, _ = fmt.Fprintf(g.Stdout, "cargo:rustc-env=%s=/dev/null\n", d.EnvVar)
		return nil
	}

	deps, err := status.Output.Dependencies()
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(g.Stdout, "cargo:rustc-env=%s=%s\n", d.EnvVar, status.Output.AssemblyPath())
	for _, dep := range deps {
		_, _ = fmt.Fprintf(g.Stdout, "cargo:rerun-if-changed=%s\n", dep)
	}
	return nil
}
