package commands

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/ptxbuilder/internal/builder"
	berrors "git.home.luguber.info/inful/ptxbuilder/internal/errors"
	"git.home.luguber.info/inful/ptxbuilder/internal/executable"
	"git.home.luguber.info/inful/ptxbuilder/internal/logfields"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	CrateFlags `embed:""`

	Quiet bool `short:"q" help:"Do not stream cargo output; diagnostics are still printed on failure"`

	extra []builder.Option
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	s, err := openSession(root, b.CrateFlags, b.extra...)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	var onStdout, onStderr executable.LineFunc
	if !b.Quiet {
		onStdout = func(line string) { _, _ = fmt.Fprintln(g.Stdout, line) }
		onStderr = func(line string) { _, _ = fmt.Fprintln(g.Stderr, line) }
	}

	status, err := s.build(g.Context, "cli", onStdout, onStderr)
	if err != nil {
		if !b.Quiet {
			// Diagnostics were already streamed.
			return berrors.StripDiagnostics(err)
		}
		return err
	}

	if status.Kind == builder.StatusNotNeeded {
		slog.Info("Nested build, nothing to do", logfields.Crate(s.builder.CrateName()))
		return nil
	}

	slog.Info("PTX assembly ready",
		logfields.Crate(s.builder.CrateName()),
		logfields.Path(status.Output.AssemblyPath()))
	_, _ = fmt.Fprintln(g.Stdout, status.Output.AssemblyPath())
	return nil
}
