package commands

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/ptxbuilder/internal/builder"
	berrors "git.home.luguber.info/inful/ptxbuilder/internal/errors"
	"git.home.luguber.info/inful/ptxbuilder/internal/executable"
	"git.home.luguber.info/inful/ptxbuilder/internal/source"
)

// CheckCmd implements the 'check' command.
type CheckCmd struct {
	CrateFlags `embed:""`

	runner executable.Runner
}

func (c *CheckCmd) Run(g *Global, root *CLI) error {
	runner := c.runner
	if runner == nil {
		runner = executable.NewExec(slog.Default())
	}

	for _, tool := range []executable.Tool{executable.Cargo, executable.Linker} {
		v, err := executable.CheckVersion(g.Context, runner, tool)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(g.Stdout, "%-12s %s\n", tool.Name+":", v)
	}

	s, err := openSession(root, c.CrateFlags, builder.WithRunner(runner))
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	crate := s.builder.Crate()
	rows := [][2]string{
		{"crate", crate.Name()},
		{"path", crate.Path()},
		{"targets", crate.Scanned().String()},
		{"example", crate.CanonicalEntryName()},
		{"invocation", s.builder.InvocationName()},
		{"output dir", crate.OutputDir()},
		{"config", s.builder.Config().String()},
	}
	for _, row := range rows {
		_, _ = fmt.Fprintf(g.Stdout, "%-12s %s\n", row[0]+":", row[1])
	}

	if crate.Scanned() == source.ScannedMixed && s.builder.Config().CrateType() == builder.CrateTypeAuto {
		return berrors.MissingCrateType().WithContext("hint", "pass --crate-type lib or --crate-type bin")
	}
	return nil
}
