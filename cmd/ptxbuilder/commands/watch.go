package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/ptxbuilder/internal/builder"
	berrors "git.home.luguber.info/inful/ptxbuilder/internal/errors"
	"git.home.luguber.info/inful/ptxbuilder/internal/logfields"
	"git.home.luguber.info/inful/ptxbuilder/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	CrateFlags `embed:""`

	Debounce time.Duration `help:"Quiet period before a rebuild (overrides watch.debounce)"`

	extra []builder.Option
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.Settings()
	if err != nil {
		return err
	}
	s, err := openSession(root, w.CrateFlags, w.extra...)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if s.nesting == builder.Nested {
		slog.Info("Nested build, not watching", logfields.Crate(s.builder.CrateName()))
		return nil
	}

	debounce := cfg.Watch.Debounce
	if w.Debounce > 0 {
		debounce = w.Debounce
	}

	adapter := berrors.NewCLIErrorAdapter(root.Verbose, slog.Default())
	onStdout := func(line string) { _, _ = fmt.Fprintln(g.Stdout, line) }
	onStderr := func(line string) { _, _ = fmt.Fprintln(g.Stderr, line) }

	rebuild := func(ctx context.Context) ([]string, error) {
		status, err := s.build(ctx, "watch", onStdout, onStderr)
		if err != nil {
			switch {
			case isCanceled(err):
			case berrors.KindOf(err) == berrors.KindBuildFailed:
				slog.Warn("Build failed, waiting for changes", logfields.Crate(s.builder.CrateName()))
			default:
				_, _ = fmt.Fprintln(g.Stderr, adapter.FormatError(berrors.StripDiagnostics(err)))
			}
			return nil, err
		}
		slog.Info("PTX assembly ready", logfields.Path(status.Output.AssemblyPath()))
		return status.Output.Dependencies()
	}

	crateDir := s.builder.Crate().Path()
	slog.Info("Watching crate", logfields.Crate(s.builder.CrateName()), logfields.Path(crateDir),
		logfields.Duration(debounce))

	watcher := watch.New(rebuild,
		watch.WithDebounce(debounce),
		watch.WithRoots(filepath.Join(crateDir, "src")),
		watch.WithLogger(slog.Default()))
	return watcher.Run(g.Context)
}
