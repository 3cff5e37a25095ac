package commands

import (
	"context"
	"errors"
	"log/slog"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/ptxbuilder/internal/builder"
	"git.home.luguber.info/inful/ptxbuilder/internal/config"
	berrors "git.home.luguber.info/inful/ptxbuilder/internal/errors"
	"git.home.luguber.info/inful/ptxbuilder/internal/executable"
	"git.home.luguber.info/inful/ptxbuilder/internal/journal"
	"git.home.luguber.info/inful/ptxbuilder/internal/logfields"
	"git.home.luguber.info/inful/ptxbuilder/internal/metrics"
)

// session is one configured builder plus the optional history journal and
// metrics export around it.
type session struct {
	builder  *builder.Builder
	settings config.BuildConfig
	nesting  builder.Nesting
	logger   *slog.Logger

	store    *journal.SQLiteStore
	journal  *journal.Journal
	registry *prom.Registry
	textfile string
}

// openSession resolves configuration and flags into a builder. extra options
// are applied last.
func openSession(root *CLI, flags CrateFlags, extra ...builder.Option) (*session, error) {
	cfg, err := root.Settings()
	if err != nil {
		return nil, err
	}
	settings, err := flags.resolve(cfg.Build)
	if err != nil {
		return nil, err
	}

	s := &session{
		settings: settings,
		nesting:  builder.NestingFromEnv(),
		logger:   slog.Default(),
		textfile: cfg.Metrics.Textfile,
	}

	builderOpts := []builder.Option{
		builder.WithLogger(s.logger),
		builder.WithOutputRoot(settings.OutputRoot),
	}
	if s.textfile != "" {
		s.registry = prom.NewRegistry()
		builderOpts = append(builderOpts, builder.WithRecorder(metrics.NewPrometheusRecorder(s.registry)))
	}
	builderOpts = append(builderOpts, extra...)

	b, err := builder.New(settings.CratePath, builderOpts...)
	if err != nil {
		return nil, err
	}
	s.builder = b.WithConfig(builderConfig(settings))

	if cfg.History.Path != "" {
		store, err := journal.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			s.logger.Warn("Build history disabled", logfields.Path(cfg.History.Path), logfields.Error(err))
		} else {
			s.store = store
			s.journal = journal.New(store)
		}
	}
	return s, nil
}

// Close releases the history database.
func (s *session) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// build runs one build and records it. trigger names what started it.
func (s *session) build(ctx context.Context, trigger string, onStdout, onStderr executable.LineFunc) (builder.Status, error) {
	entry := s.begin(ctx, trigger)

	status, err := s.builder.BuildLive(ctx, s.nesting, onStdout, onStderr)

	if entry != nil {
		if recErr := s.finish(ctx, entry, status, err); recErr != nil {
			s.logger.Warn("Failed to record build", logfields.BuildID(entry.ID()), logfields.Error(recErr))
		}
	}
	s.exportMetrics()
	return status, err
}

func (s *session) begin(ctx context.Context, trigger string) *journal.Entry {
	if s.journal == nil {
		return nil
	}
	cfg := s.builder.Config()
	entry, err := s.journal.Begin(ctx, journal.BuildStarted{
		Crate:     s.builder.CrateName(),
		CratePath: s.builder.Crate().Path(),
		Profile:   cfg.Profile().String(),
		CrateType: cfg.CrateType().String(),
		Prefix:    cfg.Prefix(),
		Trigger:   trigger,
	})
	if err != nil {
		s.logger.Warn("Failed to record build start", logfields.Error(err))
		return nil
	}
	return entry
}

func (s *session) finish(ctx context.Context, entry *journal.Entry, status builder.Status, buildErr error) error {
	// Record even when the build was canceled.
	ctx = context.WithoutCancel(ctx)
	switch {
	case buildErr != nil:
		message := buildErr.Error()
		if be, ok := berrors.Primary(buildErr); ok {
			message = be.Message
		}
		return entry.Failed(ctx, string(berrors.KindOf(buildErr)), message, berrors.DiagnosticsOf(buildErr))
	case status.Kind == builder.StatusNotNeeded:
		return entry.Skipped(ctx, "nested build")
	default:
		return entry.Succeeded(ctx, status.Output.AssemblyPath())
	}
}

func (s *session) exportMetrics() {
	if s.registry == nil {
		return
	}
	if err := metrics.WriteTextfile(s.registry, s.textfile); err != nil {
		s.logger.Warn("Failed to export metrics", logfields.Path(s.textfile), logfields.Error(err))
	}
}

// isCanceled reports whether err only reflects an interrupted run.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
