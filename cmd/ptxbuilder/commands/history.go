package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/ptxbuilder/internal/journal"
	"git.home.luguber.info/inful/ptxbuilder/internal/logfields"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int           `short:"n" help:"Maximum number of builds to show (0 for all)" default:"20"`
	Since time.Duration `help:"Only show builds started within this duration, e.g. 24h"`
	Crate string        `help:"Only show builds of this crate"`
	Prune time.Duration `help:"First delete builds older than this duration"`
	JSON  bool          `help:"Print JSON instead of a table"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.Settings()
	if err != nil {
		return err
	}
	if cfg.History.Path == "" {
		return fmt.Errorf("build history is disabled: set history.path in %s", root.Config)
	}

	store, err := journal.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("open build history: %w", err)
	}
	defer func() { _ = store.Close() }()

	if h.Prune > 0 {
		removed, err := store.Prune(g.Context, time.Now().Add(-h.Prune))
		if err != nil {
			return err
		}
		slog.Info("Pruned build history", logfields.Count(int(removed)))
	}

	filter := journal.Filter{Crate: h.Crate}
	if h.Since > 0 {
		filter.Since = time.Now().Add(-h.Since)
	}
	summaries, err := journal.History(g.Context, store, filter, h.Limit)
	if err != nil {
		return fmt.Errorf("read build history: %w", err)
	}

	if h.JSON {
		enc := json.NewEncoder(g.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	tw := tabwriter.NewWriter(g.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STARTED\tBUILD\tCRATE\tPROFILE\tSTATUS\tDURATION\tDETAIL")
	for _, s := range summaries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.StartedAt.Local().Format(time.DateTime),
			shortID(s.BuildID),
			s.Crate,
			s.Profile,
			s.Status,
			s.Duration.Round(time.Millisecond),
			detail(s))
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func detail(s journal.BuildSummary) string {
	switch s.Status {
	case journal.StatusSucceeded:
		return s.AssemblyPath
	case journal.StatusFailed:
		if s.DiagnosticCount > 0 {
			return fmt.Sprintf("%s (%d diagnostic lines)", s.ErrorKind, s.DiagnosticCount)
		}
		return s.ErrorKind + ": " + s.ErrorMessage
	default:
		return ""
	}
}
