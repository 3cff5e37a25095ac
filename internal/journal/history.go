package journal

import (
	"context"
	"slices"
	"time"
)

const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// BuildSummary is the read model of one build, folded from its events.
type BuildSummary struct {
	BuildID         string        `json:"build_id"`
	Crate           string        `json:"crate"`
	Profile         string        `json:"profile"`
	Prefix          string        `json:"prefix,omitempty"`
	Trigger         string        `json:"trigger,omitempty"`
	Status          string        `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration,omitempty"`
	AssemblyPath    string        `json:"assembly_path,omitempty"`
	ErrorKind       string        `json:"error_kind,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	DiagnosticCount int           `json:"diagnostic_count,omitempty"`
}

// Summarize folds records (oldest first) into one summary per build, newest
// build first. Records of a build whose start was not recorded are ignored.
func Summarize(records []Record) ([]BuildSummary, error) {
	byID := make(map[string]*BuildSummary)
	var order []*BuildSummary

	for _, e := range records {
		if e.Kind == TypeBuildStarted {
			started, err := decode[BuildStarted](e)
			if err != nil {
				return nil, err
			}
			s := &BuildSummary{
				BuildID:   e.BuildID,
				Crate:     started.Crate,
				Profile:   started.Profile,
				Prefix:    started.Prefix,
				Trigger:   started.Trigger,
				Status:    StatusRunning,
				StartedAt: e.At,
			}
			byID[s.BuildID] = s
			order = append(order, s)
			continue
		}

		s, ok := byID[e.BuildID]
		if !ok {
			continue
		}
		switch e.Kind {
		case TypeBuildSucceeded:
			done, err := decode[BuildSucceeded](e)
			if err != nil {
				return nil, err
			}
			s.Status = StatusSucceeded
			s.AssemblyPath = done.AssemblyPath
			s.Duration = time.Duration(done.DurationMS) * time.Millisecond
		case TypeBuildFailed:
			failed, err := decode[BuildFailed](e)
			if err != nil {
				return nil, err
			}
			s.Status = StatusFailed
			s.ErrorKind = failed.Kind
			s.ErrorMessage = failed.Message
			s.DiagnosticCount = len(failed.Diagnostics)
			s.Duration = time.Duration(failed.DurationMS) * time.Millisecond
		case TypeBuildSkipped:
			s.Status = StatusSkipped
		}
	}

	out := make([]BuildSummary, 0, len(order))
	for _, s := range slices.Backward(order) {
		out = append(out, *s)
	}
	return out, nil
}

// History returns at most limit summaries of the builds matching f, newest
// first. A limit of zero or less means no limit.
func History(ctx context.Context, store Store, f Filter, limit int) ([]BuildSummary, error) {
	records, err := store.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	summaries, err := Summarize(records)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}
