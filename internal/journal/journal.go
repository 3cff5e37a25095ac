package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Journal records the lifecycle of builds into a Store.
type Journal struct {
	store Store
	now   func() time.Time
}

// New wraps store.
func New(store Store) *Journal {
	return &Journal{store: store, now: time.Now}
}

// Entry is one build being recorded.
type Entry struct {
	journal *Journal
	id      string
	crate   string
	started time.Time
}

// Begin records a BuildStarted event under a fresh build ID.
func (j *Journal) Begin(ctx context.Context, started BuildStarted) (*Entry, error) {
	e := &Entry{journal: j, id: uuid.NewString(), crate: started.Crate, started: j.now()}
	if err := e.append(ctx, TypeBuildStarted, started); err != nil {
		return nil, err
	}
	return e, nil
}

// ID is the build's UUID.
func (e *Entry) ID() string { return e.id }

// Succeeded records a BuildSucceeded event.
func (e *Entry) Succeeded(ctx context.Context, assemblyPath string) error {
	return e.append(ctx, TypeBuildSucceeded, BuildSucceeded{
		AssemblyPath: assemblyPath,
		DurationMS:   durationMS(e.journal.now().Sub(e.started)),
	})
}

// Failed records a BuildFailed event.
func (e *Entry) Failed(ctx context.Context, kind, message string, diagnostics []string) error {
	return e.append(ctx, TypeBuildFailed, BuildFailed{
		Kind:        kind,
		Message:     message,
		Diagnostics: diagnostics,
		DurationMS:  durationMS(e.journal.now().Sub(e.started)),
	})
}

// Skipped records a BuildSkipped event.
func (e *Entry) Skipped(ctx context.Context, reason string) error {
	return e.append(ctx, TypeBuildSkipped, BuildSkipped{Reason: reason})
}

func (e *Entry) append(ctx context.Context, kind string, body any) error {
	payload, err := encode(kind, body)
	if err != nil {
		return err
	}
	r := &Record{BuildID: e.id, Crate: e.crate, Kind: kind, Body: payload}
	if err := e.journal.store.Append(ctx, r); err != nil {
		return fmt.Errorf("record %s: %w", kind, err)
	}
	return nil
}
