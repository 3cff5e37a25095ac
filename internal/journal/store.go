// Package journal keeps a history of builds as events in a SQLite database.
// Each build gets a UUID; its events are summarised for the history command.
package journal

import (
	"context"
	"time"
)

// Store persists build events.
type Store interface {
	// Append stores r, filling in its sequence number and time.
	Append(ctx context.Context, r *Record) error

	// Build returns the events of one build in the order they were appended.
	Build(ctx context.Context, buildID string) ([]Record, error)

	// Query returns the matching events, oldest first.
	Query(ctx context.Context, f Filter) ([]Record, error)

	// Prune deletes builds whose first event is older than before and
	// reports how many events were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
