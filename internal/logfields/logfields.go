package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyCrate      = "crate"
	KeyProfile    = "profile"
	KeyInvocation = "invocation"
	KeyCrateType  = "crate_type"
	KeyPath       = "path"
	KeyStage      = "stage"
	KeyCommand    = "command"
	KeyDurationMS = "duration_ms"
	KeyBuildID    = "build_id"
	KeyOutcome    = "outcome"
	KeyCount      = "count"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Crate(name string) slog.Attr       { return slog.String(KeyCrate, name) }
func Profile(p string) slog.Attr        { return slog.String(KeyProfile, p) }
func Invocation(name string) slog.Attr  { return slog.String(KeyInvocation, name) }
func CrateType(t string) slog.Attr      { return slog.String(KeyCrateType, t) }
func Path(p string) slog.Attr           { return slog.String(KeyPath, p) }
func Stage(name string) slog.Attr       { return slog.String(KeyStage, name) }
func Command(c string) slog.Attr        { return slog.String(KeyCommand, c) }
func BuildID(id string) slog.Attr       { return slog.String(KeyBuildID, id) }
func Outcome(o string) slog.Attr        { return slog.String(KeyOutcome, o) }
func Count(n int) slog.Attr             { return slog.Int(KeyCount, n) }

func Duration(d time.Duration) slog.Attr {
	return slog.Int64(KeyDurationMS, d.Milliseconds())
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
