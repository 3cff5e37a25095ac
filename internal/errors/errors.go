// Package errors provides the single tagged error type (BuildError) returned
// by every ptxbuilder operation, plus kind-based classification for the CLI.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind classifies a BuildError.
type Kind string

const (
	// Toolchain errors
	KindToolUnavailable            Kind = "tool_unavailable"
	KindCommandNotFound            Kind = "command_not_found"
	KindCommandFailed              Kind = "command_failed"
	KindCommandVersionNotFulfilled Kind = "command_version"

	// Source crate errors
	KindAnalysisFailed   Kind = "analysis_failed"
	KindInvalidCratePath Kind = "invalid_crate_path"
	KindMissingCrateType Kind = "missing_crate_type"

	// Shared state errors
	KindLockFailed       Kind = "lock_failed"
	KindManifestIOFailed Kind = "manifest_io_failed"

	// Build errors
	KindBuildFailed Kind = "build_failed"
	KindInternal    Kind = "internal"
)

// Severity indicates how the caller is expected to react.
type Severity string

const (
	SeverityFatal Severity = "fatal" // abort the enclosing build
	SeverityError Severity = "error" // ordinary compile error, print and move on
)

// BuildError is the tagged error returned by the builder and its collaborators.
type BuildError struct {
	Kind        Kind          `json:"kind"`
	Severity    Severity      `json:"severity"`
	Message     string        `json:"message"`
	Cause       error         `json:"cause,omitempty"`
	Diagnostics []string      `json:"diagnostics,omitempty"`
	Context     ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for BuildError
type ContextFields map[string]any

// Error implements the error interface
func (e *BuildError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *BuildError) WithContext(key string, value any) *BuildError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// DiagnosticText joins the diagnostics the way the compiler printed them.
func (e *BuildError) DiagnosticText() string {
	return strings.Join(e.Diagnostics, "\n")
}

// New creates a new fatal BuildError
func New(kind Kind, message string) *BuildError {
	return &BuildError{
		Kind:     kind,
		Severity: SeverityFatal,
		Message:  message,
	}
}

// Wrap creates a new fatal BuildError that wraps an existing error
func Wrap(err error, kind Kind, message string) *BuildError {
	return &BuildError{
		Kind:     kind,
		Severity: SeverityFatal,
		Message:  message,
		Cause:    err,
	}
}

// As returns the outermost BuildError in err's chain.
func As(err error) (*BuildError, bool) {
	var be *BuildError
	if stderrors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsKind reports whether any BuildError reachable from err, through causes
// and the members of joined errors, is of kind.
func IsKind(err error, kind Kind) bool {
	found := false
	walk(err, func(be *BuildError) bool {
		found = be.Kind == kind
		return !found
	})
	return found
}

// Primary returns the BuildError that decides how err is reported. A failure
// to restore shared state outranks a compile failure joined with it, since it
// leaves the manifest modified.
func Primary(err error) (*BuildError, bool) {
	var primary *BuildError
	walk(err, func(be *BuildError) bool {
		if primary == nil || rank(be.Kind) > rank(primary.Kind) {
			primary = be
		}
		return true
	})
	return primary, primary != nil
}

// KindOf returns the kind of err's primary BuildError, or KindInternal.
func KindOf(err error) Kind {
	if be, ok := Primary(err); ok {
		return be.Kind
	}
	return KindInternal
}

// DiagnosticsOf returns the filtered compiler diagnostics carried by a
// BuildFailed error anywhere in err, or nil.
func DiagnosticsOf(err error) []string {
	var diags []string
	walk(err, func(be *BuildError) bool {
		if be.Kind == KindBuildFailed {
			diags = be.Diagnostics
			return false
		}
		return true
	})
	return diags
}

// StripDiagnostics returns err with the diagnostics of BuildFailed errors
// dropped. Every other member of a joined error is kept.
func StripDiagnostics(err error) error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		members := joined.Unwrap()
		out := make([]error, 0, len(members))
		for _, m := range members {
			out = append(out, StripDiagnostics(m))
		}
		return stderrors.Join(out...)
	}
	if be, ok := err.(*BuildError); ok && be.Kind == KindBuildFailed {
		stripped := *be
		stripped.Diagnostics = nil
		return &stripped
	}
	return err
}

func rank(kind Kind) int {
	switch kind {
	case KindLockFailed, KindManifestIOFailed:
		return 2
	case KindBuildFailed:
		return 0
	default:
		return 1
	}
}

// walk visits every BuildError reachable from err in depth-first order until
// visit returns false. It reports whether the walk ran to completion.
func walk(err error, visit func(*BuildError) bool) bool {
	if err == nil {
		return true
	}
	if be, ok := err.(*BuildError); ok {
		if !visit(be) {
			return false
		}
		return walk(be.Cause, visit)
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, member := range u.Unwrap() {
			if !walk(member, visit) {
				return false
			}
		}
	case interface{ Unwrap() error }:
		return walk(u.Unwrap(), visit)
	}
	return true
}
