package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// CLIErrorAdapter handles error presentation and exit code determination for CLI applications.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
	out     io.Writer
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
		out:     os.Stderr,
	}
}

// exitInterrupted follows the shell convention for SIGINT.
const exitInterrupted = 130

// exitCodes maps kinds to process exit codes. Unlisted kinds exit with 1.
var exitCodes = map[Kind]int{
	KindAnalysisFailed:             7,
	KindInvalidCratePath:           7,
	KindMissingCrateType:           7,
	KindToolUnavailable:            8,
	KindCommandNotFound:            8,
	KindCommandVersionNotFulfilled: 8,
	KindCommandFailed:              9,
	KindInternal:                   10,
	KindBuildFailed:                11,
	KindLockFailed:                 12,
	KindManifestIOFailed:           12,
}

// ExitCodeFor determines the exit code for err: 0 for nil, 1 for errors
// that are not a BuildError.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if stderrors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	if be, ok := Primary(err); ok {
		if code, known := exitCodes[be.Kind]; known {
			return code
		}
	}
	return 1
}

// FormatError formats an error for user-friendly display. BuildFailed errors
// print their diagnostics verbatim since they already mirror compiler output.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}

	if stderrors.Is(err, context.Canceled) {
		return "Interrupted"
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var parts []string
		for _, member := range joined.Unwrap() {
			if member != nil {
				parts = append(parts, a.FormatError(member))
			}
		}
		return strings.Join(parts, "\n")
	}
	if be, ok := As(err); ok {
		return a.formatBuildError(be)
	}

	return fmt.Sprintf("Error: %v", err)
}

func (a *CLIErrorAdapter) formatBuildError(err *BuildError) string {
	if err.Kind == KindBuildFailed && len(err.Diagnostics) > 0 {
		return err.DiagnosticText()
	}
	if a.verbose {
		return err.Error()
	}

	msg := fmt.Sprintf("%s: %s", err.Kind, err.Message)
	if hint, ok := err.Context["hint"].(string); ok && hint != "" {
		msg += "\n" + hint
	}
	return msg
}

// HandleError processes an error and exits the program with appropriate code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}

	exitCode := a.ExitCodeFor(err)
	message := a.FormatError(err)

	if a.shouldLog(err) {
		a.logError(err)
	}

	_, _ = fmt.Fprintf(a.out, "%s\n", message)
	os.Exit(exitCode)
}

// shouldLog determines if an error should be logged.
func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	if a.verbose {
		return true
	}

	if be, ok := Primary(err); ok {
		return be.Severity == SeverityFatal
	}

	return true
}

// logError logs an error with appropriate level and context.
func (a *CLIErrorAdapter) logError(err error) {
	if be, ok := Primary(err); ok {
		attrs := []slog.Attr{
			slog.String("kind", string(be.Kind)),
		}
		for k, v := range be.Context {
			if k == "stdout" || k == "stderr" {
				continue
			}
			attrs = append(attrs, slog.Any(k, v))
		}
		if be.Cause != nil {
			attrs = append(attrs, slog.String("cause", be.Cause.Error()))
		}

		a.logger.LogAttrs(context.Background(), a.slogLevel(be.Severity), be.Message, attrs...)
		return
	}

	a.logger.Error("Unclassified error", "error", err)
}

func (a *CLIErrorAdapter) slogLevel(severity Severity) slog.Level {
	if severity == SeverityError {
		return slog.LevelWarn
	}
	return slog.LevelError
}
