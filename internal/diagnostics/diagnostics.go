// Package diagnostics separates compiler diagnostics from cargo's own chatter
// in the build driver's error stream.
package diagnostics

import "strings"

// LineFunc receives one line of subprocess output, without the newline.
type LineFunc func(line string)

// noise patterns emitted by cargo in verbose mode or when a rustc process fails.
const (
	shellEchoPrefix   = "+ "
	causedByPrefix    = "Caused by:"
	processExitPrefix = "  process didn't exit successfully: "
)

// IsSignal reports whether line carries information for the caller. Echoed
// shell commands, Running/Fresh progress lines, "Caused by:" continuations and
// the process-exit wrapper line are noise.
func IsSignal(line string) bool {
	return !strings.HasPrefix(line, shellEchoPrefix) &&
		!strings.Contains(line, "Running") &&
		!strings.Contains(line, "Fresh") &&
		!strings.HasPrefix(line, causedByPrefix) &&
		!strings.HasPrefix(line, processExitPrefix)
}

// Filter splits captured stderr into lines and keeps the signal ones in order.
// Leading and trailing newlines are dropped first, so blank lines inside the
// text survive but the final terminator does not produce an extra entry.
func Filter(stderr string) []string {
	lines := strings.Split(strings.Trim(stderr, "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if IsSignal(line) {
			out = append(out, line)
		}
	}
	return out
}

// FilterSink wraps sink so that it only sees signal lines. A nil sink yields
// a no-op.
func FilterSink(sink LineFunc) LineFunc {
	if sink == nil {
		return func(string) {}
	}
	return func(line string) {
		if IsSignal(line) {
			sink(line)
		}
	}
}
