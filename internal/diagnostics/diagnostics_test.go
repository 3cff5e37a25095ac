package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSignal(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"error[E0425]: cannot find function `external_fn` in this scope", true},
		{"   Compiling faulty-ptx_crate v0.1.0 (/work/faulty-crate)", true},
		{"", true},
		{"  |", true},
		{"+ ptx-linker --emit asm", false},
		{"     Running `rustc --crate-name faulty_ptx_crate`", false},
		{"       Fresh core v0.0.0", false},
		{"Caused by:", false},
		{"  process didn't exit successfully: `rustc ...` (exit status: 1)", false},
		// Only the prefix form is noise.
		{"note: + is not a prefix here", true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSignal(tt.line))
		})
	}
}

func TestFilter_PreservesOrderAndBlankLines(t *testing.T) {
	stderr := "\n   Compiling faulty-ptx_crate v0.1.0 (/work/faulty-crate)\n" +
		"     Running `rustc --crate-name faulty_ptx_crate`\n" +
		"error[E0425]: cannot find function `external_fn` in this scope\n" +
		" --> src/lib.rs:7:20\n" +
		"  |\n" +
		"\n" +
		"error: could not compile `faulty-ptx_crate`\n" +
		"\n" +
		"Caused by:\n" +
		"  process didn't exit successfully: `rustc` (exit status: 1)\n"

	got := Filter(stderr)
	require.Equal(t, []string{
		"   Compiling faulty-ptx_crate v0.1.0 (/work/faulty-crate)",
		"error[E0425]: cannot find function `external_fn` in this scope",
		" --> src/lib.rs:7:20",
		"  |",
		"",
		"error: could not compile `faulty-ptx_crate`",
		"",
	}, got)
}

func TestFilterSink(t *testing.T) {
	var seen []string
	sink := FilterSink(func(line string) { seen = append(seen, line) })
	for _, line := range []string{"+ echo", "warning: unused", "       Fresh libc", "error: boom"} {
		sink(line)
	}
	assert.Equal(t, []string{"warning: unused", "error: boom"}, seen)

	// nil sink must be safe to call
	FilterSink(nil)("anything")
}
