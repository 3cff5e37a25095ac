package executable

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	berrors "git.home.luguber.info/inful/ptxbuilder/internal/errors"
)

// Tool is an external program the builder depends on.
type Tool struct {
	Name string
	// Hint tells the user how to get the tool.
	Hint string
	// MinVersion is a semver ("v0.9.0"); empty means any version.
	MinVersion string
}

var (
	// Cargo is the compiler driver.
	Cargo = Tool{
		Name: "cargo",
		Hint: "Please make sure you have a Rust toolchain installed and cargo is in PATH",
	}

	// Linker is the companion PTX linker invoked by rustc for the nvptx target.
	Linker = Tool{
		Name:       "ptx-linker",
		Hint:       "You can install it with: 'cargo install ptx-linker'",
		MinVersion: "v0.9.0",
	}
)

// Command builds a Command running the tool with args.
func (t Tool) Command(args ...string) Command {
	return Command{Program: t.Name, Args: args, Hint: t.Hint}
}

var versionRegex = regexp.MustCompile(`v?(\d+\.\d+\.\d+)`)

// parseVersion extracts the first X.Y.Z from a tool's version output.
func parseVersion(output string) (string, bool) {
	matches := versionRegex.FindStringSubmatch(output)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

// CheckVersion runs "<tool> -V" and verifies the tool is usable and recent
// enough. It returns the detected version.
//
// Any failure to run the tool is reported as ToolUnavailable wrapping the
// underlying CommandNotFound or CommandFailed error.
func CheckVersion(ctx context.Context, r Runner, tool Tool) (string, error) {
	out, err := Run(ctx, r, tool.Command("-V"))
	if err != nil {
		return "", berrors.ToolUnavailable(tool.Name, err).WithContext("hint", tool.Hint)
	}

	combined := out.Stdout + out.Stderr
	version, ok := parseVersion(combined)
	if !ok {
		if tool.MinVersion == "" {
			return strings.TrimSpace(combined), nil
		}
		return "", berrors.ToolUnavailable(tool.Name,
			fmt.Errorf("unable to parse version from %q", strings.TrimSpace(combined))).
			WithContext("hint", tool.Hint)
	}

	if tool.MinVersion != "" && semver.Compare("v"+version, tool.MinVersion) < 0 {
		return version, berrors.CommandVersionNotFulfilled(tool.Name, version, ">= "+strings.TrimPrefix(tool.MinVersion, "v"), tool.Hint)
	}
	return version, nil
}
