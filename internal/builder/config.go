package builder

import (
	"fmt"
	"strings"
)

// TargetName is the rustc target triple of the PTX backend.
const TargetName = "nvptx64-nvidia-cuda"

// Profile is the cargo build profile.
type Profile int

const (
	ProfileRelease Profile = iota
	ProfileDebug
)

// String returns the profile's directory name under the target directory.
func (p Profile) String() string {
	if p == ProfileDebug {
		return "debug"
	}
	return "release"
}

// CrateType selects which target of the crate is compiled.
type CrateType int

const (
	// CrateTypeAuto uses whatever target the crate has; mixed crates need an
	// explicit choice.
	CrateTypeAuto CrateType = iota
	CrateTypeLibrary
	CrateTypeBinary
)

func (t CrateType) String() string {
	switch t {
	case CrateTypeLibrary:
		return "library"
	case CrateTypeBinary:
		return "binary"
	default:
		return "auto"
	}
}

// rustcCrateType is the value passed to rustc's --crate-type.
func (t CrateType) rustcCrateType() string {
	if t == CrateTypeBinary {
		return "bin"
	}
	return "cdylib"
}

// FormatKind is the family of cargo's --message-format.
type FormatKind int

const (
	FormatHuman FormatKind = iota
	FormatShort
	FormatJSON
)

// MessageFormat is cargo's diagnostic output format. The boolean options only
// apply to FormatJSON.
type MessageFormat struct {
	Kind              FormatKind
	RenderDiagnostics bool
	Short             bool
	ANSI              bool
}

var (
	MessageFormatHuman = MessageFormat{Kind: FormatHuman}
	MessageFormatShort = MessageFormat{Kind: FormatShort}
)

// MessageFormatJSON returns the json format with the given options.
func MessageFormatJSON(renderDiagnostics, short, ansi bool) MessageFormat {
	return MessageFormat{Kind: FormatJSON, RenderDiagnostics: renderDiagnostics, Short: short, ANSI: ansi}
}

// Flag renders the --message-format argument.
func (f MessageFormat) Flag() string {
	switch f.Kind {
	case FormatShort:
		return "--message-format=short"
	case FormatJSON:
		var b strings.Builder
		b.WriteString("--message-format=json")
		if f.RenderDiagnostics {
			b.WriteString(",json-render-diagnostics")
		}
		if f.Short {
			b.WriteString(",json-diagnostic-short")
		}
		if f.ANSI {
			b.WriteString(",json-diagnostic-rendered-ansi")
		}
		return b.String()
	default:
		return "--message-format=human"
	}
}

// Config is the immutable build configuration. The With methods return
// modified copies.
type Config struct {
	profile       Profile
	colors        bool
	crateType     CrateType
	messageFormat MessageFormat
	prefix        string
}

// DefaultConfig is a release build with colors, human messages, automatic
// crate type and an empty prefix.
func DefaultConfig() Config {
	return Config{
		profile:       ProfileRelease,
		colors:        true,
		crateType:     CrateTypeAuto,
		messageFormat: MessageFormatHuman,
	}
}

// Profile returns the cargo build profile.
func (c Config) Profile() Profile { return c.profile }

// Colors reports whether cargo is asked for colored output.
func (c Config) Colors() bool { return c.colors }

// CrateType returns the requested target for mixed crates.
func (c Config) CrateType() CrateType { return c.crateType }

// MessageFormat returns the cargo message format.
func (c Config) MessageFormat() MessageFormat { return c.messageFormat }

// Prefix returns the invocation name suffix.
func (c Config) Prefix() string { return c.prefix }

// WithProfile returns a copy building with profile p.
func (c Config) WithProfile(p Profile) Config {
	c.profile = p
	return c
}

// WithColors returns a copy with cargo colors enabled or disabled.
func (c Config) WithColors(enabled bool) Config {
	c.colors = enabled
	return c
}

// WithCrateType returns a copy building target t in a mixed crate.
func (c Config) WithCrateType(t CrateType) Config {
	c.crateType = t
	return c
}

// WithMessageFormat returns a copy using message format f.
func (c Config) WithMessageFormat(f MessageFormat) Config {
	c.messageFormat = f
	return c
}

// WithPrefix sets the invocation name suffix. Builds of the same crate with
// different prefixes produce different artifacts.
func (c Config) WithPrefix(prefix string) Config {
	c.prefix = prefix
	return c
}

// String summarises the configuration for logs.
func (c Config) String() string {
	return fmt.Sprintf("profile=%s colors=%t crate_type=%s %s prefix=%q",
		c.profile, c.colors, c.crateType, strings.TrimPrefix(c.messageFormat.Flag(), "--"), c.prefix)
}

// cargoArgs assembles the driver arguments in the order cargo expects them.
func (c Config) cargoArgs(invocation string, crateType CrateType) []string {
	args := []string{"rustc"}
	if c.profile == ProfileRelease {
		args = append(args, "--release")
	}

	color := "never"
	if c.colors {
		color = "always"
	}
	args = append(args,
		"--color", color,
		c.messageFormat.Flag(),
		"--target", TargetName,
		"--example", invocation,
		"-v",
		"--",
		"--crate-type", crateType.rustcCrateType(),
	)
	return args
}
