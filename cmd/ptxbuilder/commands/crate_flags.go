package commands

import (
	"fmt"

	"git.home.luguber.info/inful/ptxbuilder/internal/builder"
	"git.home.luguber.info/inful/ptxbuilder/internal/config"
)

// CrateFlags select the crate and override build.* configuration values.
type CrateFlags struct {
	Path          string `arg:"" optional:"" help:"Crate directory (defaults to build.crate_path, then the current directory)"`
	Profile       string `help:"Build profile: debug or release"`
	CrateType     string `name:"crate-type" help:"Target to build in a crate with both lib.rs and main.rs: lib or bin"`
	MessageFormat string `name:"message-format" help:"cargo message format: human, short or json"`
	RenderDiags   bool   `name:"json-render-diagnostics" help:"With json: let cargo render diagnostics"`
	ShortDiags    bool   `name:"json-diagnostic-short" help:"With json: short rendered diagnostics"`
	ANSIDiags     bool   `name:"json-diagnostic-rendered-ansi" help:"With json: keep ANSI colors in rendered diagnostics"`
	NoColor       bool   `name:"no-color" help:"Disable colors in cargo output"`
	Prefix        string `help:"Suffix of the example name used for this build; distinct prefixes produce distinct artifacts"`
	OutputRoot    string `name:"output-root" help:"Directory holding per-crate output directories (default $OUT_DIR, then the system temp dir)"`
}

// resolve applies the flags on top of the configured build settings.
func (f CrateFlags) resolve(base config.BuildConfig) (config.BuildConfig, error) {
	bc := base
	if f.Path != "" {
		bc.CratePath = f.Path
	}
	if f.Profile != "" {
		p, err := config.ParseProfile(f.Profile)
		if err != nil {
			return bc, fmt.Errorf("--profile: %w", err)
		}
		bc.Profile = p
	}
	if f.CrateType != "" {
		t, err := config.ParseCrateType(f.CrateType)
		if err != nil {
			return bc, fmt.Errorf("--crate-type: %w", err)
		}
		bc.CrateType = t
	}
	if f.MessageFormat != "" {
		m, err := config.ParseMessageFormat(f.MessageFormat)
		if err != nil {
			return bc, fmt.Errorf("--message-format: %w", err)
		}
		bc.MessageFormat = m
	}
	bc.JSON.RenderDiagnostics = bc.JSON.RenderDiagnostics || f.RenderDiags
	bc.JSON.Short = bc.JSON.Short || f.ShortDiags
	bc.JSON.ANSI = bc.JSON.ANSI || f.ANSIDiags
	if f.NoColor {
		off := false
		bc.Colors = &off
	}
	if f.Prefix != "" {
		bc.Prefix = f.Prefix
	}
	if f.OutputRoot != "" {
		bc.OutputRoot = f.OutputRoot
	}
	return bc, nil
}

// builderConfig converts configuration values into the builder's types.
func builderConfig(bc config.BuildConfig) builder.Config {
	cfg := builder.DefaultConfig().
		WithColors(bc.ColorsEnabled()).
		WithPrefix(bc.Prefix)

	if bc.Profile == config.ProfileDebug {
		cfg = cfg.WithProfile(builder.ProfileDebug)
	}

	switch bc.CrateType {
	case config.CrateTypeLibrary:
		cfg = cfg.WithCrateType(builder.CrateTypeLibrary)
	case config.CrateTypeBinary:
		cfg = cfg.WithCrateType(builder.CrateTypeBinary)
	}

	switch bc.MessageFormat {
	case config.MessageFormatShort:
		cfg = cfg.WithMessageFormat(builder.MessageFormatShort)
	case config.MessageFormatJSON:
		cfg = cfg.WithMessageFormat(builder.MessageFormatJSON(bc.JSON.RenderDiagnostics, bc.JSON.Short, bc.JSON.ANSI))
	}
	return cfg
}
