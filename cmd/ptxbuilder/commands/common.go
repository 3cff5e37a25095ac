package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/ptxbuilder/internal/config"
)

// Global carries process-wide state into commands.
type Global struct {
	Context context.Context
	Stdout  io.Writer
	Stderr  io.Writer
}

// NewGlobal returns a Global writing to the process streams.
func NewGlobal(ctx context.Context) *Global {
	return &Global{Context: ctx, Stdout: os.Stdout, Stderr: os.Stderr}
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"ptxbuilder.yaml" env:"PTXBUILDER_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Compile a crate to PTX assembly"`
	Deps    DepsCmd    `cmd:"" help:"Build and print cargo build-script directives (artifact path and rerun-if-changed)"`
	Check   CheckCmd   `cmd:"" help:"Verify the toolchain and describe a crate without building"`
	Watch   WatchCmd   `cmd:"" help:"Rebuild whenever a dependency of the crate changes"`
	History HistoryCmd `cmd:"" help:"Show recorded builds from the history database"`
	Init    InitCmd    `cmd:"" help:"Initialize a new configuration file"`

	cfg       *config.Config
	configErr error
}

// AfterApply runs after flag parsing: load configuration and set up logging once.
// A broken configuration file is reported by the commands that need it, so
// that init can still overwrite it.
func (c *CLI) AfterApply() error {
	c.cfg, c.configErr = config.Load(c.Config)
	logging := config.Default().Logging
	if c.configErr == nil {
		logging = c.cfg.Logging
	}
	slog.SetDefault(logging.NewLogger(os.Stderr, c.Verbose))
	return nil
}

// Settings returns the loaded configuration.
func (c *CLI) Settings() (*config.Config, error) {
	if c.configErr != nil {
		return nil, c.configErr
	}
	if c.cfg == nil {
		return config.Default(), nil
	}
	return c.cfg, nil
}
