package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "ptxbuilder.yaml"

// Config represents the application configuration
type Config struct {
	Build   BuildConfig   `yaml:"build"`
	Logging LoggingConfig `yaml:"logging"`
	Watch   WatchConfig   `yaml:"watch"`
	Metrics MetricsConfig `yaml:"metrics"`
	History HistoryConfig `yaml:"history"`
}

// BuildConfig holds the defaults applied to every build. CLI flags override them.
type BuildConfig struct {
	CratePath     string           `yaml:"crate_path"`
	Profile       Profile          `yaml:"profile"`
	Colors        *bool            `yaml:"colors,omitempty"`
	CrateType     CrateType        `yaml:"crate_type,omitempty"`
	MessageFormat MessageFormat    `yaml:"message_format"`
	JSON          JSONFormatConfig `yaml:"json,omitempty"`
	Prefix        string           `yaml:"prefix,omitempty"`
	// OutputRoot overrides the directory under which per-crate output
	// directories are created (defaults to $OUT_DIR or the system temp dir).
	OutputRoot string `yaml:"output_root,omitempty"`
}

// JSONFormatConfig carries the sub-options of the json message format.
type JSONFormatConfig struct {
	RenderDiagnostics bool `yaml:"render_diagnostics"`
	Short             bool `yaml:"short"`
	ANSI              bool `yaml:"ansi"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// WatchConfig configures rebuild-on-change mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// MetricsConfig configures the optional Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// HistoryConfig configures the optional SQLite build journal.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// ColorsEnabled reports the effective color setting (default on).
func (b BuildConfig) ColorsEnabled() bool {
	return b.Colors == nil || *b.Colors
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load loads configuration from the specified file. A missing file is not an
// error: defaults are returned so the tool works without any configuration.
func Load(configPath string) (*Config, error) {
	loadEnvFile()

	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("No configuration file, using defaults", "path", configPath)
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := normalize(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Build.CratePath == "" {
		cfg.Build.CratePath = "."
	}
	if cfg.Build.Profile == "" {
		cfg.Build.Profile = ProfileRelease
	}
	if cfg.Build.MessageFormat == "" {
		cfg.Build.MessageFormat = MessageFormatHuman
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = 300 * time.Millisecond
	}
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	colors := true
	exampleConfig := Config{
		Build: BuildConfig{
			CratePath:     "kernel",
			Profile:       ProfileRelease,
			Colors:        &colors,
			MessageFormat: MessageFormatHuman,
		},
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
		Watch:   WatchConfig{Debounce: 300 * time.Millisecond},
	}

	data, err := yaml.Marshal(&exampleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
