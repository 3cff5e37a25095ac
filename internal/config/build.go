package config

import "fmt"

// Profile is the cargo build profile.
type Profile string

const (
	ProfileDebug   Profile = "debug"
	ProfileRelease Profile = "release"
)

var profileNormalizer = newNormalizer("profile", map[string]Profile{
	"debug":   ProfileDebug,
	"dev":     ProfileDebug,
	"release": ProfileRelease,
}, ProfileRelease)

// ParseProfile validates a profile name; empty means release.
func ParseProfile(raw string) (Profile, error) { return profileNormalizer.Parse(raw) }

// MessageFormat is the cargo --message-format family.
type MessageFormat string

const (
	MessageFormatHuman MessageFormat = "human"
	MessageFormatShort MessageFormat = "short"
	MessageFormatJSON  MessageFormat = "json"
)

var messageFormatNormalizer = newNormalizer("message format", map[string]MessageFormat{
	"human": MessageFormatHuman,
	"short": MessageFormatShort,
	"json":  MessageFormatJSON,
}, MessageFormatHuman)

// ParseMessageFormat validates a message format; empty means human.
func ParseMessageFormat(raw string) (MessageFormat, error) {
	return messageFormatNormalizer.Parse(raw)
}

// CrateType optionally forces which target of a mixed crate is built.
type CrateType string

const (
	CrateTypeAuto    CrateType = ""
	CrateTypeLibrary CrateType = "lib"
	CrateTypeBinary  CrateType = "bin"
)

var crateTypeNormalizer = newNormalizer("crate type", map[string]CrateType{
	"auto":    CrateTypeAuto,
	"lib":     CrateTypeLibrary,
	"library": CrateTypeLibrary,
	"cdylib":  CrateTypeLibrary,
	"bin":     CrateTypeBinary,
	"binary":  CrateTypeBinary,
}, CrateTypeAuto)

// ParseCrateType validates a crate type; empty or "auto" means detect.
func ParseCrateType(raw string) (CrateType, error) { return crateTypeNormalizer.Parse(raw) }

// normalize canonicalises enum fields read from YAML and rejects unknown values.
func normalize(cfg *Config) error {
	var err error
	if cfg.Build.Profile, err = ParseProfile(string(cfg.Build.Profile)); err != nil {
		return fmt.Errorf("build.profile: %w", err)
	}
	if cfg.Build.MessageFormat, err = ParseMessageFormat(string(cfg.Build.MessageFormat)); err != nil {
		return fmt.Errorf("build.message_format: %w", err)
	}
	if cfg.Build.CrateType, err = ParseCrateType(string(cfg.Build.CrateType)); err != nil {
		return fmt.Errorf("build.crate_type: %w", err)
	}
	if cfg.Logging.Level, err = logLevelNormalizer.Parse(string(cfg.Logging.Level)); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format, err = logFormatNormalizer.Parse(string(cfg.Logging.Format)); err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}
	return nil
}
