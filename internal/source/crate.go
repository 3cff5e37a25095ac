// Package source analyses a Cargo crate on disk: its name, its targets and the
// output directory ptxbuilder uses for it.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pelletier/go-toml/v2"

	berrors "git.home.luguber.info/inful/ptxbuilder/internal/errors"
)

// ManifestFile is the crate description file name.
const ManifestFile = "Cargo.toml"

// LockManifestFile is the workspace lock file searched for above the crate.
const LockManifestFile = "Cargo.lock"

// ScannedType is the crate type found on disk.
type ScannedType int

const (
	// ScannedLibrary has only src/lib.rs.
	ScannedLibrary ScannedType = iota
	// ScannedBinary has only src/main.rs.
	ScannedBinary
	// ScannedMixed has both and needs an explicit choice.
	ScannedMixed
)

func (t ScannedType) String() string {
	switch t {
	case ScannedLibrary:
		return "library"
	case ScannedBinary:
		return "binary"
	case ScannedMixed:
		return "mixed"
	default:
		return fmt.Sprintf("ScannedType(%d)", int(t))
	}
}

// Crate holds the immutable facts about the crate being built.
type Crate struct {
	name             string
	path             string
	scanned          ScannedType
	outputFilePrefix string
	outputRoot       string
}

type manifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
}

// Option customises analysis.
type Option func(*Crate)

// WithOutputRoot sets the directory below which the per-crate output directory
// is created. Empty keeps the default.
func WithOutputRoot(dir string) Option {
	return func(c *Crate) {
		if dir != "" {
			c.outputRoot = dir
		}
	}
}

// Analyze reads the crate at path.
func Analyze(path string, opts ...Option) (*Crate, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, berrors.AnalysisFailed(path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	data, err := os.ReadFile(filepath.Join(abs, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, berrors.InvalidCratePath(abs)
	}
	if err != nil {
		return nil, berrors.AnalysisFailed(abs, err)
	}

	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, berrors.AnalysisFailed(abs, fmt.Errorf("parse %s: %w", ManifestFile, err))
	}
	if m.Package.Name == "" {
		return nil, berrors.AnalysisFailed(abs, fmt.Errorf("%s has no package name", ManifestFile))
	}

	isLibrary := fileExists(filepath.Join(abs, "src", "lib.rs"))
	isBinary := fileExists(filepath.Join(abs, "src", "main.rs"))

	var scanned ScannedType
	switch {
	case isLibrary && isBinary:
		scanned = ScannedMixed
	case isLibrary:
		scanned = ScannedLibrary
	case isBinary:
		scanned = ScannedBinary
	default:
		return nil, berrors.InvalidCratePath(abs)
	}

	c := &Crate{
		name:             m.Package.Name,
		path:             abs,
		scanned:          scanned,
		outputFilePrefix: strings.ReplaceAll(m.Package.Name, "-", "_"),
		outputRoot:       defaultOutputRoot(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// defaultOutputRoot prefers OUT_DIR, which cargo sets for build scripts.
func defaultOutputRoot() string {
	if dir := os.Getenv("OUT_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), "ptx-builder")
}

// Name is the package name from the manifest.
func (c *Crate) Name() string { return c.name }

// Path is the absolute crate directory.
func (c *Crate) Path() string { return c.path }

// ManifestPath is the absolute path of the crate's Cargo.toml.
func (c *Crate) ManifestPath() string { return filepath.Join(c.path, ManifestFile) }

// Scanned reports which targets exist on disk.
func (c *Crate) Scanned() ScannedType { return c.scanned }

// OutputFilePrefix is the crate name as rustc spells it in file names.
func (c *Crate) OutputFilePrefix() string { return c.outputFilePrefix }

// CanonicalEntryName is the example name the manifest holds between builds.
func (c *Crate) CanonicalEntryName() string { return c.name + "-ptx-builder" }

// OutputDir returns the deterministic output directory for this crate
// without creating it: <root>/<output file prefix>/<hash of crate path>.
func (c *Crate) OutputDir() string {
	return filepath.Join(c.outputRoot, c.outputFilePrefix, fmt.Sprintf("%016x", xxhash.Sum64String(c.path)))
}

// OutputPath returns OutputDir, creating it if needed.
func (c *Crate) OutputPath() (string, error) {
	dir := c.OutputDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return dir, nil
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
