package builder

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	berrors "git.home.luguber.info/inful/ptxbuilder/internal/errors"
	"git.home.luguber.info/inful/ptxbuilder/internal/source"
)

// Output describes a successful build.
type Output struct {
	builder   *Builder
	outputDir string
	crateType CrateType
}

// OutputDir is the cargo target directory used for the build.
func (o *Output) OutputDir() string { return o.outputDir }

// CrateType is the target that was compiled.
func (o *Output) CrateType() CrateType { return o.crateType }

// AssemblyPath is the produced .ptx file.
func (o *Output) AssemblyPath() string {
	return o.artifactBase() + ".ptx"
}

// DepInfoPath is the dep-info file cargo writes next to the assembly.
func (o *Output) DepInfoPath() string {
	return o.artifactBase() + ".d"
}

// artifactBase is <outdir>/<target>/<profile>/examples/<stem><sep><prefix>.
// Binaries keep the crate name; libraries use rustc's underscore spelling
// throughout.
func (o *Output) artifactBase() string {
	crate := o.builder.crate
	prefix := o.builder.config.prefix

	var name string
	if o.crateType == CrateTypeBinary {
		name = crate.Name() + "-" + prefix
	} else {
		name = crate.OutputFilePrefix() + "_" + strings.ReplaceAll(prefix, "-", "_")
	}
	return filepath.Join(o.outputDir, TargetName, o.builder.config.profile.String(), "examples", name)
}

// Dependencies returns every file whose change requires a rebuild: the
// sources listed in the dep-info file, the crate manifest and the nearest
// Cargo.lock at or above the crate directory.
func (o *Output) Dependencies() ([]string, error) {
	data, err := os.ReadFile(o.DepInfoPath())
	if err != nil {
		return nil, berrors.InternalError("unable to read crate deps", err).
			WithContext("path", o.DepInfoPath())
	}
	if len(data) == 0 {
		return nil, berrors.InternalError("empty deps file", nil).
			WithContext("path", o.DepInfoPath())
	}

	deps := parseDepInfo(string(data))

	crateDir := o.builder.crate.Path()
	lockPath, err := findUpwards(crateDir, source.LockManifestFile)
	if err != nil {
		return nil, berrors.InternalError("unable to find Cargo.lock file", err).
			WithContext("path", crateDir)
	}

	return append(deps, filepath.Join(crateDir, source.ManifestFile), lockPath), nil
}

// parseDepInfo extracts the prerequisites from a make-style dep-info rule
// "target: dep dep ...". The first three characters are skipped before
// looking for the separator so that a Windows drive letter ("C:\") in the
// target is not mistaken for it; a target shorter than that would break this.
// Only the first rule is read. Backslash-escaped spaces are kept in paths.
func parseDepInfo(content string) []string {
	if len(content) <= 3 {
		return nil
	}
	rest := content[3:]
	idx := strings.IndexByte(rest, ':')
	if idx < 0 {
		return nil
	}
	rest = rest[idx+1:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}

	var (
		deps    []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			deps = append(deps, current.String())
			current.Reset()
		}
	}
	for i := 0; i < len(rest); i++ {
		ch := rest[i]
		switch {
		case ch == '\\' && i+1 < len(rest) && rest[i+1] == ' ':
			current.WriteByte(' ')
			i++
		case ch == ' ' || ch == '\t' || ch == '\r':
			flush()
		default:
			current.WriteByte(ch)
		}
	}
	flush()
	return deps
}

// findUpwards returns the first dir/name that is a regular file, walking from
// dir towards the filesystem root.
func findUpwards(dir, name string) (string, error) {
	for {
		candidate := filepath.Join(dir, name)
		if fi, err := os.Stat(candidate); err == nil && fi.Mode().IsRegular() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New(name + " not found in any parent directory")
		}
		dir = parent
	}
}
