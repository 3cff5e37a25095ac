// Package namingslot serialises access to the example entry of a crate
// manifest.
//
// Every build renames the crate's example target to an invocation-specific
// name (so that cargo places the artifact under a distinct file name) and
// renames it back afterwards. The rename is guarded by an OS file lock on
// .ptx-builder.lock in the crate's output directory; the same file stores the
// last name written to the manifest (the slot) so that a build interrupted
// between patch and restore can be recovered by the next one.
package namingslot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	berrors "git.home.luguber.info/inful/ptxbuilder/internal/errors"
	"git.home.luguber.info/inful/ptxbuilder/internal/logfields"
)

// LockFileName is the lock and slot file inside the output directory.
const LockFileName = ".ptx-builder.lock"

// lockRetryDelay is the polling interval while another holder owns the lock.
const lockRetryDelay = 25 * time.Millisecond

// Arbiter owns the naming slot of one crate output directory.
type Arbiter struct {
	lockPath     string
	manifestPath string
	canonical    string
	logger       *slog.Logger
}

// New creates an Arbiter for the manifest at manifestPath whose example entry
// is named canonical between builds. The lock lives in outputDir.
func New(outputDir, manifestPath, canonical string, logger *slog.Logger) *Arbiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbiter{
		lockPath:     filepath.Join(outputDir, LockFileName),
		manifestPath: manifestPath,
		canonical:    canonical,
		logger:       logger,
	}
}

// LockPath returns the lock file location.
func (a *Arbiter) LockPath() string { return a.lockPath }

// Claim is a held naming slot. Restore must be called exactly once.
type Claim struct {
	arbiter    *Arbiter
	lock       *flock.Flock
	invocation string
	restored   bool
	waited     time.Duration
}

// Claim blocks until the slot is free, records invocation in it and rewrites
// the manifest's example entry to invocation. On error nothing is held.
func (a *Arbiter) Claim(ctx context.Context, invocation string) (*Claim, error) {
	if err := os.MkdirAll(filepath.Dir(a.lockPath), 0o750); err != nil {
		return nil, berrors.LockFailed("create", err)
	}

	lock := flock.New(a.lockPath)
	start := time.Now()
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, berrors.LockFailed("acquire", err)
	}
	if !locked {
		return nil, berrors.LockFailed("acquire", fmt.Errorf("lock %s not acquired", a.lockPath))
	}
	waited := time.Since(start)

	prior, err := a.readSlot()
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	if err := a.writeSlot(invocation); err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	manifest, err := a.readManifest()
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	// A restored manifest holds the canonical name; the slot's name is only
	// live when its holder never restored.
	patched, ok := replaceName(manifest, a.canonical, invocation)
	if !ok && prior != a.canonical {
		patched, ok = replaceName(manifest, prior, invocation)
	}
	if !ok {
		_ = lock.Unlock()
		return nil, berrors.ManifestIOFailed("patch",
			fmt.Errorf("%s has no example named %q", a.manifestPath, a.canonical))
	}
	if err := a.writeManifest(patched); err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	a.logger.Debug("Claimed naming slot",
		logfields.Invocation(invocation),
		slog.String("prior", prior),
		logfields.Duration(waited))

	return &Claim{arbiter: a, lock: lock, invocation: invocation, waited: waited}, nil
}

// Invocation is the name currently written to the manifest.
func (c *Claim) Invocation() string { return c.invocation }

// Waited is how long Claim blocked on the lock.
func (c *Claim) Waited() time.Duration { return c.waited }

// Restore writes the canonical name back to the manifest and releases the
// lock. The lock is released even when the manifest cannot be written; both
// failures are returned. The slot keeps the invocation name. Calling Restore
// again is a no-op.
func (c *Claim) Restore() error {
	if c.restored {
		return nil
	}
	c.restored = true
	a := c.arbiter

	var manifestErr error
	manifest, err := a.readManifest()
	if err == nil {
		restored, _ := replaceName(manifest, c.invocation, a.canonical)
		manifestErr = a.writeManifest(restored)
	} else {
		manifestErr = err
	}

	var unlockErr error
	if err := c.lock.Unlock(); err != nil {
		unlockErr = berrors.LockFailed("release", err)
	}

	a.logger.Debug("Restored naming slot", logfields.Invocation(c.invocation))
	return errors.Join(manifestErr, unlockErr)
}

// readSlot returns the last recorded name, or the canonical name when the
// slot is empty.
func (a *Arbiter) readSlot() (string, error) {
	data, err := os.ReadFile(a.lockPath)
	if err != nil {
		return "", berrors.LockFailed("read slot", err)
	}
	if name := strings.TrimSpace(string(data)); name != "" {
		return name, nil
	}
	return a.canonical, nil
}

func (a *Arbiter) writeSlot(name string) error {
	if err := os.WriteFile(a.lockPath, []byte(name), 0o600); err != nil {
		return berrors.LockFailed("write slot", err)
	}
	return nil
}

func (a *Arbiter) readManifest() (string, error) {
	data, err := os.ReadFile(a.manifestPath)
	if err != nil {
		return "", berrors.ManifestIOFailed("read", err)
	}
	return string(data), nil
}

func (a *Arbiter) writeManifest(content string) error {
	if err := os.WriteFile(a.manifestPath, []byte(content), 0o644); err != nil {
		return berrors.ManifestIOFailed("write", err)
	}
	return nil
}

// replaceName replaces every TOML string token spelling from (basic or
// literal quotes) with to. Matching whole tokens keeps a name that is a
// prefix of another from corrupting it. It reports whether from was found.
func replaceName(manifest, from, to string) (string, bool) {
	found := false
	for _, q := range []string{`"`, `'`} {
		token := q + from + q
		if strings.Contains(manifest, token) {
			found = true
			manifest = strings.ReplaceAll(manifest, token, q+to+q)
		}
	}
	return manifest, found
}
