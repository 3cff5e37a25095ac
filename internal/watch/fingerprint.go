package watch

import (
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// missing is the fingerprint of a path that cannot be read.
const missing uint64 = 0

// changeTracker collects changed paths reported by the event loop and decides,
// by content, whether they really changed since the last build. Every build
// patches and restores the crate manifest, which is itself a dependency;
// comparing content keeps those writes from triggering another build.
type changeTracker struct {
	mu      sync.Mutex
	pending map[string]struct{}

	// known is owned by the worker goroutine.
	known map[string]uint64
}

func newChangeTracker() *changeTracker {
	return &changeTracker{pending: map[string]struct{}{}, known: map[string]uint64{}}
}

func (c *changeTracker) note(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[path] = struct{}{}
}

func (c *changeTracker) take() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths := make([]string, 0, len(c.pending))
	for p := range c.pending {
		paths = append(paths, p)
	}
	clear(c.pending)
	return paths
}

// changed reports whether any path differs from its recorded fingerprint.
// Paths never recorded count as changed.
func (c *changeTracker) changed(paths []string) bool {
	for _, p := range paths {
		prev, ok := c.known[p]
		if !ok || prev != fingerprint(p) {
			return true
		}
	}
	return false
}

func (c *changeTracker) record(paths []string) {
	for _, p := range paths {
		c.known[p] = fingerprint(p)
	}
}

func fingerprint(path string) uint64 {
	f, err := os.Open(path)
	if err != nil {
		return missing
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return missing
	}
	sum := h.Sum64()
	if sum == missing {
		sum++
	}
	return sum
}
