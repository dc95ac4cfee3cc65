// Package assets reads the fingerprint manifest shipped with the viewer's
// static bundle.
//
// A viewer build writes manifest.json next to its assets, mapping source
// names to content-hashed names:
//
//	{
//	  "viewer.js": "viewer.3f9a1c2e.js",
//	  "viewer.css": "viewer.8b41d07a.css"
//	}
//
// The static handler uses the manifest to mark hashed files as immutable.
package assets

import (
	"encoding/json"
	"io/fs"
	"path"
	"sync"
)

// ManifestName is the manifest's file name inside the static directory.
const ManifestName = "manifest.json"

// Manifest maps source asset paths to fingerprinted paths. It is safe for
// concurrent use.
type Manifest struct {
	mu      sync.RWMutex
	entries map[string]string
	hashed  map[string]struct{}
}

// NewManifest creates an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		entries: make(map[string]string),
		hashed:  make(map[string]struct{}),
	}
}

// Load reads ManifestName from fsys. A missing manifest is reported as
// fs.ErrNotExist so callers can fall back to an empty one.
func Load(fsys fs.FS) (*Manifest, error) {
	data, err := fs.ReadFile(fsys, ManifestName)
	if err != nil {
		return nil, err
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	m := NewManifest()
	for source, resolved := range entries {
		m.Set(source, resolved)
	}
	return m, nil
}

// Resolve returns the fingerprinted path for source, or source itself when
// the manifest has no entry.
func (m *Manifest) Resolve(source string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if resolved, ok := m.entries[clean(source)]; ok {
		return resolved
	}
	return source
}

// Fingerprinted reports whether p is the hashed name of some manifest
// entry. Such files never change content and can be cached forever.
func (m *Manifest) Fingerprinted(p string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.hashed[clean(p)]
	return ok
}

// Set adds or replaces an entry.
func (m *Manifest) Set(source, resolved string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	source, resolved = clean(source), clean(resolved)
	if old, ok := m.entries[source]; ok {
		delete(m.hashed, old)
	}
	m.entries[source] = resolved
	if resolved != source {
		m.hashed[resolved] = struct{}{}
	}
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// All returns a copy of the entries.
func (m *Manifest) All() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

func clean(p string) string {
	if p == "" {
		return ""
	}
	c := path.Clean("/" + p)
	return c[1:]
}
