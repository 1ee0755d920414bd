// Package mount implements the mount-adapter contract (spec §4.12), mount
// state persistence (spec §4.13), and vault/lock statistics (spec §4.14).
// Grounded on bazil.org/fuse's fs.FS node model (see fuse.go, itself
// grounded on other_examples' bazil.org/fuse-based filesystems) and on
// original_source/crates/oxcrypt-mount/src/backend.rs for the
// Backend/MountHandle contract shape.
package mount

import (
	"fmt"
	"sync"
	"time"
)

// Options configures a mount beyond its vault/mountpoint (spec §4.12
// mount_with_options).
type Options struct {
	// LocalMode requests shorter attribute TTLs appropriate for fast local
	// storage, when AttrTTL is not explicitly set.
	LocalMode bool
	// AttrTTL, if non-zero, overrides the backend's default attribute TTL.
	AttrTTL time.Duration
}

// DefaultOptions returns the zero-value Options (remote-storage TTLs, no
// override).
func DefaultOptions() Options { return Options{} }

// AttrTTLOrDefault resolves the effective attribute TTL for opts given a
// backend's remote-storage default.
func (o Options) AttrTTLOrDefault(remoteDefault, localDefault time.Duration) time.Duration {
	if o.AttrTTL > 0 {
		return o.AttrTTL
	}
	if o.LocalMode {
		return localDefault
	}
	return remoteDefault
}

// Backend is the adapter-uniform contract every mount implementation
// satisfies (spec §4.12).
type Backend interface {
	// Name identifies the backend for mount-state records and CLI
	// selection (e.g. "fuse").
	Name() string
	// IsAvailable reports whether this backend can mount on the current
	// platform (e.g. a FUSE kernel module is loaded).
	IsAvailable() bool
	// UnavailableReason explains why IsAvailable is false, or returns ""
	// when it is true.
	UnavailableReason() string
	// Mount mounts vaultPath at mountpoint with the backend's default
	// options.
	Mount(vaultID, vaultPath, password, mountpoint string) (*Handle, error)
	// MountWithOptions mounts with explicit Options.
	MountWithOptions(vaultID, vaultPath, password, mountpoint string, opts Options) (*Handle, error)
}

// Registry holds the set of known Backends, keyed by name.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds backend under its own Name(), replacing any prior entry
// with the same name.
func (r *Registry) Register(backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[backend.Name()] = backend
}

// Get returns the backend registered under name.
func (r *Registry) Get(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// Available returns the names of every registered backend whose
// IsAvailable() is currently true.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, b := range r.backends {
		if b.IsAvailable() {
			names = append(names, name)
		}
	}
	return names
}

// First returns the first available backend, preferring the names in
// order if more than one is available.
func (r *Registry) First(preferredOrder ...string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range preferredOrder {
		if b, ok := r.backends[name]; ok && b.IsAvailable() {
			return b, nil
		}
	}
	for _, b := range r.backends {
		if b.IsAvailable() {
			return b, nil
		}
	}
	return nil, fmt.Errorf("mount: no available backend")
}
