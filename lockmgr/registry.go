package lockmgr

import (
	"path/filepath"
	"sync"
)

// Registry maps canonicalized vault paths to their shared Manager, so that
// every Vault opened against the same on-disk directory synchronizes
// through the same locks (spec §4.5 VaultLockRegistry).
type Registry struct {
	mu       sync.Mutex
	managers map[string]*Manager
}

var (
	globalRegistryOnce sync.Once
	globalRegistry     *Registry
)

// Global returns the process-wide lock registry singleton.
func Global() *Registry {
	globalRegistryOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// NewRegistry constructs an empty Registry. Most callers want Global.
func NewRegistry() *Registry {
	return &Registry{managers: make(map[string]*Manager)}
}

// GetOrCreate returns the Manager for vaultPath, creating one if absent.
// The path is canonicalized (symlinks resolved) so that distinct spellings
// of the same vault directory share a Manager.
func (r *Registry) GetOrCreate(vaultPath string) *Manager {
	canon := canonicalize(vaultPath)

	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[canon]
	if !ok {
		m = New()
		r.managers[canon] = m
	}
	return m
}

// Remove drops the Manager registered for vaultPath. Existing references
// held by in-flight operations remain valid until they finish.
func (r *Registry) Remove(vaultPath string) {
	canon := canonicalize(vaultPath)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.managers, canon)
}

// Len returns the number of registered managers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

// Clear removes all registered managers. Intended for tests and shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers = make(map[string]*Manager)
}

func canonicalize(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs
	}
	return resolved
}
