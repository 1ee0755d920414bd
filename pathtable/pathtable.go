// Package pathtable provides a thread-safe bidirectional mapping between
// cleartext vault paths and numeric ids (spec §4.10), used by the FUSE
// mount backend for inode allocation. Grounded on
// original_source/crates/oxcrypt-mount/src/path_mapper.rs; the Rust
// original generalizes over both the id and entry type, but every backend
// in the original_source corpus instantiates Id=u64, so this port fixes
// the id type to uint64 and generalizes only over Entry.
package pathtable

import (
	"sync"

	"github.com/oxcrypt/oxcryptfs/vault"
)

// Table is a thread-safe bidirectional map between VaultPaths and
// uint64 ids, with one reserved root id that can never be removed.
type Table[Entry any] struct {
	mu        sync.Mutex
	pathToID  map[vault.VaultPath]uint64
	idToEntry map[uint64]Entry
	nextID    uint64
	rootID    uint64
}

// New constructs a Table with no entries, allocating ids starting at
// firstID; rootID is reserved (FUSE: New(1, 2); FSKit-style backends
// needing id 1 reserved externally: New(2, 3)).
func New[Entry any](rootID, firstID uint64) *Table[Entry] {
	return &Table[Entry]{
		pathToID:  make(map[vault.VaultPath]uint64),
		idToEntry: make(map[uint64]Entry),
		nextID:    firstID,
		rootID:    rootID,
	}
}

// WithRoot constructs a Table with the root entry pre-inserted.
func WithRoot[Entry any](rootID, firstID uint64, rootEntry Entry) *Table[Entry] {
	t := New[Entry](rootID, firstID)
	t.pathToID[vault.RootPath] = rootID
	t.idToEntry[rootID] = rootEntry
	return t
}

// RootID returns the table's reserved root id.
func (t *Table[Entry]) RootID() uint64 { return t.rootID }

func (t *Table[Entry]) allocateID() uint64 {
	id := t.nextID
	t.nextID++
	return id
}

// GetOrInsertWith returns the existing id for path, or allocates a new one
// and calls makeEntry to build the stored entry.
func (t *Table[Entry]) GetOrInsertWith(path vault.VaultPath, makeEntry func() Entry) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.pathToID[path]; ok {
		return id
	}
	id := t.allocateID()
	t.pathToID[path] = id
	t.idToEntry[id] = makeEntry()
	return id
}

// GetID returns the id for path without inserting.
func (t *Table[Entry]) GetID(path vault.VaultPath) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.pathToID[path]
	return id, ok
}

// Get returns the entry for id.
func (t *Table[Entry]) Get(id uint64) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.idToEntry[id]
	return e, ok
}

// Update applies f to the entry stored under id.
func (t *Table[Entry]) Update(id uint64, f func(*Entry)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.idToEntry[id]
	if !ok {
		return false
	}
	f(&e)
	t.idToEntry[id] = e
	return true
}

// Contains reports whether id has a stored entry.
func (t *Table[Entry]) Contains(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.idToEntry[id]
	return ok
}

// RemoveByPath removes the entry mapped to path, returning its id and
// entry. The root path can never be removed.
func (t *Table[Entry]) RemoveByPath(path vault.VaultPath) (uint64, Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.pathToID[path]
	if !ok {
		var zero Entry
		return 0, zero, false
	}
	if id == t.rootID {
		var zero Entry
		return 0, zero, false
	}
	delete(t.pathToID, path)
	entry := t.idToEntry[id]
	delete(t.idToEntry, id)
	return id, entry, true
}

// RemoveByID removes the entry with id, returning it. The root id can
// never be removed.
func (t *Table[Entry]) RemoveByID(id uint64) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == t.rootID {
		var zero Entry
		return zero, false
	}
	entry, ok := t.idToEntry[id]
	if !ok {
		var zero Entry
		return zero, false
	}
	delete(t.idToEntry, id)
	for p, mappedID := range t.pathToID {
		if mappedID == id {
			delete(t.pathToID, p)
		}
	}
	return entry, true
}

// InvalidatePath removes the path-to-id mapping without removing the
// entry, for use after a delete where the entry must survive until the
// kernel explicitly releases it (FUSE forget).
func (t *Table[Entry]) InvalidatePath(path vault.VaultPath) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pathToID, path)
}

// UpdatePath atomically moves id's path mapping from oldPath to newPath
// and lets updateEntry rewrite the stored entry's embedded path (used
// after rename, spec §4.6 rename_file/move_file).
func (t *Table[Entry]) UpdatePath(id uint64, oldPath, newPath vault.VaultPath, updateEntry func(*Entry, vault.VaultPath)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pathToID, oldPath)
	t.pathToID[newPath] = id
	if entry, ok := t.idToEntry[id]; ok {
		updateEntry(&entry, newPath)
		t.idToEntry[id] = entry
	}
}

// SetPathMapping directly sets the path-to-id mapping, for atomic path
// swaps (spec §4.6 exchange) where two paths trade ids. Does not touch the
// entries themselves; call UpdatePath-style entry fixups separately.
func (t *Table[Entry]) SetPathMapping(path vault.VaultPath, id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pathToID[path] = id
}

// InvalidateAll removes every entry except root, for use when the vault's
// on-disk state may have changed out from under the table.
func (t *Table[Entry]) InvalidateAll() {
	t.mu.Lock()
	ids := make([]uint64, 0, len(t.idToEntry))
	for id := range t.idToEntry {
		if id != t.rootID {
			ids = append(ids, id)
		}
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.RemoveByID(id)
	}
}

// Len returns the number of entries in the table (including root).
func (t *Table[Entry]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.idToEntry)
}

// IsEmpty reports whether the table holds only the root entry.
func (t *Table[Entry]) IsEmpty() bool { return t.Len() <= 1 }
