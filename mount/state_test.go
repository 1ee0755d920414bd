package mount

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "mounts.json"))
	require.NoError(t, err)
	return store
}

func TestInsertAndListRoundTrip(t *testing.T) {
	store := newTestStore(t)
	// "/" is always in the live mount table, so only the pid decides staleness
	mountpoint := "/"

	rec := MountRecord{
		ID:         "m1",
		VaultPath:  "/vaults/a",
		Mountpoint: mountpoint,
		Backend:    "fuse",
		PID:        os.Getpid(),
		StartedAt:  1000,
	}
	require.NoError(t, store.Insert(rec))

	mounts, err := store.List()
	require.NoError(t, err)
	require.Len(t, mounts, 1)
	assert.Equal(t, "m1", mounts[0].ID)
	assert.Equal(t, "fuse", mounts[0].Backend)
}

func TestInsertReplacesExistingEntryForSameMountpoint(t *testing.T) {
	store := newTestStore(t)
	mountpoint := "/"

	require.NoError(t, store.Insert(MountRecord{ID: "m1", Mountpoint: mountpoint, PID: os.Getpid()}))
	require.NoError(t, store.Insert(MountRecord{ID: "m2", Mountpoint: mountpoint, PID: os.Getpid()}))

	mounts, err := store.List()
	require.NoError(t, err)
	require.Len(t, mounts, 1)
	assert.Equal(t, "m2", mounts[0].ID)
}

func TestRemoveDeletesRecord(t *testing.T) {
	store := newTestStore(t)
	mountpoint := t.TempDir()

	require.NoError(t, store.Insert(MountRecord{ID: "m1", Mountpoint: mountpoint, PID: os.Getpid()}))
	require.NoError(t, store.Remove(mountpoint))

	mounts, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, mounts)
}

func TestStaleEntryWithDeadPIDIsReaped(t *testing.T) {
	store := newTestStore(t)
	mountpoint := "/"

	// a pid this unlikely to be alive in any test environment
	require.NoError(t, store.Insert(MountRecord{ID: "dead", Mountpoint: mountpoint, PID: 1 << 30}))

	mounts, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, mounts, "entry with a dead pid must be reaped")
}

func TestCanonicalizeResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(target, 0o700))
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	canon, err := canonicalize(link)
	require.NoError(t, err)

	wantCanon, err := canonicalize(target)
	require.NoError(t, err)
	assert.Equal(t, wantCanon, canon)
}
