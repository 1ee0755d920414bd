package pathtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxcrypt/oxcryptfs/vault"
)

func TestWithRootSeedsRootEntry(t *testing.T) {
	tbl := WithRoot[string](1, 2, "root-entry")

	id, ok := tbl.GetID(vault.RootPath)
	require.True(t, ok)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, uint64(1), tbl.RootID())
}

func TestGetOrInsertWithAllocatesOnce(t *testing.T) {
	tbl := New[string](1, 2)
	path := vault.RootPath.Join("a.txt")

	id1 := tbl.GetOrInsertWith(path, func() string { return "entry" })
	id2 := tbl.GetOrInsertWith(path, func() string { return "should-not-be-called" })

	assert.Equal(t, id1, id2)
	entry, ok := tbl.Get(id1)
	require.True(t, ok)
	assert.Equal(t, "entry", entry)
}

func TestRootCannotBeRemoved(t *testing.T) {
	tbl := WithRoot[string](1, 2, "root")

	_, _, ok := tbl.RemoveByPath(vault.RootPath)
	assert.False(t, ok)

	_, ok = tbl.RemoveByID(1)
	assert.False(t, ok)
}

func TestRemoveByPathDeletesBothDirections(t *testing.T) {
	tbl := New[string](1, 2)
	path := vault.RootPath.Join("a.txt")
	id := tbl.GetOrInsertWith(path, func() string { return "entry" })

	removedID, entry, ok := tbl.RemoveByPath(path)
	require.True(t, ok)
	assert.Equal(t, id, removedID)
	assert.Equal(t, "entry", entry)

	_, ok = tbl.Get(id)
	assert.False(t, ok)
	_, ok = tbl.GetID(path)
	assert.False(t, ok)
}

func TestUpdatePathMovesMappingAndRewritesEntry(t *testing.T) {
	tbl := New[string](1, 2)
	oldPath := vault.RootPath.Join("old.txt")
	newPath := vault.RootPath.Join("new.txt")
	id := tbl.GetOrInsertWith(oldPath, func() string { return "old.txt" })

	tbl.UpdatePath(id, oldPath, newPath, func(e *string, p vault.VaultPath) {
		*e = string(p)
	})

	_, ok := tbl.GetID(oldPath)
	assert.False(t, ok)

	newID, ok := tbl.GetID(newPath)
	require.True(t, ok)
	assert.Equal(t, id, newID)

	entry, _ := tbl.Get(id)
	assert.Equal(t, string(newPath), entry)
}

func TestSetPathMappingSwapsIDsForExchange(t *testing.T) {
	tbl := New[string](1, 2)
	pathA := vault.RootPath.Join("a.txt")
	pathB := vault.RootPath.Join("b.txt")
	idA := tbl.GetOrInsertWith(pathA, func() string { return "a" })
	idB := tbl.GetOrInsertWith(pathB, func() string { return "b" })

	tbl.SetPathMapping(pathA, idB)
	tbl.SetPathMapping(pathB, idA)

	gotA, _ := tbl.GetID(pathA)
	gotB, _ := tbl.GetID(pathB)
	assert.Equal(t, idB, gotA)
	assert.Equal(t, idA, gotB)
}

func TestInvalidateAllKeepsRoot(t *testing.T) {
	tbl := WithRoot[string](1, 2, "root")
	tbl.GetOrInsertWith(vault.RootPath.Join("a.txt"), func() string { return "a" })
	tbl.GetOrInsertWith(vault.RootPath.Join("b.txt"), func() string { return "b" })
	require.Equal(t, 3, tbl.Len())

	tbl.InvalidateAll()

	assert.Equal(t, 1, tbl.Len())
	_, ok := tbl.GetID(vault.RootPath)
	assert.True(t, ok)
}

func TestIsEmptyConsidersOnlyRootAsEmpty(t *testing.T) {
	tbl := WithRoot[string](1, 2, "root")
	assert.True(t, tbl.IsEmpty())

	tbl.GetOrInsertWith(vault.RootPath.Join("a.txt"), func() string { return "a" })
	assert.False(t, tbl.IsEmpty())
}
