package handletable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableInsertGetRemove(t *testing.T) {
	tbl := New[string, int]()
	tbl.Insert("a", 1)

	v, ok := tbl.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	removed, ok := tbl.Remove("a")
	require.True(t, ok)
	assert.Equal(t, 1, removed)
	assert.False(t, tbl.Contains("a"))
}

func TestTableUpdateMutatesInPlace(t *testing.T) {
	tbl := New[string, int]()
	tbl.Insert("a", 1)

	ok := tbl.Update("a", func(v *int) { *v += 10 })
	require.True(t, ok)

	v, _ := tbl.Get("a")
	assert.Equal(t, 11, v)
}

func TestTableUpdateMissingKeyReturnsFalse(t *testing.T) {
	tbl := New[string, int]()
	ok := tbl.Update("missing", func(v *int) { *v = 99 })
	assert.False(t, ok)
}

func TestTableRetainKeepsOnlyMatching(t *testing.T) {
	tbl := New[string, int]()
	tbl.Insert("a", 1)
	tbl.Insert("b", 2)
	tbl.Retain(func(k string, v *int) bool { return *v > 1 })

	assert.False(t, tbl.Contains("a"))
	assert.True(t, tbl.Contains("b"))
	assert.Equal(t, 1, tbl.Len())
}

func TestTableClear(t *testing.T) {
	tbl := New[string, int]()
	tbl.Insert("a", 1)
	tbl.Clear()
	assert.True(t, tbl.IsEmpty())
}

func TestAutoTableAllocatesStartingAtOne(t *testing.T) {
	at := NewAutoTable[string]()
	id1 := at.InsertAuto("first")
	id2 := at.InsertAuto("second")

	assert.Equal(t, uint64(1), id1)
	assert.Equal(t, uint64(2), id2)

	v, ok := at.Get(id1)
	require.True(t, ok)
	assert.Equal(t, "first", v)
}

func TestAutoTableNeverReturnsZero(t *testing.T) {
	at := NewAutoTable[string]()
	for i := 0; i < 5; i++ {
		id := at.InsertAuto("x")
		assert.NotZero(t, id)
	}
}

func TestAutoTableExplicitInsertThenRemove(t *testing.T) {
	at := NewAutoTable[string]()
	at.Insert(42, "explicit")

	v, ok := at.Get(42)
	require.True(t, ok)
	assert.Equal(t, "explicit", v)

	_, ok = at.Remove(42)
	require.True(t, ok)
	assert.False(t, at.Contains(42))
}

func TestAutoTableClearDoesNotResetCounter(t *testing.T) {
	at := NewAutoTable[string]()
	at.InsertAuto("a")
	at.InsertAuto("b")
	at.Clear()

	id := at.InsertAuto("c")
	assert.Equal(t, uint64(3), id, "counter must continue after Clear")
}
