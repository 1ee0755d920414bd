package ttlcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndGet(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Insert("a", 1)

	e, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, e.Value)
}

func TestEntryExpires(t *testing.T) {
	c := New[string, int](1 * time.Millisecond)
	c.Insert("a", 1)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry should be evicted on Get")
}

func TestInsertClearsNegativeEntry(t *testing.T) {
	c := WithNegativeCache[string, int](time.Minute, time.Minute)
	c.InsertNegative("a")
	assert.True(t, c.IsNegative("a"))

	c.Insert("a", 1)
	assert.False(t, c.IsNegative("a"))
}

func TestNegativeCacheDisabledByDefault(t *testing.T) {
	c := New[string, int](time.Minute)
	c.InsertNegative("a")
	assert.False(t, c.IsNegative("a"))
	assert.False(t, c.HasNegativeCache())
}

func TestNegativeEntryExpires(t *testing.T) {
	c := WithNegativeCache[string, int](time.Minute, 1*time.Millisecond)
	c.InsertNegative("a")
	time.Sleep(5 * time.Millisecond)
	assert.False(t, c.IsNegative("a"))
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Insert("a", 1)
	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestClearEmptiesBothCaches(t *testing.T) {
	c := WithNegativeCache[string, int](time.Minute, time.Minute)
	c.Insert("a", 1)
	c.InsertNegative("b")
	c.Clear()
	assert.True(t, c.IsEmpty())
	assert.Equal(t, 0, c.NegativeLen())
}

func TestInvalidateParentRemovesOnlyMatchingEntries(t *testing.T) {
	c := New[ParentNameKey, int](time.Minute)
	c.Insert(ParentNameKey{Parent: 1, Name: "a"}, 1)
	c.Insert(ParentNameKey{Parent: 2, Name: "b"}, 2)

	InvalidateParent(c, 1)

	_, ok := c.Get(ParentNameKey{Parent: 1, Name: "a"})
	assert.False(t, ok)
	_, ok = c.Get(ParentNameKey{Parent: 2, Name: "b"})
	assert.True(t, ok)
}

func TestInvalidatePrefixRemovesMatchingKeys(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Insert("/dir/a", 1)
	c.Insert("/dir/b", 2)
	c.Insert("/other", 3)

	InvalidatePrefix(c, "/dir/")

	_, ok := c.Get("/dir/a")
	assert.False(t, ok)
	_, ok = c.Get("/other")
	assert.True(t, ok)
}

func TestCleanupExpiredRemovesOnlyExpired(t *testing.T) {
	c := New[string, int](1 * time.Millisecond)
	c.Insert("expired", 1)
	c.InsertWithTTL("fresh", 2, time.Minute)
	time.Sleep(5 * time.Millisecond)

	c.CleanupExpired()

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("fresh")
	assert.True(t, ok)
}

func TestTimeRemainingNeverNegative(t *testing.T) {
	c := New[string, int](1 * time.Millisecond)
	c.Insert("a", 1)
	time.Sleep(5 * time.Millisecond)
	e := Entry[int]{}
	assert.Equal(t, time.Duration(0), e.TimeRemaining())
}
