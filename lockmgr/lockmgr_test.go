package lockmgr

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxcrypt/oxcryptfs/vault"
)

func TestDirectoryWriteExcludesReaders(t *testing.T) {
	m := New()
	dir := vault.DirID("dir-a")

	wg := m.DirectoryWrite(dir)

	var entered atomic.Bool
	done := make(chan struct{})
	go func() {
		g := m.DirectoryRead(dir)
		entered.Store(true)
		g.Unlock()
		close(done)
	}()

	assert.False(t, entered.Load())
	wg.Unlock()
	<-done
	assert.True(t, entered.Load())
}

func TestFileLocksAreIndependentPerDirectory(t *testing.T) {
	m := New()
	g1 := m.FileWrite(vault.DirID("dir-a"), "f.txt")
	g2 := m.FileWrite(vault.DirID("dir-b"), "f.txt")
	g1.Unlock()
	g2.Unlock()
	assert.Equal(t, 2, m.FileLockCount())
}

func TestLockDirectoriesWriteOrderedDedupsAndSorts(t *testing.T) {
	m := New()
	guards := m.LockDirectoriesWriteOrdered([]vault.DirID{"c", "a", "a", "b"})
	require.Len(t, guards, 3)
	assert.Equal(t, vault.DirID("a"), guards[0].Dir)
	assert.Equal(t, vault.DirID("b"), guards[1].Dir)
	assert.Equal(t, vault.DirID("c"), guards[2].Dir)
	for _, g := range guards {
		g.Guard.Unlock()
	}
}

func TestLockFilesWriteOrderedDedupsAndSorts(t *testing.T) {
	m := New()
	guards := m.LockFilesWriteOrdered(vault.DirID("dir-a"), []string{"z.txt", "a.txt", "a.txt"})
	require.Len(t, guards, 2)
	assert.Equal(t, "a.txt", guards[0].Name)
	assert.Equal(t, "z.txt", guards[1].Name)
	for _, g := range guards {
		g.Guard.Unlock()
	}
}

func TestCleanupUnusedLocksReclaimsUnreferencedEntries(t *testing.T) {
	m := New()
	g := m.DirectoryRead(vault.DirID("dir-a"))
	m.CleanupUnusedLocks()
	assert.Equal(t, 1, m.DirectoryLockCount(), "still referenced, must not be reclaimed")

	g.Unlock()
	m.CleanupUnusedLocks()
	assert.Equal(t, 0, m.DirectoryLockCount())
}

func TestUnlockIsIdempotent(t *testing.T) {
	m := New()
	g := m.DirectoryWrite(vault.DirID("dir-a"))
	assert.NotPanics(t, func() {
		g.Unlock()
		g.Unlock()
	})
}

func TestConcurrentFileWritesToSameKeySerialize(t *testing.T) {
	m := New()
	dir := vault.DirID("dir-a")
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := m.FileWrite(dir, "shared.txt")
			counter++
			g.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
