package mount

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// UnmountTimeout is how long Unmount waits for a graceful unmount before
// invoking the platform's force-unmount fallback (spec §4.12 MountHandle
// drop).
const UnmountTimeout = 5 * time.Second

// ReadinessTimeout bounds every stat(2) call made while confirming a mount
// is live, so a ghost mount cannot hang the caller (spec §4.12
// mount-readiness check).
const ReadinessTimeout = 2 * time.Second

// unmounter is implemented by each backend's live mount session (e.g. a
// *fuse.Conn wrapper); Handle drives it without depending on any concrete
// backend package.
type unmounter interface {
	// unmount requests a graceful unmount (e.g. fusermount -u /
	// fuse.Unmount) and waits for the serve loop to exit.
	unmount() error
	// forceUnmount invokes the platform-specific forced unmount.
	forceUnmount() error
}

// Handle is a live mount session (spec §4.12 MountHandle): mountpoint,
// backend name, stats, and the close-once unmount machinery.
type Handle struct {
	mountpointPath string
	backendName    string
	vaultID        string
	stats          *VaultStats
	locks          *LockMetrics
	session        unmounter

	closeOnce sync.Once
	closeErr  error
}

func newHandle(mountpoint, backendName, vaultID string, session unmounter) *Handle {
	return &Handle{
		mountpointPath: mountpoint,
		backendName:    backendName,
		vaultID:        vaultID,
		stats:          NewVaultStats(),
		locks:          NewLockMetrics(),
		session:        session,
	}
}

// Mountpoint returns the filesystem path the vault is mounted at.
func (h *Handle) Mountpoint() string { return h.mountpointPath }

// Stats returns the handle's live traffic counters.
func (h *Handle) Stats() *VaultStats { return h.stats }

// LockMetrics returns the handle's live lock-contention counters.
func (h *Handle) LockMetrics() *LockMetrics { return h.locks }

// Unmount gracefully unmounts, falling back to a platform force-unmount if
// the graceful path does not complete within UnmountTimeout (spec §4.12:
// "on drop performs unmount-with-timeout").
func (h *Handle) Unmount() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.unmountWithTimeout()
	})
	return h.closeErr
}

// ForceUnmount immediately invokes the platform force-unmount without
// attempting a graceful unmount first.
func (h *Handle) ForceUnmount() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.session.forceUnmount()
	})
	return h.closeErr
}

func (h *Handle) unmountWithTimeout() error {
	done := make(chan error, 1)
	go func() { done <- h.session.unmount() }()

	select {
	case err := <-done:
		return err
	case <-time.After(UnmountTimeout):
		if err := h.session.forceUnmount(); err != nil {
			return fmt.Errorf("mount: graceful unmount of %s timed out and force unmount failed: %w", h.mountpointPath, err)
		}
		<-done // reap the original goroutine once the kernel tears the mount down
		return nil
	}
}

// confirmMounted compares the device id of mountpoint to its parent
// directory: a mount is live iff they differ (spec §4.12 mount-readiness
// check). Every stat(2) in this path is bounded by ReadinessTimeout so a
// wedged filesystem at mountpoint cannot hang the caller.
func confirmMounted(mountpoint string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ReadinessTimeout)
	defer cancel()

	type result struct {
		mounted bool
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		mounted, err := devicesDiffer(mountpoint, parentOf(mountpoint))
		ch <- result{mounted, err}
	}()

	select {
	case r := <-ch:
		return r.mounted, r.err
	case <-ctx.Done():
		return false, fmt.Errorf("mount: readiness check of %s timed out", mountpoint)
	}
}

func parentOf(p string) string {
	dir := p
	for len(dir) > 1 && dir[len(dir)-1] == os.PathSeparator {
		dir = dir[:len(dir)-1]
	}
	i := len(dir) - 1
	for i >= 0 && dir[i] != os.PathSeparator {
		i--
	}
	if i <= 0 {
		return string(os.PathSeparator)
	}
	return dir[:i]
}

// FindAvailableMountpoint returns requested if it is not already a mount
// point and can be created; otherwise it appends a millisecond timestamp
// and retries, monotonically, without probing the system mount table
// (spec §4.12 find-available-mountpoint).
func FindAvailableMountpoint(requested string) (string, error) {
	candidate := requested
	for attempt := 0; attempt < 8; attempt++ {
		if err := os.MkdirAll(candidate, 0o700); err == nil {
			mounted, _ := confirmMounted(candidate)
			if !mounted {
				return candidate, nil
			}
		}
		candidate = fmt.Sprintf("%s-%d", requested, time.Now().UnixMilli())
	}
	return "", fmt.Errorf("mount: could not find an available mountpoint near %s", requested)
}
