// Package cryptolib implements the Cryptomator vault cryptographic core:
// memory-protected key storage, file header/content encryption, filename
// encryption, the RFC 3394 key-wrap masterkey file, and the signed vault
// config. Grounded on backend/cryptomator (rclone) and, for the
// memory-protection discipline, oxidized-cryptolib/src/crypto/keys.rs.
package cryptolib

import (
	"crypto/subtle"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// KeyAccessError is returned when scoped key access fails, either because
// the underlying memory protection could not be toggled or because a
// previous access panicked while holding the lock.
type KeyAccessError struct {
	Op  string
	Err error
}

func (e *KeyAccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cryptolib: key access failed during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cryptolib: key access failed during %s", e.Op)
}

func (e *KeyAccessError) Unwrap() error { return e.Err }

// ErrLockPoisoned is returned by scoped accessors once a prior access has
// panicked while holding the field lock: the key is permanently unreadable
// from that point on, matching the Rust original's poisoned-lock semantics.
var ErrLockPoisoned = &KeyAccessError{Op: "poisoned"}

// protectedField holds one 32-byte secret, mlock'd and mprotect(PROT_NONE)'d
// at rest. It is toggled to PROT_READ only for the duration of a scoped
// callback and zeroed when the MasterKey is dropped.
type protectedField struct {
	mu       sync.Mutex
	poisoned bool
	buf      []byte // mmap'd, length 32, rounded internally to a page by the allocator
}

func newProtectedField(secret [32]byte) (*protectedField, error) {
	buf, err := unix.Mmap(-1, 0, unix.Getpagesize(), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, &KeyAccessError{Op: "mmap", Err: err}
	}
	copy(buf, secret[:])
	if err := unix.Mlock(buf); err != nil {
		_ = unix.Munmap(buf)
		return nil, &KeyAccessError{Op: "mlock", Err: err}
	}
	_ = unix.Madvise(buf, unix.MADV_DONTDUMP)
	if err := unix.Mprotect(buf, unix.PROT_NONE); err != nil {
		_ = unix.Munlock(buf)
		_ = unix.Munmap(buf)
		return nil, &KeyAccessError{Op: "mprotect", Err: err}
	}
	return &protectedField{buf: buf[:32]}, nil
}

// withRead elevates the field to PROT_READ, invokes f with the 32 raw
// bytes, and revokes access again before returning. f must not retain the
// slice it is given.
func (p *protectedField) withRead(f func(key []byte) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.poisoned {
		return ErrLockPoisoned
	}

	full := p.buf[:32:32]
	fullPage := full[:cap(full)]
	_ = fullPage
	if err := unix.Mprotect(pageOf(p.buf), unix.PROT_READ); err != nil {
		return &KeyAccessError{Op: "mprotect-read", Err: err}
	}

	done := make(chan struct{})
	var callErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.poisoned = true
				callErr = fmt.Errorf("cryptolib: scoped key access panicked: %v", r)
			}
			close(done)
		}()
		callErr = f(p.buf)
	}()
	<-done

	if rerr := unix.Mprotect(pageOf(p.buf), unix.PROT_NONE); rerr != nil && callErr == nil {
		callErr = &KeyAccessError{Op: "mprotect-none", Err: rerr}
	}
	return callErr
}

func pageOf(b []byte) []byte {
	pageSize := unix.Getpagesize()
	n := (len(b) + pageSize - 1) / pageSize * pageSize
	return b[:n:n]
}

func (p *protectedField) zero() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.poisoned || p.buf == nil {
		return
	}
	_ = unix.Mprotect(pageOf(p.buf), unix.PROT_READ|unix.PROT_WRITE)
	for i := range p.buf {
		p.buf[i] = 0
	}
	_ = unix.Munlock(p.buf)
	_ = unix.Munmap(pageOf(p.buf))
	p.buf = nil
}

// MasterKey holds a Cryptomator vault's AES and MAC master keys behind
// memory protection, with scoped callback access only (§4.1).
type MasterKey struct {
	aes *protectedField
	mac *protectedField
}

// NewMasterKeyFromRaw constructs a MasterKey from two 32-byte secrets. The
// caller should zero the inputs after this call returns.
func NewMasterKeyFromRaw(aesKey, macKey [32]byte) (*MasterKey, error) {
	aes, err := newProtectedField(aesKey)
	if err != nil {
		return nil, err
	}
	mac, err := newProtectedField(macKey)
	if err != nil {
		return nil, err
	}
	return &MasterKey{aes: aes, mac: mac}, nil
}

// Close zeroes and releases both protected fields. Safe to call more than
// once.
func (m *MasterKey) Close() {
	m.aes.zero()
	m.mac.zero()
}

// WithAESKey provides read-only access to the 32-byte AES key.
func (m *MasterKey) WithAESKey(f func(key []byte) error) error {
	return m.aes.withRead(f)
}

// WithMACKey provides read-only access to the 32-byte MAC key.
func (m *MasterKey) WithMACKey(f func(key []byte) error) error {
	return m.mac.withRead(f)
}

// WithRawKey provides access to the combined 64-byte key (aes‖mac), the
// layout used as the HS256 key when signing and verifying vault.cryptomator.
func (m *MasterKey) WithRawKey(f func(key []byte) error) error {
	var combined [64]byte
	defer zeroize(combined[:])
	err := m.aes.withRead(func(k []byte) error {
		copy(combined[:32], k)
		return nil
	})
	if err != nil {
		return err
	}
	err = m.mac.withRead(func(k []byte) error {
		copy(combined[32:], k)
		return nil
	})
	if err != nil {
		return err
	}
	return f(combined[:])
}

// WithSIVKey provides access to the combined 64-byte key in AES-SIV order
// (mac‖aes), matching Cryptomator's `NewAESCMACSIV(mac||aes)` convention.
func (m *MasterKey) WithSIVKey(f func(key []byte) error) error {
	var combined [64]byte
	defer zeroize(combined[:])
	err := m.mac.withRead(func(k []byte) error {
		copy(combined[:32], k)
		return nil
	})
	if err != nil {
		return err
	}
	err = m.aes.withRead(func(k []byte) error {
		copy(combined[32:], k)
		return nil
	})
	if err != nil {
		return err
	}
	return f(combined[:])
}

func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// constantTimeEqual wraps crypto/subtle for the timing-sensitive comparisons
// required by spec §4.2.8 (RFC 3394 IV check, MAC/tag verification paths
// that don't already go through an AEAD's constant-time Open).
func constantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
