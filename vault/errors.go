package vault

import (
	"errors"
	"fmt"
)

// Error taxonomy for vault operations (spec §7). Each constructor wraps a
// sentinel so callers can both errors.Is against the category and read the
// offending path/detail back out.

// ErrNotFound is returned when a cleartext path cannot be resolved (spec §7
// NotFound).
var ErrNotFound = errors.New("vault: path not found")

// ErrNotADirectory is returned when a file-shaped entry is encountered
// where a directory was expected during resolution.
var ErrNotADirectory = errors.New("vault: not a directory")

// ErrAlreadyExists is returned when a create operation targets a name that
// already has an entry (spec §7 AlreadyExists).
var ErrAlreadyExists = errors.New("vault: already exists")

// ErrNotEmpty is returned when a directory delete targets a non-empty
// directory (spec §7 NotEmpty).
var ErrNotEmpty = errors.New("vault: directory not empty")

// ErrInvalid is returned when an operation is applied to the wrong kind of
// leaf: opening a symlink as a regular file, or reading a non-symlink as a
// link (spec §7 Invalid). Names are not otherwise validated.
var ErrInvalid = errors.New("vault: invalid argument")

// ErrIntegrityViolation is returned when decryption, a SIV/AAD binding, or
// an HMAC tag fails to authenticate (spec §7 IntegrityViolation).
var ErrIntegrityViolation = errors.New("vault: integrity violation")

// ErrNotSupported is returned for operations the vault format or platform
// does not support (spec §7 NotSupported, e.g. atomic exchange on any
// platform other than Linux).
var ErrNotSupported = errors.New("vault: not supported")

// ErrTimeout is returned when an operation exceeds its deadline (spec §7
// Timeout).
var ErrTimeout = errors.New("vault: operation timed out")

// ErrQueueFull is returned when the executor's submission queue rejects a
// job (spec §7 QueueFull).
var ErrQueueFull = errors.New("vault: queue full")

// ErrLockPoisoned is returned when a previously panicked lock is reused
// (spec §7 LockPoisoned); see also cryptolib.ErrLockPoisoned for the
// key-store-specific case.
var ErrLockPoisoned = errors.New("vault: lock poisoned")

// ErrInvalidPassword is returned when a vault's masterkey.cryptomator
// cannot be unwrapped with the supplied passphrase (spec §7
// InvalidPassword).
var ErrInvalidPassword = errors.New("vault: invalid password")

// ErrUnsupportedFormat is returned when vault.cryptomator names a format
// version or cipher combo this build does not implement (spec §7
// UnsupportedFormat).
var ErrUnsupportedFormat = errors.New("vault: unsupported vault format")

// ErrMountFailed is returned when a backend's Mount/MountWithOptions
// cannot bring the filesystem up (spec §7 MountFailed{reason}).
var ErrMountFailed = errors.New("vault: mount failed")

// ErrUnmountFailed is returned when neither a graceful unmount nor the
// platform force-unmount fallback could tear a mount down (spec §7
// UnmountFailed{reason}).
var ErrUnmountFailed = errors.New("vault: unmount failed")

// ErrWorkerPanic names the spec §7 WorkerPanic category. The executor does
// not recover a panicking job, and no code path in this module returns it.
var ErrWorkerPanic = errors.New("vault: worker panic")

// ReasonError annotates ErrMountFailed/ErrUnmountFailed with the
// human-readable cause, the way backend/cryptomator.go's operations wrap
// fs errors with remote-specific context.
type ReasonError struct {
	Err    error
	Reason string
}

func (e *ReasonError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Reason)
}

func (e *ReasonError) Unwrap() error { return e.Err }

// NewMountFailed builds an ErrMountFailed carrying reason.
func NewMountFailed(reason string) error {
	return &ReasonError{Err: ErrMountFailed, Reason: reason}
}

// NewUnmountFailed builds an ErrUnmountFailed carrying reason.
func NewUnmountFailed(reason string) error {
	return &ReasonError{Err: ErrUnmountFailed, Reason: reason}
}

// PathError annotates an error with the VaultPath it concerns, the way
// backend/cryptomator.go wraps fs.ErrorObjectNotFound with its remote.
type PathError struct {
	Op   string
	Path VaultPath
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("vault: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// WrapPathError builds a *PathError tying a sentinel error to the path and
// operation that failed.
func WrapPathError(op string, path VaultPath, err error) error {
	if err == nil {
		return nil
	}
	return &PathError{Op: op, Path: path, Err: err}
}

// IntegrityViolation records the location of an authentication failure
// (spec §7 IntegrityViolation{where}).
type IntegrityViolation struct {
	Where string
}

func (e *IntegrityViolation) Error() string {
	return fmt.Sprintf("vault: integrity violation at %s", e.Where)
}

func (e *IntegrityViolation) Unwrap() error { return ErrIntegrityViolation }

// NewIntegrityViolation builds an IntegrityViolation naming where the
// authentication check failed (e.g. "chunk 3 of <path>", "filename SIV").
func NewIntegrityViolation(where string) error {
	return &IntegrityViolation{Where: where}
}
