package mount

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/moby/sys/mountinfo"
	"github.com/pkg/errors"
)

// StateVersion is the schema version written to the mount-state file (spec
// §4.13: "version = 1; backwards-compatible additive fields only").
const StateVersion = 1

// LockTimeout bounds how long Store methods wait on the advisory file lock
// before giving up (spec §4.13 "advisory OS file lock with a timeout
// (default 5 s)").
const LockTimeout = 5 * time.Second

// MountRecord is one managed mount's persisted record (spec §4.13).
type MountRecord struct {
	ID         string `json:"id"`
	VaultPath  string `json:"vault_path"`
	Mountpoint string `json:"mountpoint"`
	Backend    string `json:"backend"`
	PID        int    `json:"pid"`
	StartedAt  int64  `json:"started_at"`
	IsDaemon   bool   `json:"is_daemon"`
	SocketPath string `json:"socket_path,omitempty"`
}

type stateFile struct {
	Version int           `json:"version"`
	Mounts  []MountRecord `json:"mounts"`
}

// Store manages the JSON mount-state file shared by every CLI, GUI, and
// daemon process on the machine (spec §4.13).
type Store struct {
	path string
	lock *flock.Flock
}

// DefaultStatePath returns the standard per-user location for the
// mount-state file: oxcryptfs/mounts.json under os.UserConfigDir (which
// honours $XDG_CONFIG_HOME on Linux).
func DefaultStatePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "oxcryptfs", "mounts.json"), nil
}

// NewStore opens (without yet locking) the mount-state file at path,
// creating its parent directory if necessary.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return &Store{path: path, lock: flock.New(path + ".lock")}, nil
}

// withLock runs fn while holding the store's advisory file lock, bounded by
// LockTimeout (spec §4.13: "serialized by an advisory OS file lock with a
// timeout").
func (s *Store) withLock(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()

	ok, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return errors.Wrap(err, "couldn't acquire mount-state lock")
	}
	if !ok {
		return fmt.Errorf("mount: state lock %s busy for over %s", s.path, LockTimeout)
	}
	defer s.lock.Unlock()
	return fn()
}

func (s *Store) load() (stateFile, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return stateFile{Version: StateVersion}, nil
	}
	if err != nil {
		return stateFile{}, err
	}
	defer f.Close()

	var sf stateFile
	data, err := io.ReadAll(f)
	if err != nil {
		return stateFile{}, err
	}
	if len(data) == 0 {
		return stateFile{Version: StateVersion}, nil
	}
	if err := json.Unmarshal(data, &sf); err != nil {
		return stateFile{}, errors.Wrapf(err, "couldn't parse mount-state file %s", s.path)
	}
	return sf, nil
}

func (s *Store) save(sf stateFile) error {
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + fmt.Sprintf(".tmp-%d", os.Getpid())
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Insert records a new managed mount, first reaping stale entries and
// removing any pre-existing record for the same canonicalized mountpoint
// (spec §4.13: "inserting a new entry removes any pre-existing entry with
// the same mountpoint").
func (s *Store) Insert(rec MountRecord) error {
	canon, err := canonicalize(rec.Mountpoint)
	if err != nil {
		return err
	}
	rec.Mountpoint = canon

	return s.withLock(func() error {
		sf, err := s.load()
		if err != nil {
			return err
		}
		sf.Version = StateVersion
		sf.Mounts = reapStale(sf.Mounts)

		kept := sf.Mounts[:0]
		for _, m := range sf.Mounts {
			if m.Mountpoint != canon {
				kept = append(kept, m)
			}
		}
		sf.Mounts = append(kept, rec)
		return s.save(sf)
	})
}

// Remove deletes the record for mountpoint, reaping other stale entries
// along the way.
func (s *Store) Remove(mountpoint string) error {
	canon, err := canonicalize(mountpoint)
	if err != nil {
		canon = mountpoint
	}

	return s.withLock(func() error {
		sf, err := s.load()
		if err != nil {
			return err
		}
		sf.Version = StateVersion
		sf.Mounts = reapStale(sf.Mounts)

		kept := sf.Mounts[:0]
		for _, m := range sf.Mounts {
			if m.Mountpoint != canon {
				kept = append(kept, m)
			}
		}
		sf.Mounts = kept
		return s.save(sf)
	})
}

// List returns every currently live managed mount, purging stale entries
// first (spec §4.13: "Stale entries are purged on startup and
// opportunistically during any mutation").
func (s *Store) List() ([]MountRecord, error) {
	var out []MountRecord
	err := s.withLock(func() error {
		sf, err := s.load()
		if err != nil {
			return err
		}
		sf.Version = StateVersion
		live := reapStale(sf.Mounts)
		if len(live) != len(sf.Mounts) {
			if err := s.save(stateFile{Version: StateVersion, Mounts: live}); err != nil {
				return err
			}
		}
		out = live
		return nil
	})
	return out, err
}

// Watch runs onChange every time another process writes the mount-state
// file out from under this Store (e.g. a second CLI invocation's Insert or
// Remove), until ctx is done, so a long-running caller like `list --watch`
// can opportunistically re-scan without polling (spec §4.13: "stale
// entries are purged ... opportunistically during any mutation" — Watch
// extends that opportunism to readers in a different process).
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "couldn't start mount-state watcher")
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return errors.Wrapf(err, "couldn't watch %s", filepath.Dir(s.path))
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != s.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					onChange()
				}
			case <-w.Errors:
				// a watch error is not fatal to the caller; the next
				// List() call still reads the file directly.
			}
		}
	}()
	return nil
}

// reapStale drops every record whose pid is dead or whose mountpoint is no
// longer in the live system-mount set (spec §4.13 staleness definition).
func reapStale(records []MountRecord) []MountRecord {
	live, err := liveMountpoints()
	kept := records[:0]
	for _, m := range records {
		if !processAlive(m.PID) {
			continue
		}
		if err == nil && !live[m.Mountpoint] {
			continue
		}
		kept = append(kept, m)
	}
	if kept == nil {
		return []MountRecord{}
	}
	return kept
}

// liveMountpoints enumerates the system's current mount table, canonicalized
// the same way Insert/Remove canonicalize their argument (spec §4.13
// live-mount enumeration).
func liveMountpoints() (map[string]bool, error) {
	infos, err := mountinfo.GetMounts(nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(infos))
	for _, info := range infos {
		if canon, err := canonicalize(info.Mountpoint); err == nil {
			out[canon] = true
		} else {
			out[info.Mountpoint] = true
		}
	}
	return out, nil
}

// canonicalize resolves symlinks in path (e.g. macOS's /tmp -> /private/tmp)
// so mount-state keys and the live-mount set compare equal regardless of
// which alias a caller passed in.
func canonicalize(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			return "", err
		}
		return abs, nil
	}
	return resolved, nil
}
