package commands

import "github.com/oxcrypt/oxcryptfs/mount"

var statePath string

// openStateStore opens the mount-state store at the --state-file override,
// or the default per-user location.
func openStateStore() (*mount.Store, error) {
	path := statePath
	if path == "" {
		var err error
		path, err = mount.DefaultStatePath()
		if err != nil {
			return nil, err
		}
	}
	return mount.NewStore(path)
}
