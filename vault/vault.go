package vault

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxcrypt/oxcryptfs/cryptolib"
)

// Vault is an unlocked Cryptomator vault: its root directory, master key,
// signed configuration, and the Storage/Resolver pair derived from them
// (spec §4.4 unlock/create).
type Vault struct {
	Root      string
	MasterKey *cryptolib.MasterKey
	Config    cryptolib.VaultConfig
	Storage   *Storage
	Resolver  *Resolver
}

// Close zeroes the vault's master key. The Vault must not be used
// afterwards.
func (v *Vault) Close() {
	v.MasterKey.Close()
}

// Open unlocks an existing vault directory at root with passphrase (spec
// §4.4 step-by-step: read vault.cryptomator, resolve its kid to
// masterkey.cryptomator, unwrap keys, verify format, build the content
// Cryptor).
func Open(root, passphrase string) (*Vault, error) {
	configPath := filepath.Join(root, cryptolib.VaultConfigFileName)
	configBytes, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("vault: read %s: %w", configPath, err)
	}

	var masterKey *cryptolib.MasterKey
	cfg, err := cryptolib.UnmarshalVaultConfig(configBytes, func(masterKeyName string) (*cryptolib.MasterKey, error) {
		mkPath := filepath.Join(root, masterKeyName)
		f, openErr := os.Open(mkPath)
		if openErr != nil {
			return nil, fmt.Errorf("vault: read %s: %w", mkPath, openErr)
		}
		defer f.Close()

		mk, unmarshalErr := cryptolib.UnmarshalMasterKey(f, passphrase)
		if unmarshalErr != nil {
			return nil, unmarshalErr
		}
		masterKey = mk
		return mk, nil
	})
	if err != nil {
		if masterKey != nil {
			masterKey.Close()
		}
		return nil, err
	}
	if err := cfg.Valid(); err != nil {
		masterKey.Close()
		return nil, err
	}

	cryptor, err := cryptolib.NewCryptor(masterKey, cfg.CipherCombo)
	if err != nil {
		masterKey.Close()
		return nil, err
	}

	storage := NewStorage(root, cryptor, cfg.ShorteningThreshold)
	return &Vault{
		Root:      root,
		MasterKey: masterKey,
		Config:    cfg,
		Storage:   storage,
		Resolver:  NewResolver(storage),
	}, nil
}

// Create initializes a brand new vault at root: generates a master key,
// writes masterkey.cryptomator and vault.cryptomator, and bootstraps the
// root storage shard (spec §4.4 create, §4.6 vault bootstrap).
func Create(root, passphrase string) (*Vault, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, err
	}

	masterKey, err := cryptolib.GenerateMasterKey()
	if err != nil {
		return nil, err
	}

	mkPath := filepath.Join(root, cryptolib.MasterKeyFileName)
	mkFile, err := os.OpenFile(mkPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		masterKey.Close()
		return nil, err
	}
	err = cryptolib.MarshalMasterKey(mkFile, masterKey, passphrase)
	closeErr := mkFile.Close()
	if err != nil {
		masterKey.Close()
		return nil, err
	}
	if closeErr != nil {
		masterKey.Close()
		return nil, closeErr
	}

	cfg := cryptolib.NewVaultConfig()
	token, err := cfg.Marshal(masterKey)
	if err != nil {
		masterKey.Close()
		return nil, err
	}
	configPath := filepath.Join(root, cryptolib.VaultConfigFileName)
	if err := os.WriteFile(configPath, token, 0o600); err != nil {
		masterKey.Close()
		return nil, err
	}

	cryptor, err := cryptolib.NewCryptor(masterKey, cfg.CipherCombo)
	if err != nil {
		masterKey.Close()
		return nil, err
	}

	storage := NewStorage(root, cryptor, cfg.ShorteningThreshold)
	resolver := NewResolver(storage)
	if err := resolver.CreateRoot(); err != nil {
		masterKey.Close()
		return nil, err
	}

	return &Vault{
		Root:      root,
		MasterKey: masterKey,
		Config:    cfg,
		Storage:   storage,
		Resolver:  resolver,
	}, nil
}
