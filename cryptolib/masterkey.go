package cryptolib

import (
	"crypto/aes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	aeswrap "github.com/NickBall/go-aes-key-wrap"
	"golang.org/x/crypto/scrypt"
)

// Masterkey file constants, grounded on backend/cryptomator/masterkey.go.
const (
	MasterEncryptKeySize         = 32
	MasterMacKeySize             = MasterEncryptKeySize
	MasterDefaultVersion         = 999
	MasterDefaultScryptCostParam = 32 * 1024
	MasterDefaultScryptBlockSize = 8
	MasterDefaultScryptSaltSize  = 32

	// MinScryptCostParam is the minimum N accepted on unmarshal (spec §4.2.7).
	MinScryptCostParam = 1 << 15
)

// ErrInvalidPassword is returned when the RFC 3394 key-unwrap integrity
// check fails (spec §4.4 step 2, §7 InvalidPassword).
var ErrInvalidPassword = fmt.Errorf("cryptolib: invalid password or corrupt masterkey file")

type encryptedMasterKey struct {
	ScryptSalt       []byte `json:"scryptSalt"`
	ScryptCostParam  int    `json:"scryptCostParam"`
	ScryptBlockSize  int    `json:"scryptBlockSize"`
	PrimaryMasterKey []byte `json:"primaryMasterKey"`
	HmacMasterKey    []byte `json:"hmacMasterKey"`
	Version          uint32 `json:"version"`
	VersionMac       []byte `json:"versionMac"`
}

// GenerateMasterKey creates a new, randomly-initialized, memory-protected
// MasterKey (the vault-creation path of spec §4.6 `create_directory`'s
// sibling operation, vault creation).
func GenerateMasterKey() (*MasterKey, error) {
	var aesKey, macKey [32]byte
	if _, err := rand.Read(aesKey[:]); err != nil {
		return nil, err
	}
	if _, err := rand.Read(macKey[:]); err != nil {
		return nil, err
	}
	defer zeroize(aesKey[:])
	defer zeroize(macKey[:])
	return NewMasterKeyFromRaw(aesKey, macKey)
}

// MarshalMasterKey encrypts m with passphrase and writes the Cryptomator
// masterkey.cryptomator JSON document to w (spec §3 MasterkeyFile).
func MarshalMasterKey(w io.Writer, m *MasterKey, passphrase string) error {
	enc := encryptedMasterKey{
		Version:         MasterDefaultVersion,
		ScryptCostParam: MasterDefaultScryptCostParam,
		ScryptBlockSize: MasterDefaultScryptBlockSize,
		ScryptSalt:      make([]byte, MasterDefaultScryptSaltSize),
	}
	if _, err := rand.Read(enc.ScryptSalt); err != nil {
		return err
	}

	kek, err := scrypt.Key([]byte(passphrase), enc.ScryptSalt, enc.ScryptCostParam, enc.ScryptBlockSize, 1, MasterEncryptKeySize)
	if err != nil {
		return err
	}
	defer zeroize(kek)

	block, err := aes.NewCipher(kek)
	if err != nil {
		return err
	}

	err = m.WithAESKey(func(key []byte) error {
		enc.PrimaryMasterKey, err = aeswrap.Wrap(block, key)
		return err
	})
	if err != nil {
		return fmt.Errorf("cryptolib: wrap aes key: %w", err)
	}

	var macKeyCopy []byte
	err = m.WithMACKey(func(key []byte) error {
		enc.HmacMasterKey, err = aeswrap.Wrap(block, key)
		if err == nil {
			macKeyCopy = append([]byte(nil), key...)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("cryptolib: wrap mac key: %w", err)
	}
	defer zeroize(macKeyCopy)

	hash := hmac.New(sha256.New, macKeyCopy)
	if err := binary.Write(hash, binary.BigEndian, enc.Version); err != nil {
		return err
	}
	enc.VersionMac = hash.Sum(nil)

	return json.NewEncoder(w).Encode(enc)
}

// UnmarshalMasterKey reads and decrypts a masterkey.cryptomator document
// with passphrase, returning a memory-protected MasterKey. Returns
// ErrInvalidPassword on RFC 3394 integrity failure (spec §4.4 step 2).
func UnmarshalMasterKey(r io.Reader, passphrase string) (*MasterKey, error) {
	var enc encryptedMasterKey
	if err := json.NewDecoder(r).Decode(&enc); err != nil {
		return nil, fmt.Errorf("cryptolib: parse masterkey json: %w", err)
	}

	if enc.ScryptCostParam < MinScryptCostParam {
		return nil, fmt.Errorf("cryptolib: scrypt cost param %d below minimum %d", enc.ScryptCostParam, MinScryptCostParam)
	}

	kek, err := scrypt.Key([]byte(passphrase), enc.ScryptSalt, enc.ScryptCostParam, enc.ScryptBlockSize, 1, MasterEncryptKeySize)
	if err != nil {
		return nil, err
	}
	defer zeroize(kek)

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	aesKeyBytes, err := aeswrap.Unwrap(block, enc.PrimaryMasterKey)
	if err != nil {
		return nil, ErrInvalidPassword
	}
	defer zeroize(aesKeyBytes)
	macKeyBytes, err := aeswrap.Unwrap(block, enc.HmacMasterKey)
	if err != nil {
		return nil, ErrInvalidPassword
	}
	defer zeroize(macKeyBytes)

	if len(aesKeyBytes) != 32 || len(macKeyBytes) != 32 {
		return nil, ErrInvalidPassword
	}

	var aesKey, macKey [32]byte
	copy(aesKey[:], aesKeyBytes)
	copy(macKey[:], macKeyBytes)
	defer zeroize(aesKey[:])
	defer zeroize(macKey[:])

	return NewMasterKeyFromRaw(aesKey, macKey)
}
