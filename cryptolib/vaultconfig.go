package cryptolib

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	configKeyIDTag       = "kid"
	VaultConfigFileName  = "vault.cryptomator"
	MasterKeyFileName    = "masterkey.cryptomator"
	SupportedVaultFormat = 8
	DefaultShortenLength = 220
)

// keyID is the `kid` JWT header value, of the form "masterkeyfile:<name>".
type keyID string

func (kid keyID) Scheme() string { return strings.SplitN(string(kid), ":", 2)[0] }
func (kid keyID) URI() string {
	parts := strings.SplitN(string(kid), ":", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// VaultConfig is the signed vault.cryptomator document (spec §3, §4.4).
type VaultConfig struct {
	Format              int    `json:"format"`
	ShorteningThreshold int    `json:"shorteningThreshold"`
	Jti                 string `json:"jti"`
	CipherCombo         string `json:"cipherCombo"`
	jwt.RegisteredClaims
}

// NewVaultConfig returns the default configuration for a newly created
// vault: format 8, SIV_GCM, shortening threshold 220.
func NewVaultConfig() VaultConfig {
	return VaultConfig{
		Format:              SupportedVaultFormat,
		ShorteningThreshold: DefaultShortenLength,
		Jti:                 uuid.NewString(),
		CipherCombo:         CipherComboSivGcm,
	}
}

// Valid is called by jwt.ParseWithClaims; it rejects unsupported vault
// formats (spec §4.4 step 3, §7 UnsupportedFormat).
func (c *VaultConfig) Valid() error {
	if c.Format != SupportedVaultFormat {
		return fmt.Errorf("cryptolib: unsupported vault format: %d", c.Format)
	}
	return nil
}

// Marshal signs c as an HS256 JWT using masterKey's combined jwt key.
func (c VaultConfig) Marshal(masterKey *MasterKey) ([]byte, error) {
	kid := keyID("masterkeyfile:" + MasterKeyFileName)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &c)
	token.Header[configKeyIDTag] = string(kid)

	var signed string
	err := masterKey.WithRawKey(func(key []byte) error {
		var signErr error
		signed, signErr = token.SignedString(append([]byte(nil), key...))
		return signErr
	})
	if err != nil {
		return nil, err
	}
	return []byte(signed), nil
}

// UnmarshalVaultConfig parses and verifies the vault.cryptomator JWT,
// resolving the signing key via keyFunc (the masterkey file named by the
// `kid` header). Fails UnsupportedFormat via VaultConfig.Valid.
func UnmarshalVaultConfig(tokenBytes []byte, keyFunc func(masterKeyPath string) (*MasterKey, error)) (VaultConfig, error) {
	var c VaultConfig
	_, err := jwt.ParseWithClaims(string(tokenBytes), &c, func(token *jwt.Token) (interface{}, error) {
		kidObj, ok := token.Header[configKeyIDTag]
		if !ok {
			return nil, fmt.Errorf("cryptolib: no key id in vault.cryptomator jwt")
		}
		kidStr, ok := kidObj.(string)
		if !ok {
			return nil, fmt.Errorf("cryptolib: key id in vault.cryptomator jwt is not a string")
		}
		masterKey, err := keyFunc(keyID(kidStr).URI())
		if err != nil {
			return nil, err
		}
		var key []byte
		err = masterKey.WithRawKey(func(k []byte) error {
			key = append([]byte(nil), k...)
			return nil
		})
		return key, err
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	return c, err
}
