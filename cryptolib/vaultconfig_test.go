package cryptolib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaultConfigSignAndVerify(t *testing.T) {
	mk, err := GenerateMasterKey()
	require.NoError(t, err)
	defer mk.Close()

	cfg := NewVaultConfig()
	token, err := cfg.Marshal(mk)
	require.NoError(t, err)

	parsed, err := UnmarshalVaultConfig(token, func(uri string) (*MasterKey, error) {
		assert.Equal(t, MasterKeyFileName, uri)
		return mk, nil
	})
	require.NoError(t, err)
	assert.Equal(t, cfg.Format, parsed.Format)
	assert.Equal(t, cfg.CipherCombo, parsed.CipherCombo)
	assert.Equal(t, cfg.ShorteningThreshold, parsed.ShorteningThreshold)
}

func TestVaultConfigUnsupportedFormatRejected(t *testing.T) {
	mk, err := GenerateMasterKey()
	require.NoError(t, err)
	defer mk.Close()

	cfg := NewVaultConfig()
	cfg.Format = 7
	token, err := cfg.Marshal(mk)
	require.NoError(t, err)

	_, err = UnmarshalVaultConfig(token, func(string) (*MasterKey, error) { return mk, nil })
	assert.Error(t, err)
}
