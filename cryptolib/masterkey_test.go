package cryptolib

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMasterKeyMarshalRoundTrip(t *testing.T) {
	mk, err := GenerateMasterKey()
	require.NoError(t, err)
	defer mk.Close()

	var buf bytes.Buffer
	require.NoError(t, MarshalMasterKey(&buf, mk, "correct horse battery staple"))

	mk2, err := UnmarshalMasterKey(bytes.NewReader(buf.Bytes()), "correct horse battery staple")
	require.NoError(t, err)
	defer mk2.Close()

	var aes1, aes2 []byte
	require.NoError(t, mk.WithAESKey(func(k []byte) error { aes1 = append([]byte(nil), k...); return nil }))
	require.NoError(t, mk2.WithAESKey(func(k []byte) error { aes2 = append([]byte(nil), k...); return nil }))
	assert.Equal(t, aes1, aes2)
}

// TestMasterKeyWrongPasswordFails is spec §4.4 InvalidPassword / §7.
func TestMasterKeyWrongPasswordFails(t *testing.T) {
	mk, err := GenerateMasterKey()
	require.NoError(t, err)
	defer mk.Close()

	var buf bytes.Buffer
	require.NoError(t, MarshalMasterKey(&buf, mk, "right password"))

	_, err = UnmarshalMasterKey(bytes.NewReader(buf.Bytes()), "wrong password")
	assert.ErrorIs(t, err, ErrInvalidPassword)
}
