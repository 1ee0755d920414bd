package cryptolib

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCryptor(t *testing.T, combo string) *Cryptor {
	t.Helper()
	mk, err := GenerateMasterKey()
	require.NoError(t, err)
	t.Cleanup(mk.Close)
	c, err := NewCryptor(mk, combo)
	require.NoError(t, err)
	return c
}

func TestHeaderNew(t *testing.T) {
	for _, combo := range []string{CipherComboSivGcm, CipherComboSivCtrMac} {
		c := testCryptor(t, combo)
		h, err := c.NewHeader()
		require.NoError(t, err)

		assert.Len(t, h.Nonce, c.NonceSize())
		assert.Len(t, h.ContentKey, HeaderContentKeySize)
		assert.Len(t, h.Reserved, HeaderReservedSize)
		assert.Equal(t, HeaderReservedValue, binary.BigEndian.Uint64(h.Reserved))
	}
}

// TestHeaderRoundTrip is spec §8 property 1.
func TestHeaderRoundTrip(t *testing.T) {
	for _, combo := range []string{CipherComboSivGcm, CipherComboSivCtrMac} {
		c := testCryptor(t, combo)

		h1, err := c.NewHeader()
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, c.MarshalHeader(&buf, h1))

		h2, err := c.UnmarshalHeader(&buf)
		require.NoError(t, err)

		assert.Equal(t, h1.ContentKey, h2.ContentKey)
		assert.Equal(t, h1.Reserved, h2.Reserved)
	}
}

// TestHeaderForwardCompatReservedBytes is spec §8 property 10.
func TestHeaderForwardCompatReservedBytes(t *testing.T) {
	c := testCryptor(t, CipherComboSivGcm)

	h, err := c.NewHeader()
	require.NoError(t, err)
	binary.BigEndian.PutUint64(h.Reserved, 0x1122334455667788)

	var buf bytes.Buffer
	require.NoError(t, c.MarshalHeader(&buf, h))

	h2, err := c.UnmarshalHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h.Reserved, h2.Reserved)
}

// TestHeaderTamperFails is spec §8 property 3.
func TestHeaderTamperFails(t *testing.T) {
	c := testCryptor(t, CipherComboSivGcm)
	h, err := c.NewHeader()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.MarshalHeader(&buf, h))

	tampered := buf.Bytes()
	tampered[len(tampered)-1] ^= 0xFF

	_, err = c.UnmarshalHeader(bytes.NewReader(tampered))
	assert.Error(t, err)
}

func TestHeaderWrongKeyFails(t *testing.T) {
	c1 := testCryptor(t, CipherComboSivGcm)
	c2 := testCryptor(t, CipherComboSivGcm)

	h, err := c1.NewHeader()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c1.MarshalHeader(&buf, h))

	_, err = c2.UnmarshalHeader(&buf)
	assert.Error(t, err)
}
