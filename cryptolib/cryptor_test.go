package cryptolib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFilenameDeterministicAndAADBound is spec §8 property 5.
func TestFilenameDeterministicAndAADBound(t *testing.T) {
	c := testCryptor(t, CipherComboSivGcm)

	enc1, err := c.EncryptFilename("hello.txt", "dir-a")
	require.NoError(t, err)
	enc2, err := c.EncryptFilename("hello.txt", "dir-a")
	require.NoError(t, err)
	assert.Equal(t, enc1, enc2)

	dec, err := c.DecryptFilename(enc1, "dir-a")
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", dec)

	_, err = c.DecryptFilename(enc1, "dir-b")
	assert.Error(t, err)
}

func TestEncryptDirIDDeterministic(t *testing.T) {
	c := testCryptor(t, CipherComboSivGcm)

	h1, err := c.EncryptDirID("some-uuid")
	require.NoError(t, err)
	h2, err := c.EncryptDirID("some-uuid")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.NotEmpty(t, h1)
}

// TestContentChunkRoundTrip is spec §8 property 2 at the chunk level.
func TestContentChunkRoundTrip(t *testing.T) {
	for _, combo := range []string{CipherComboSivGcm, CipherComboSivCtrMac} {
		c := testCryptor(t, combo)
		h, err := c.NewHeader()
		require.NoError(t, err)

		payload := []byte("the quick brown fox jumps over the lazy dog")
		nonce := make([]byte, c.NonceSize())
		ad := c.fileAssociatedData(h.Nonce, 0)

		ct := c.EncryptChunk(append([]byte(nil), payload...), nonce, ad)
		pt, err := c.DecryptChunk(ct, ad)
		require.NoError(t, err)
		assert.Equal(t, payload, pt)
	}
}

// TestContentChunkIntegrity is spec §8 property 3/4.
func TestContentChunkIntegrity(t *testing.T) {
	c := testCryptor(t, CipherComboSivGcm)
	h, err := c.NewHeader()
	require.NoError(t, err)

	nonce := make([]byte, c.NonceSize())
	ad := c.fileAssociatedData(h.Nonce, 0)
	ct := c.EncryptChunk([]byte("payload"), nonce, ad)

	tampered := append([]byte(nil), ct...)
	tampered[len(tampered)-1] ^= 0x01
	_, err = c.DecryptChunk(tampered, ad)
	assert.Error(t, err)
}

// TestEmptyFileAuthentication is spec §8 property 9.
func TestEmptyFileAuthentication(t *testing.T) {
	c := testCryptor(t, CipherComboSivGcm)
	h, err := c.NewHeader()
	require.NoError(t, err)

	nonce := make([]byte, c.NonceSize())
	ad := c.fileAssociatedData(h.Nonce, 0)
	ct := c.EncryptChunk(nil, nonce, ad)
	assert.Len(t, ct, c.NonceSize()+c.TagSize())

	pt, err := c.DecryptChunk(ct, ad)
	require.NoError(t, err)
	assert.Empty(t, pt)
}
