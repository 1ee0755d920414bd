package cryptolib

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/miscreant/miscreant.go"
)

// Cipher combo identifiers, grounded on backend/cryptomator/cryptor.go.
const (
	CipherComboSivGcm    = "SIV_GCM"
	CipherComboSivCtrMac = "SIV_CTRMAC"
)

// contentCryptor is implemented by gcmCryptor and ctrMacCryptor. The pack's
// cryptor_gcm.go/cryptor_ctrmac.go duplicated these types against
// cryptor.go/header.go with incompatible method sets (one pair implementing
// EncryptChunk/DecryptChunk, the other MarshalHeader/UnmarshalHeader against
// a second redeclaration) — this is a single merged, coherent version.
type contentCryptor interface {
	NonceSize() int
	TagSize() int
	EncryptChunk(payload, nonce, additionalData []byte) []byte
	DecryptChunk(chunk, additionalData []byte) ([]byte, error)
	fileAssociatedData(fileNonce []byte, chunkNr uint64) []byte
}

// Cryptor implements per-vault encryption operations: filename/dir-id
// AES-SIV encryption and chunked file content encryption under one of the
// two supported cipher combos (spec §4.2).
type Cryptor struct {
	masterKey   *MasterKey
	siv         *miscreant.Cipher
	cipherCombo string
	contentCryptor
}

// NewCryptor builds a Cryptor bound to masterKey for the given cipherCombo
// (CipherComboSivGcm or CipherComboSivCtrMac).
func NewCryptor(masterKey *MasterKey, cipherCombo string) (*Cryptor, error) {
	c := &Cryptor{masterKey: masterKey, cipherCombo: cipherCombo}

	var err error
	err = masterKey.WithSIVKey(func(key []byte) error {
		sivKey := append([]byte(nil), key...)
		siv, sivErr := miscreant.NewAESCMACSIV(sivKey)
		if sivErr != nil {
			return sivErr
		}
		c.siv = siv
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cryptolib: init siv: %w", err)
	}

	err = masterKey.WithAESKey(func(key []byte) error {
		cc, ccErr := newContentCryptor(cipherCombo, key, masterKey)
		if ccErr != nil {
			return ccErr
		}
		c.contentCryptor = cc
		return nil
	})
	if err != nil {
		return nil, err
	}

	return c, nil
}

func newContentCryptor(cipherCombo string, aesKey []byte, masterKey *MasterKey) (contentCryptor, error) {
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, err
	}

	switch cipherCombo {
	case CipherComboSivGcm:
		aesGcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		return &gcmCryptor{aesGcm: aesGcm}, nil

	case CipherComboSivCtrMac:
		var hmacKey []byte
		if err := masterKey.WithMACKey(func(key []byte) error {
			hmacKey = append([]byte(nil), key...)
			return nil
		}); err != nil {
			return nil, err
		}
		return &ctrMacCryptor{aes: block, hmacKey: hmacKey}, nil

	default:
		return nil, fmt.Errorf("cryptolib: unsupported cipher combo %q", cipherCombo)
	}
}

// EncryptDirID computes the storage-shard hash for a directory id (spec
// §4.2.5): base32(sha1(aes_siv(dir_id, aad=[]))).
func (c *Cryptor) EncryptDirID(dirID string) (string, error) {
	ciphertext, err := c.siv.Seal(nil, []byte(dirID))
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(ciphertext)
	return base32.StdEncoding.EncodeToString(sum[:]), nil
}

// EncryptFilename encrypts filename under parent directory dirID (spec
// §4.2.4).
func (c *Cryptor) EncryptFilename(filename, dirID string) (string, error) {
	ciphertext, err := c.siv.Seal(nil, []byte(filename), []byte(dirID))
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// DecryptFilename decrypts an encrypted filename under parent directory
// dirID. Fails if the SIV/AAD binding does not match dirID.
func (c *Cryptor) DecryptFilename(encFilename, dirID string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(encFilename)
	if err != nil {
		return "", err
	}
	plaintext, err := c.siv.Open(nil, raw, []byte(dirID))
	if err != nil {
		return "", fmt.Errorf("cryptolib: decrypt filename: %w", err)
	}
	return string(plaintext), nil
}

// EncryptedChunkSize returns the on-disk size of a chunk whose plaintext
// payload is payloadSize bytes.
func (c *Cryptor) EncryptedChunkSize(payloadSize int) int {
	return c.NonceSize() + payloadSize + c.TagSize()
}

// FileAssociatedData returns the AEAD/MAC additional-data bytes for chunk
// chunkNr of a file whose header nonce is fileNonce (spec §4.2.2/§4.2.3).
func (c *Cryptor) FileAssociatedData(fileNonce []byte, chunkNr uint64) []byte {
	return c.fileAssociatedData(fileNonce, chunkNr)
}

// ---- AES-GCM content cryptor (current Cryptomator default) ----

type gcmCryptor struct {
	aesGcm cipher.AEAD
}

func (*gcmCryptor) NonceSize() int { return 12 }
func (*gcmCryptor) TagSize() int   { return 16 }

func (c *gcmCryptor) EncryptChunk(payload, nonce, additionalData []byte) []byte {
	buf := bytes.Buffer{}
	buf.Write(nonce)
	buf.Write(c.aesGcm.Seal(nil, nonce, payload, additionalData))
	return buf.Bytes()
}

func (c *gcmCryptor) DecryptChunk(chunk, additionalData []byte) ([]byte, error) {
	if len(chunk) < c.NonceSize()+c.TagSize() {
		return nil, fmt.Errorf("cryptolib: chunk too short: %d bytes", len(chunk))
	}
	nonce := chunk[:c.NonceSize()]
	return c.aesGcm.Open(nil, nonce, chunk[c.NonceSize():], additionalData)
}

func (c *gcmCryptor) fileAssociatedData(fileNonce []byte, chunkNr uint64) []byte {
	buf := bytes.Buffer{}
	_ = binary.Write(&buf, binary.BigEndian, chunkNr)
	buf.Write(fileNonce)
	return buf.Bytes()
}

// ---- AES-CTR + HMAC-SHA256 content cryptor (legacy, vault format v7) ----

type ctrMacCryptor struct {
	aes     cipher.Block
	hmacKey []byte
}

func (*ctrMacCryptor) NonceSize() int { return 16 }
func (*ctrMacCryptor) TagSize() int   { return 32 }

func (c *ctrMacCryptor) newCTR(nonce []byte) cipher.Stream { return cipher.NewCTR(c.aes, nonce) }
func (c *ctrMacCryptor) newHMAC() hash.Hash                { return hmac.New(sha256.New, c.hmacKey) }

func (c *ctrMacCryptor) EncryptChunk(payload, nonce, additionalData []byte) []byte {
	ciphertext := make([]byte, len(payload))
	c.newCTR(nonce).XORKeyStream(ciphertext, payload)

	buf := bytes.Buffer{}
	buf.Write(nonce)
	buf.Write(ciphertext)

	mac := c.newHMAC()
	mac.Write(additionalData)
	mac.Write(buf.Bytes())
	buf.Write(mac.Sum(nil))
	return buf.Bytes()
}

func (c *ctrMacCryptor) DecryptChunk(chunk, additionalData []byte) ([]byte, error) {
	if len(chunk) < c.NonceSize()+c.TagSize() {
		return nil, fmt.Errorf("cryptolib: chunk too short: %d bytes", len(chunk))
	}
	startMac := len(chunk) - c.TagSize()
	tag := chunk[startMac:]
	body := chunk[:startMac]

	mac := c.newHMAC()
	mac.Write(additionalData)
	mac.Write(body)
	if !constantTimeEqual(tag, mac.Sum(nil)) {
		return nil, fmt.Errorf("cryptolib: chunk hmac mismatch")
	}

	nonce := body[:c.NonceSize()]
	ciphertext := body[c.NonceSize():]
	plaintext := make([]byte, len(ciphertext))
	c.newCTR(nonce).XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

func (c *ctrMacCryptor) fileAssociatedData(fileNonce []byte, chunkNr uint64) []byte {
	buf := bytes.Buffer{}
	buf.Write(fileNonce)
	_ = binary.Write(&buf, binary.BigEndian, chunkNr)
	return buf.Bytes()
}
