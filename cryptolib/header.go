package cryptolib

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// FileHeader is the decrypted header of a Cryptomator file (spec §3).
type FileHeader struct {
	Nonce      []byte
	Reserved   []byte
	ContentKey []byte
}

const (
	HeaderContentKeySize              = 32
	HeaderReservedSize                = 8
	HeaderPayloadSize                 = HeaderContentKeySize + HeaderReservedSize
	HeaderReservedValue        uint64 = 0xFFFFFFFFFFFFFFFF
)

// NewHeader creates a new randomly-initialized FileHeader, writing the
// reserved bytes as 0xFF as required on encode (spec §3, §8 property 10).
func (c *Cryptor) NewHeader() (FileHeader, error) {
	var header FileHeader
	header.Nonce = make([]byte, c.NonceSize())
	header.ContentKey = make([]byte, HeaderContentKeySize)
	header.Reserved = make([]byte, HeaderReservedSize)

	if _, err := rand.Read(header.Nonce); err != nil {
		return header, err
	}
	if _, err := rand.Read(header.ContentKey); err != nil {
		return header, err
	}
	binary.BigEndian.PutUint64(header.Reserved, HeaderReservedValue)
	return header, nil
}

type headerPayload struct {
	Reserved   [HeaderReservedSize]byte
	ContentKey [HeaderContentKeySize]byte
}

// MarshalHeader encrypts h and writes it to w (spec §3 header layout:
// nonce ‖ AEAD(reserved‖content_key) ‖ tag).
func (c *Cryptor) MarshalHeader(w io.Writer, h FileHeader) error {
	var payload headerPayload
	if err := copySameLength(payload.Reserved[:], h.Reserved, "Reserved"); err != nil {
		return err
	}
	if err := copySameLength(payload.ContentKey[:], h.ContentKey, "ContentKey"); err != nil {
		return err
	}

	var plain bytes.Buffer
	if err := binary.Write(&plain, binary.BigEndian, &payload); err != nil {
		return err
	}

	encPayload := c.EncryptChunk(plain.Bytes(), h.Nonce, nil)
	_, err := w.Write(encPayload)
	return err
}

// UnmarshalHeader reads and decrypts an encrypted header from r. Any value
// is accepted for the reserved bytes on read (forward-compatibility, spec
// §8 property 10). NewHeader sets them to 0xFF; MarshalHeader writes the
// Reserved bytes it is given.
func (c *Cryptor) UnmarshalHeader(r io.Reader) (FileHeader, error) {
	var header FileHeader
	encHeader := make([]byte, c.NonceSize()+HeaderPayloadSize+c.TagSize())
	if _, err := io.ReadFull(r, encHeader); err != nil {
		return header, err
	}

	nonce := encHeader[:c.NonceSize()]
	plain, err := c.DecryptChunk(encHeader, nil)
	if err != nil {
		return header, fmt.Errorf("cryptolib: header authentication failed: %w", err)
	}

	var payload headerPayload
	if err := binary.Read(bytes.NewReader(plain), binary.BigEndian, &payload); err != nil {
		return header, err
	}

	header.Nonce = append([]byte(nil), nonce...)
	header.ContentKey = payload.ContentKey[:]
	header.Reserved = payload.Reserved[:]
	return header, nil
}

func copySameLength(dst, src []byte, name string) error {
	if len(dst) != len(src) {
		return fmt.Errorf("cryptolib: incorrect length of %s: expected %d got %d", name, len(dst), len(src))
	}
	copy(dst, src)
	return nil
}
