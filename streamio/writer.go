package streamio

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"github.com/oxcrypt/oxcryptfs/cryptolib"
)

// ErrRandomWriteNotSupported is returned by WriteAt whenever the requested
// offset is not the writer's current append position. Bytes already
// written are never rewritten, whether still buffered or already flushed.
var ErrRandomWriteNotSupported = errors.New("streamio: non-append write not supported")

// Writer is an append-only encrypting writer over one new encrypted file
// (spec §4.7 "Writer"). Writes are buffered up to one chunk's plaintext
// payload (32KiB) and flushed as a full encrypted chunk once the buffer
// fills; Close flushes a final, possibly short, chunk so every file has at
// least one chunk on disk (matching vault.Storage.writeEncryptedFile's
// zero-length-file behavior).
type Writer struct {
	f         *os.File
	cryptor   *cryptolib.Cryptor
	header    cryptolib.FileHeader
	nextChunk uint64
	buf       []byte
	closed    bool
}

// CreateWriter creates a new encrypted file at path and writes its header.
// It fails if path already exists.
func CreateWriter(path string, cryptor *cryptolib.Cryptor) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}

	header, err := cryptor.NewHeader()
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	if err := cryptor.MarshalHeader(f, header); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}

	return &Writer{f: f, cryptor: cryptor, header: header, buf: make([]byte, 0, cryptolib.ChunkPayloadSize)}, nil
}

// Write appends p to the file, the io.Writer contract (spec §4.7
// write_file in append mode). It never returns a short write without an
// error.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("streamio: write to closed writer")
	}

	written := 0
	for len(p) > 0 {
		room := cryptolib.ChunkPayloadSize - len(w.buf)
		n := room
		if n > len(p) {
			n = len(p)
		}
		w.buf = append(w.buf, p[:n]...)
		p = p[n:]
		written += n

		if len(w.buf) == cryptolib.ChunkPayloadSize {
			if err := w.flushChunk(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// WriteAt supports only writes that continue at the writer's current
// append offset; any other offset returns ErrRandomWriteNotSupported, per
// spec §4.7's "NotSupported for random writes unless the adapter
// implements read-modify-write" option. Local disk adapters take this
// branch; an adapter wanting true random writes overrides at a higher
// layer.
func (w *Writer) WriteAt(p []byte, offset int64) (int, error) {
	if offset != w.Offset() {
		return 0, ErrRandomWriteNotSupported
	}
	return w.Write(p)
}

// Offset returns the plaintext byte offset the next Write call will land
// at.
func (w *Writer) Offset() int64 {
	return int64(w.nextChunk)*cryptolib.ChunkPayloadSize + int64(len(w.buf))
}

func (w *Writer) flushChunk() error {
	nonce := make([]byte, w.cryptor.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	ad := w.cryptor.FileAssociatedData(w.header.Nonce, w.nextChunk)
	ct := w.cryptor.EncryptChunk(w.buf, nonce, ad)
	if _, err := w.f.Write(ct); err != nil {
		return err
	}
	w.nextChunk++
	w.buf = w.buf[:0]
	return nil
}

// Close flushes any buffered partial chunk (writing a zero-length final
// chunk if nothing was ever written, so an empty file still authenticates
// per spec §8 property on empty-file round trips), fsyncs best-effort, and
// closes the file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if len(w.buf) > 0 || w.nextChunk == 0 {
		if err := w.flushChunk(); err != nil {
			w.f.Close()
			return err
		}
	}

	if err := w.f.Sync(); err != nil {
		// Best-effort only (spec §9 ENOTTY-style fsync failures on some
		// backends are not fatal).
	}
	return w.f.Close()
}
