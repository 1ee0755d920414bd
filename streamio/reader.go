// Package streamio provides random-access streaming readers and
// append-only writers over chunked Cryptomator ciphertext
// (spec §4.7), layered on cryptolib's chunk primitives and vault.Storage's
// file-container conventions.
package streamio

import (
	"fmt"
	"io"
	"os"

	"github.com/oxcrypt/oxcryptfs/cryptolib"
)


// Reader is a random-access decrypting reader over one encrypted file
// (spec §4.7 "Reader"). It is not safe for concurrent use by multiple
// goroutines; callers serialize access externally (e.g. via the file-read
// lock of lockmgr).
type Reader struct {
	f          *os.File
	cryptor    *cryptolib.Cryptor
	header     cryptolib.FileHeader
	fileSize   int64 // ciphertext size on disk
	chunkCache struct {
		index     int64
		plaintext []byte
		valid     bool
	}
}

// OpenReader opens path for random-access decrypted reads.
func OpenReader(path string, cryptor *cryptolib.Cryptor) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	header, err := cryptor.UnmarshalHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("streamio: read header of %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Reader{f: f, cryptor: cryptor, header: header, fileSize: info.Size()}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.f.Close() }

// Size returns the decrypted (plaintext) file size.
func (r *Reader) Size() int64 {
	return r.cryptor.DecryptedFileSize(r.fileSize)
}

// chunkOnDiskSize is 12+32768+16 for GCM, 16+32768+32 for CTR+HMAC.
func (r *Reader) chunkOnDiskSize() int64 {
	return int64(r.cryptor.EncryptedChunkSize(cryptolib.ChunkPayloadSize))
}

// headerOnDiskSize is 68 bytes for GCM (12+40+16), 88 for CTR+HMAC
// (16+40+32).
func (r *Reader) headerOnDiskSize() int64 {
	return int64(r.cryptor.NonceSize() + cryptolib.HeaderPayloadSize + r.cryptor.TagSize())
}

// ReadRange decrypts and returns exactly len bytes starting at offset
// (spec §4.7 read_range), or fewer at end-of-file. Restartable after
// error: callers may retry ReadRange without reopening the Reader.
func (r *Reader) ReadRange(offset int64, length int) ([]byte, error) {
	if length == 0 || offset >= r.Size() {
		return nil, nil
	}

	out := make([]byte, 0, length)
	remaining := length
	pos := offset

	for remaining > 0 {
		chunkIndex := pos / cryptolib.ChunkPayloadSize
		chunkOffset := pos % cryptolib.ChunkPayloadSize

		plaintext, err := r.decryptChunk(chunkIndex)
		if err == io.EOF {
			break // past end of file
		}
		if err != nil {
			return nil, err
		}
		if chunkOffset >= int64(len(plaintext)) {
			break // past end of file
		}

		n := int(int64(len(plaintext)) - chunkOffset)
		if n > remaining {
			n = remaining
		}
		out = append(out, plaintext[chunkOffset:chunkOffset+int64(n)]...)
		pos += int64(n)
		remaining -= n
	}

	return out, nil
}

func (r *Reader) decryptChunk(chunkIndex int64) ([]byte, error) {
	if r.chunkCache.valid && r.chunkCache.index == chunkIndex {
		return r.chunkCache.plaintext, nil
	}

	onDiskSize := r.chunkOnDiskSize()
	chunkAbsOffset := r.headerOnDiskSize() + chunkIndex*onDiskSize
	remainingOnDisk := r.fileSize - chunkAbsOffset
	if remainingOnDisk <= 0 {
		return nil, io.EOF
	}
	readSize := onDiskSize
	if remainingOnDisk < readSize {
		readSize = remainingOnDisk
	}

	buf := make([]byte, readSize)
	if _, err := r.f.ReadAt(buf, chunkAbsOffset); err != nil && err != io.EOF {
		return nil, err
	}

	ad := r.cryptor.FileAssociatedData(r.header.Nonce, uint64(chunkIndex))
	plaintext, err := r.cryptor.DecryptChunk(buf, ad)
	if err != nil {
		return nil, fmt.Errorf("streamio: chunk %d: %w", chunkIndex, err)
	}

	r.chunkCache.index = chunkIndex
	r.chunkCache.plaintext = plaintext
	r.chunkCache.valid = true
	return plaintext, nil
}
