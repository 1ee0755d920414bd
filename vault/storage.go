package vault

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxcrypt/oxcryptfs/cryptolib"
)

// Reserved on-disk names inside a storage directory or .c9s container
// (spec §4.3 edge-case policies; spec GLOSSARY).
const (
	DirMarkerName   = "dir.c9r"
	DirIDBackfile   = "dirid.c9r"
	LongNameFile    = "name.c9s"
	ContentsFile    = "contents.c9r"
	SymlinkFile     = "symlink.c9r"
	LongNameSuffix  = ".c9s"
	ShortNameSuffix = ".c9r"
)

// Storage is the local on-disk half of the vault data model: it resolves
// DirIDs and encrypted leaf names to relative filesystem paths under the
// vault root, and performs the small reserved-file reads/writes the
// resolver needs. It holds no locks — callers (vaultops) are responsible
// for the lockmgr discipline of spec §4.5.
type Storage struct {
	Root    string // absolute local filesystem path to the vault directory
	Cryptor *cryptolib.Cryptor
	// ShorteningThreshold is the VaultConfig-provided length, compared
	// against the base64url-encoded name including the .c9r suffix
	// (spec §4.3).
	ShorteningThreshold int
}

// NewStorage constructs a Storage rooted at root.
func NewStorage(root string, cryptor *cryptolib.Cryptor, shorteningThreshold int) *Storage {
	return &Storage{Root: root, Cryptor: cryptor, ShorteningThreshold: shorteningThreshold}
}

// ShardDir returns the relative storage directory for dirID: d/<AA>/<rest>
// (spec §4.2.5, §4.3 step 2).
func (s *Storage) ShardDir(dirID DirID) (string, error) {
	hash, err := s.Cryptor.EncryptDirID(string(dirID))
	if err != nil {
		return "", err
	}
	return filepath.Join("d", hash[:2], hash[2:]), nil
}

// AbsShardDir is ShardDir joined onto Root.
func (s *Storage) AbsShardDir(dirID DirID) (string, error) {
	rel, err := s.ShardDir(dirID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, rel), nil
}

// EncryptedLeafContainer returns the relative path (from the vault root) of
// the on-disk container for a cleartext leaf name inside dirID: either
// "<shard>/<b64>.c9r" or, past the shortening threshold,
// "<shard>/<sha1(b64)>.c9s".
func (s *Storage) EncryptedLeafContainer(dirID DirID, name string) (containerRel string, isLong bool, err error) {
	shard, err := s.ShardDir(dirID)
	if err != nil {
		return "", false, err
	}
	enc, err := s.Cryptor.EncryptFilename(name, string(dirID))
	if err != nil {
		return "", false, err
	}

	shortName := enc + ShortNameSuffix
	if len(shortName) <= s.effectiveThreshold() {
		return filepath.Join(shard, shortName), false, nil
	}

	sum := sha1.Sum([]byte(enc))
	longName := base64.URLEncoding.EncodeToString(sum[:]) + LongNameSuffix
	return filepath.Join(shard, longName), true, nil
}

func (s *Storage) effectiveThreshold() int {
	if s.ShorteningThreshold <= 0 {
		return cryptolib.DefaultShortenLength
	}
	return s.ShorteningThreshold
}

// ReadDirIDBackfile reads and decrypts the dirid.c9r backfile inside the
// storage directory for dirID, returning the directory's own (decrypted)
// dir-id string recorded there (spec GLOSSARY dirid.c9r).
func (s *Storage) ReadDirIDBackfile(dirID DirID) (DirID, error) {
	shard, err := s.AbsShardDir(dirID)
	if err != nil {
		return "", err
	}
	data, err := s.readEncryptedFile(filepath.Join(shard, DirIDBackfile))
	if err != nil {
		return "", err
	}
	return DirID(data), nil
}

// WriteDirIDBackfile encrypts and writes dirID's own id into its storage
// directory's dirid.c9r backfile.
func (s *Storage) WriteDirIDBackfile(dirID DirID) error {
	shard, err := s.AbsShardDir(dirID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(shard, 0o700); err != nil {
		return err
	}
	return s.writeEncryptedFile(filepath.Join(shard, DirIDBackfile), []byte(dirID))
}

// readEncryptedFile fully reads and decrypts absPath using the Cryptor's
// chunked content format (spec §4.2.2).
func (s *Storage) readEncryptedFile(absPath string) ([]byte, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := s.Cryptor.UnmarshalHeader(f)
	if err != nil {
		return nil, fmt.Errorf("vault: read header of %s: %w", absPath, err)
	}

	var out []byte
	buf := make([]byte, s.Cryptor.EncryptedChunkSize(cryptolib.ChunkPayloadSize))
	var chunkNr uint64
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			ad := s.fileAssociatedData(header.Nonce, chunkNr)
			plain, derr := s.Cryptor.DecryptChunk(buf[:n], ad)
			if derr != nil {
				return nil, fmt.Errorf("vault: chunk %d of %s: %w", chunkNr, absPath, derr)
			}
			out = append(out, plain...)
			chunkNr++
		}
		if rerr != nil {
			break
		}
	}
	return out, nil
}

// writeEncryptedFile encrypts data in full and atomically writes it to
// absPath via a temp-file-then-rename (spec §4.6 create-or-replace
// protocol).
func (s *Storage) writeEncryptedFile(absPath string, data []byte) error {
	tmp := absPath + fmt.Sprintf(".tmp-%d", os.Getpid())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	header, err := s.Cryptor.NewHeader()
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := s.Cryptor.MarshalHeader(f, header); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	var chunkNr uint64
	for offset := 0; offset < len(data) || chunkNr == 0; offset += cryptolib.ChunkPayloadSize {
		end := offset + cryptolib.ChunkPayloadSize
		if end > len(data) {
			end = len(data)
		}
		payload := data[offset:end]
		nonce := make([]byte, s.Cryptor.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
		ad := s.fileAssociatedData(header.Nonce, chunkNr)
		ct := s.Cryptor.EncryptChunk(append([]byte(nil), payload...), nonce, ad)
		if _, err := f.Write(ct); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
		chunkNr++
		if end == len(data) {
			break
		}
	}

	if err := f.Sync(); err != nil {
		// WebDAV ENOTTY handling (spec §9): best-effort only.
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, absPath)
}

func (s *Storage) fileAssociatedData(fileNonce []byte, chunkNr uint64) []byte {
	return s.Cryptor.FileAssociatedData(fileNonce, chunkNr)
}
