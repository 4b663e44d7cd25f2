// Package tokenfile reads and writes token files. Each file holds a single
// raw token string sealed with NaCl secretbox, so tokens are never stored in
// plaintext. This is a leaf package: tokenstore layers caching on top of it.
package tokenfile

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/nacl/secretbox"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the secrets directory.
const DirPerms = 0o700

// KeySize is the length of a secretbox key in bytes.
const KeySize = 32

const (
	nonceSize     = 24
	formatVersion = byte(1)
	headerSize    = 1 + nonceSize
)

// ErrDecrypt is returned when a token file cannot be opened with the
// current key (wrong key, truncated or tampered file).
var ErrDecrypt = errors.New("tokenfile: cannot decrypt token file")

// Codec seals and opens token files with a fixed key.
type Codec struct {
	key [KeySize]byte
}

// NewCodec obtains the encryption key from ks and returns a Codec bound to it.
func NewCodec(ks KeySource) (*Codec, error) {
	key, err := ks.Key()
	if err != nil {
		return nil, fmt.Errorf("tokenfile: obtaining key: %w", err)
	}

	return &Codec{key: key}, nil
}

// NewCodecWithKey returns a Codec for an already-known key.
func NewCodecWithKey(key [KeySize]byte) *Codec {
	return &Codec{key: key}
}

// Load reads and decrypts the token stored at path. Returns the token value
// and the file modification time. Returns ("", zero time, nil) if the file
// does not exist.
func (c *Codec) Load(path string) (string, time.Time, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", time.Time{}, nil
	}

	if err != nil {
		return "", time.Time{}, fmt.Errorf("tokenfile: stat %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	plain, err := c.open(data)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("tokenfile: %s: %w", path, err)
	}

	return string(plain), info.ModTime(), nil
}

// Save encrypts value and writes it to path atomically (write-to-temp +
// rename) with 0600 permissions. Missing parent directories are created.
// Never logs token values.
func (c *Codec) Save(path, value string) error {
	data, err := c.seal([]byte(value))
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the token file at path. A missing file is not an error.
func (c *Codec) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}

// seal produces version || nonce || secretbox(plain).
func (c *Codec) seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("tokenfile: generating nonce: %w", err)
	}

	out := make([]byte, 0, headerSize+len(plain)+secretbox.Overhead)
	out = append(out, formatVersion)
	out = append(out, nonce[:]...)

	return secretbox.Seal(out, plain, &nonce, &c.key), nil
}

func (c *Codec) open(data []byte) ([]byte, error) {
	if len(data) < headerSize+secretbox.Overhead {
		return nil, ErrDecrypt
	}

	if data[0] != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrDecrypt, data[0])
	}

	var nonce [nonceSize]byte
	copy(nonce[:], data[1:headerSize])

	plain, ok := secretbox.Open(nil, data[headerSize:], &nonce, &c.key)
	if !ok {
		return nil, ErrDecrypt
	}

	return plain, nil
}
