package tokenfile

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeySource supplies the key used to seal token files. Implementations
// create a fresh random key on first use and return the same key afterwards.
type KeySource interface {
	Key() ([KeySize]byte, error)
}

// KeyringKeySource keeps the key in the OS credential store (macOS Keychain,
// Windows Credential Manager, Linux Secret Service).
type KeyringKeySource struct {
	Service string
	User    string
}

var _ KeySource = KeyringKeySource{}

// Key returns the stored key, generating and storing one if none exists.
func (k KeyringKeySource) Key() ([KeySize]byte, error) {
	encoded, err := keyring.Get(k.Service, k.User)
	if err == nil {
		return decodeKey(encoded)
	}

	if !errors.Is(err, keyring.ErrNotFound) {
		return [KeySize]byte{}, fmt.Errorf("reading key from keyring: %w", err)
	}

	key, err := generateKey()
	if err != nil {
		return [KeySize]byte{}, err
	}

	if err := keyring.Set(k.Service, k.User, encodeKey(key)); err != nil {
		return [KeySize]byte{}, fmt.Errorf("storing key in keyring: %w", err)
	}

	return key, nil
}

// FileKeySource keeps the key in an owner-only file. Used on hosts without a
// credential store (headless Linux, containers).
type FileKeySource struct {
	Path string
}

var _ KeySource = FileKeySource{}

// Key returns the key stored at Path, creating the file if it is missing.
func (f FileKeySource) Key() ([KeySize]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err == nil {
		return decodeKey(string(data))
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return [KeySize]byte{}, fmt.Errorf("reading key file %s: %w", f.Path, err)
	}

	key, err := generateKey()
	if err != nil {
		return [KeySize]byte{}, err
	}

	if mkErr := os.MkdirAll(filepath.Dir(f.Path), DirPerms); mkErr != nil {
		return [KeySize]byte{}, fmt.Errorf("creating key directory: %w", mkErr)
	}

	if err := publishKeyFile(f.Path, encodeKey(key)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return f.Key()
		}

		return [KeySize]byte{}, err
	}

	return key, nil
}

// publishKeyFile writes content to a temp file and hard-links it to path,
// so readers never observe a partially written key. It fails with
// fs.ErrExist when another process published first.
func publishKeyFile(path, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".key-*.tmp")
	if err != nil {
		return fmt.Errorf("creating key file %s: %w", path, err)
	}

	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(FilePerms); err != nil {
		tmp.Close()

		return fmt.Errorf("setting key file permissions: %w", err)
	}

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()

		return fmt.Errorf("writing key file %s: %w", path, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()

		return fmt.Errorf("syncing key file %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing key file %s: %w", path, err)
	}

	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fs.ErrExist
		}

		return fmt.Errorf("publishing key file %s: %w", path, err)
	}

	return nil
}

// FallbackKeySource tries Primary and falls back to Fallback when the
// primary store is unavailable.
type FallbackKeySource struct {
	Primary  KeySource
	Fallback KeySource
	Logger   *slog.Logger
}

var _ KeySource = FallbackKeySource{}

// Key returns the primary key, or the fallback key if the primary fails.
func (f FallbackKeySource) Key() ([KeySize]byte, error) {
	key, err := f.Primary.Key()
	if err == nil {
		return key, nil
	}

	if f.Logger != nil {
		f.Logger.Warn("primary key store unavailable, using fallback",
			slog.String("error", err.Error()),
		)
	}

	return f.Fallback.Key()
}

func generateKey() ([KeySize]byte, error) {
	var key [KeySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return key, fmt.Errorf("generating key: %w", err)
	}

	return key, nil
}

func encodeKey(key [KeySize]byte) string {
	return base64.StdEncoding.EncodeToString(key[:])
}

func decodeKey(s string) ([KeySize]byte, error) {
	var key [KeySize]byte

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return key, fmt.Errorf("decoding key: %w", err)
	}

	if len(raw) != KeySize {
		return key, fmt.Errorf("decoding key: got %d bytes, want %d", len(raw), KeySize)
	}

	copy(key[:], raw)

	return key, nil
}
