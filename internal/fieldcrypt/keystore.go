package fieldcrypt

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// MasterKeySize is the length of the master secret in bytes (256 bits).
const MasterKeySize = 32

// GenerateKey returns a fresh random master secret.
func GenerateKey() ([]byte, error) {
	key := make([]byte, MasterKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating master key: %w", err)
	}
	return key, nil
}

// LoadKey reads a hex-encoded master secret from path. A file readable by
// group or others is accepted but logged.
func LoadKey(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm()&0o077 != 0 {
		slog.Warn("fieldcrypt: master key file has permissive mode",
			"path", path, "mode", fmt.Sprintf("%04o", info.Mode().Perm()))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading master key: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("master key %s is not hex encoded", path)
	}
	if len(key) != MasterKeySize {
		return nil, fmt.Errorf("master key %s has %d bytes, want %d", path, len(key), MasterKeySize)
	}
	return key, nil
}

// WriteKey stores key hex-encoded at path with mode 0600. It refuses to
// overwrite an existing file.
func WriteKey(path string, key []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating key file: %w", err)
	}
	if _, err := f.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing key file: %w", err)
	}
	return f.Close()
}

// LoadOrCreate loads the master secret at path, generating and persisting a
// new one on first run. created reports whether a new key was written.
func LoadOrCreate(path string) (key []byte, created bool, err error) {
	key, err = LoadKey(path)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}

	key, err = GenerateKey()
	if err != nil {
		return nil, false, err
	}
	if err := WriteKey(path, key); err != nil {
		return nil, false, err
	}
	slog.Warn("fieldcrypt: generated new master key; back it up, losing it makes encrypted data unrecoverable",
		"path", path)
	return key, true, nil
}
