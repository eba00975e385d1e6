package fieldcrypt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateGeneratesThenLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "master.key")

	first, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, first, MasterKeySize)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)
}

func TestLoadKeyRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()

	notHex := filepath.Join(dir, "nothex.key")
	require.NoError(t, os.WriteFile(notHex, []byte("not a key"), 0o600))
	_, _, err := LoadOrCreate(notHex)
	assert.Error(t, err)

	short := filepath.Join(dir, "short.key")
	require.NoError(t, os.WriteFile(short, []byte("abcd"), 0o600))
	_, err = LoadKey(short)
	assert.Error(t, err)

	// A corrupt key must never be replaced silently.
	data, err := os.ReadFile(notHex)
	require.NoError(t, err)
	assert.Equal(t, "not a key", string(data))
}

func TestWriteKeyRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.key")
	key, err := GenerateKey()
	require.NoError(t, err)
	require.NoError(t, WriteKey(path, key))
	assert.Error(t, WriteKey(path, key))
}
