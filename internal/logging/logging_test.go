package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/CosmoTheDev/assessmaker/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesConsoleAndFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	file := filepath.Join(t.TempDir(), "logs", "assessmaker.log")
	var console bytes.Buffer
	closeLog, err := setup(config.LogConfig{Level: "warn", File: file}, false, &console)
	require.NoError(t, err)

	slog.Info("store: hidden at warn level")
	slog.Warn("store: skipped record", "id", "r1")
	closeLog()

	assert.NotContains(t, console.String(), "hidden at warn level")
	assert.Contains(t, console.String(), "store: skipped record")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "id=r1")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
