package logx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToFileWithInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.log")
	log, err := New(Options{File: path, Level: "info", Instance: "node-a"})
	require.NoError(t, err)

	log.Named("session").Infow("hosting", "port", 7777)
	log.Debug("hidden")
	Sync(log)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "session")
	assert.Contains(t, out, "hosting")
	assert.Contains(t, out, `"instance": "node-a"`)
	assert.Contains(t, out, `"port": 7777`)
	assert.NotContains(t, out, "hidden")
}

func TestNewGeneratesInstanceID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.log")
	log, err := New(Options{File: path})
	require.NoError(t, err)
	log.Info("up")
	Sync(log)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Regexp(t, `"instance": "[0-9a-f-]{36}"`, string(data))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}
