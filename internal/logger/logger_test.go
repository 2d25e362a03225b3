package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")

	log, err := New(Config{Level: "debug", Encoding: "json", OutputPath: path, Service: "fairytale-worker"})
	require.NoError(t, err)

	log.Debug("story created", zap.String("story_id", "abc"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"story_id":"abc"`)
	assert.Contains(t, out, `"level":"DEBUG"`)
	assert.Contains(t, out, `"timestamp"`)
	assert.Contains(t, out, `"service":"fairytale-worker"`)
	assert.Contains(t, out, `"caller"`)
}

func TestNew_InfoLevelOmitsCaller(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	log, err := New(Config{Level: "info", OutputPath: path})
	require.NoError(t, err)
	log.Info("ready")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"caller"`)
	assert.NotContains(t, string(data), `"service"`)
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	log, err := New(Config{Level: "verbose", Encoding: "xml"})
	require.NoError(t, err)

	assert.False(t, log.Core().Enabled(zap.DebugLevel))
	assert.True(t, log.Core().Enabled(zap.InfoLevel))
}
