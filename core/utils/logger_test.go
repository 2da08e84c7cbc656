package utils

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"monitor-hub/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Printf("ignored %d", 1)
	l.Errorf("ignored")
	l.WithField("k", "v").Warnf("ignored")
	assert.NoError(t, l.Close())
}

func TestJSONLoggerWritesFields(t *testing.T) {
	l, err := NewLoggerFromConfig(config.LogConfig{Level: "info", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	var buf bytes.Buffer
	l.SetOutput(&buf)
	l.WithField("monitor_id", 7).Errorf("check failed: %s", "boom")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "check failed: boom", line["message"])
	assert.Equal(t, "error", line["level"])
	assert.EqualValues(t, 7, line["monitor_id"])
}

func TestLevelFiltersDebug(t *testing.T) {
	l, err := NewLoggerFromConfig(config.LogConfig{Level: "warn", Format: "text"})
	require.NoError(t, err)
	var buf bytes.Buffer
	l.SetOutput(&buf)
	l.Debugf("hidden")
	l.Printf("hidden too")
	assert.Empty(t, buf.String())
	l.SetLevel("debug")
	l.Debugf("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestFileOutputRequiresPath(t *testing.T) {
	_, err := NewLoggerFromConfig(config.LogConfig{Output: "file"})
	require.Error(t, err)

	l, err := NewLoggerFromConfig(config.LogConfig{Output: "file", FilePath: filepath.Join(t.TempDir(), "logs", "mh.log")})
	require.NoError(t, err)
	l.Printf("rotated")
	require.NoError(t, l.Close())
}

func TestUnknownFormatFails(t *testing.T) {
	_, err := NewLoggerFromConfig(config.LogConfig{Format: "xml"})
	require.Error(t, err)
}
