package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/graphinventory/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"", INFO, false},
		{"warning", WARN, false},
		{"error", ERROR, false},
		{"loud", INFO, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg, err := FromConfig(config.LoggingConfig{Level: "debug", JSON: true, OutputFile: "x.log", MaxSizeMB: 2, MaxBackups: 4})
	require.NoError(t, err)
	assert.Equal(t, DEBUG, cfg.Level)
	assert.True(t, cfg.JSONFormat)
	assert.True(t, cfg.AddSource)
	assert.Equal(t, int64(2*1024*1024), cfg.MaxSize)
	assert.Equal(t, 4, cfg.MaxBackups)

	_, err = FromConfig(config.LoggingConfig{Level: "chatty"})
	assert.Error(t, err)
}

func TestJSONLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(Config{Level: WARN, JSONFormat: true, Console: &buf})
	require.NoError(t, err)

	l.Component("serializer").Info("dropped")
	l.Component("serializer").Warn("kept", "attempt", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "serializer", rec["component"])
	assert.Equal(t, float64(2), rec["attempt"])
}

func TestLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "inventory.log")
	var console bytes.Buffer
	l, err := NewLogger(Config{Level: INFO, OutputFile: path, Console: &console})
	require.NoError(t, err)

	l.Slog().Info("hello", "k", "v")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=hello")
	assert.Contains(t, console.String(), "msg=hello")
}

func TestLoggerRotatesLargeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.log")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 2048), 0644))
	require.NoError(t, os.WriteFile(path+".1", []byte("older"), 0644))

	l, err := NewLogger(Config{OutputFile: path, MaxSize: 1024, MaxBackups: 3, Console: &bytes.Buffer{}})
	require.NoError(t, err)
	defer l.Close()

	rotated, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Len(t, rotated, 2048)

	older, err := os.ReadFile(path + ".2")
	require.NoError(t, err)
	assert.Equal(t, "older", string(older))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}
