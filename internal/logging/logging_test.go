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
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_WritesJSONToFileAndConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ppg.log")
	var console bytes.Buffer

	logger, closer, err := newLogger(Options{Level: "info", ServiceName: "ppg-test", File: path, ToConsole: true}, &console)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("capture finished", zap.Int("heart_rate", 72))
	require.NoError(t, logger.Sync())
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "capture finished", entry["msg"])
	assert.Equal(t, "ppg-test", entry["service_name"])
	assert.EqualValues(t, 72, entry["heart_rate"])
	assert.Contains(t, entry, "timestamp")

	assert.Contains(t, console.String(), "capture finished")
}

func TestNewLogger_ConsoleOnlyWhenNoFile(t *testing.T) {
	var console bytes.Buffer
	logger, _, err := newLogger(Options{Format: "console", Level: "debug"}, &console)
	require.NoError(t, err)

	logger.Debug("frame dropped")
	assert.Contains(t, console.String(), "frame dropped")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}
