package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ace221390/work.ink/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func setupTestLogger(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	buf := new(bytes.Buffer)
	Initialize(cfg, zapcore.AddSync(buf))
	return buf
}

func TestInitialize(t *testing.T) {
	t.Run("should colorize console levels", func(t *testing.T) {
		buf := setupTestLogger(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "workink",
			Colors:      config.ColorConfig{Info: "green"},
		})

		GetLogger().Info("gate reached", zap.String("host", "work.ink"))

		out := buf.String()
		assert.Contains(t, out, "\x1b[32mINFO\x1b[0m")
		assert.Contains(t, out, "workink")
		assert.Contains(t, out, "gate reached")
		assert.Contains(t, out, `"host": "work.ink"`)
	})

	t.Run("should emit json without colors", func(t *testing.T) {
		buf := setupTestLogger(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "svc"})

		GetLogger().Warn("store unavailable", zap.String("backend", "redis"))

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "svc", entry["logger"])
		assert.Equal(t, "redis", entry["backend"])
	})

	t.Run("should filter below the configured level", func(t *testing.T) {
		buf := setupTestLogger(t, config.LoggerConfig{Level: "warn", Format: "json"})

		GetLogger().Info("hidden")
		GetLogger().Error("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("should fall back to info on an invalid level", func(t *testing.T) {
		buf := setupTestLogger(t, config.LoggerConfig{Level: "loud", Format: "json"})

		GetLogger().Debug("debug line")
		GetLogger().Info("info line")

		assert.NotContains(t, buf.String(), "debug line")
		assert.Contains(t, buf.String(), "info line")
	})

	t.Run("should only initialize once", func(t *testing.T) {
		first := setupTestLogger(t, config.LoggerConfig{Level: "info", Format: "json"})
		second := new(bytes.Buffer)
		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.AddSync(second))

		GetLogger().Info("once")
		assert.Contains(t, first.String(), "once")
		assert.Empty(t, second.String())
	})

	t.Run("should tee into a rotating file", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "workink.log")
		setupTestLogger(t, config.LoggerConfig{Level: "info", Format: "console", LogFile: logFile, MaxSize: 1})

		GetLogger().Info("to file")
		Sync()

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		line := strings.TrimSpace(string(data))
		assert.True(t, strings.HasPrefix(line, "{"), "file sink should be JSON")
		assert.Contains(t, line, "to file")
	})
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	logger := GetLogger()
	require.NotNil(t, logger)
}
