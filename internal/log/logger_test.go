package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWithCapture(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, slog.LevelDebug)

	logger.Debug("debug message", String("key", "value"))
	logger.Info("info message", Int("count", 42))
	logger.Warn("warn message", Bool("flag", true))
	logger.Error("error message", Duration("elapsed", time.Second))

	output := buf.String()
	assert.Contains(t, output, "debug message")
	assert.Contains(t, output, "info message")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")

	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.Len(t, lines, 4)
	for _, line := range lines {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.NotNil(t, entry["msg"])
		assert.NotNil(t, entry["level"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTextLogger(&buf, slog.LevelWarn)

	logger.Info("dropped")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
	assert.False(t, logger.Enabled(slog.LevelInfo))
	assert.True(t, logger.Enabled(slog.LevelError))
}

func TestLoggerWithDomainAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, slog.LevelInfo).With(String("device", "dev-1"))

	logger.Info("page relocated", LogicalPage(3), Location("from", 2, 1), Location("to", 0, 0))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "dev-1", entry["device"])
	assert.Equal(t, float64(3), entry["lpn"])

	from, ok := entry["from"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), from["block"])
	assert.Equal(t, float64(1), from["page"])
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.False(t, logger.Enabled(slog.LevelError))
	logger.Error("nothing happens", Block(1))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParseLevel(tt.input), tt.input)
	}
}

func TestParseOutput(t *testing.T) {
	assert.Equal(t, os.Stdout, ParseOutput("stdout"))
	assert.Equal(t, os.Stderr, ParseOutput("stderr"))
	assert.Equal(t, os.Stderr, ParseOutput(""))
}

func TestConfigure(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	logger := Configure(Config{Level: "debug", Format: "json", Output: "stderr"})
	assert.Equal(t, logger, Default())
	assert.True(t, logger.Enabled(slog.LevelDebug))

	logger = Configure(Config{Level: "error", Format: "text"})
	assert.False(t, logger.Enabled(slog.LevelWarn))
}

func TestPackageLevelFunctions(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(NewJSONLogger(&buf, slog.LevelDebug))

	Debug("debug")
	Warn("warn")
	Error("error")

	output := buf.String()
	for _, want := range []string{"debug", "warn", "error"} {
		assert.Contains(t, output, want)
	}
}
