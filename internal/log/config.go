package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config represents logging configuration.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	Output string `json:"output" yaml:"output"`
}

// DefaultConfig returns default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}
}

// ParseLevel parses string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseOutput maps an output name to a writer. Unknown names fall back to stderr.
func ParseOutput(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout
	default:
		return os.Stderr
	}
}

// Configure sets up the default logger based on config and returns it.
func Configure(cfg Config) Logger {
	level := ParseLevel(cfg.Level)
	w := ParseOutput(cfg.Output)

	var logger Logger
	switch strings.ToLower(cfg.Format) {
	case "json":
		logger = NewJSONLogger(w, level)
	default:
		logger = NewTextLogger(w, level)
	}

	SetDefault(logger)
	return logger
}
