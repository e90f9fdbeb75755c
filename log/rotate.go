package log

import (
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileRotationConfig configures size/age-based rotation for a log file
// written alongside the process's stderr output.
type FileRotationConfig struct {
	// Path is the log file to write to.
	Path string
	// MaxSizeMB rotates the file once it exceeds this size, in megabytes.
	MaxSizeMB int
	// MaxBackups caps how many rotated files are kept.
	MaxBackups int
	// MaxAgeDays deletes rotated files older than this many days.
	MaxAgeDays int
}

// NewRotatingFile creates a Logger that writes JSON log lines to a
// self-rotating file, handing rotation bookkeeping to lumberjack instead of
// reimplementing size/age-based log rolling.
func NewRotatingFile(cfg FileRotationConfig, level slog.Level) *Logger {
	writer := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	return NewWithHandler(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level}))
}
