// Package logger builds the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // Enable pretty console output
	File   string // Optional log file, rotated by size

	MaxSizeMB  int // Defaults to 50
	MaxBackups int // Defaults to 5
	MaxAgeDays int // Defaults to 30
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// New creates a new structured logger
func New(cfg Config) zerolog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter creates a logger whose console output goes to w
func NewWithWriter(cfg Config, w io.Writer) zerolog.Logger {
	level := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = w
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "15:04:05",
		}
	}

	// File output is always JSON so it stays machine-readable
	if fileWriter := newFileWriter(cfg); fileWriter != nil {
		output = zerolog.MultiLevelWriter(output, fileWriter)
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()
}

func newFileWriter(cfg Config) io.Writer {
	if cfg.File == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil
	}

	fw := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	if fw.MaxSize <= 0 {
		fw.MaxSize = 50
	}
	if fw.MaxBackups <= 0 {
		fw.MaxBackups = 5
	}
	if fw.MaxAge <= 0 {
		fw.MaxAge = 30
	}
	return fw
}

// SetGlobalLogger sets the package-level logger
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
