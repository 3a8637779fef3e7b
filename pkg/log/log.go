package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// FileConfig enables rotated file output
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
	File       *FileConfig
}

// Init initializes the global logger
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Rotated files are always JSON
	if cfg.File != nil && cfg.File.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		Logger = zerolog.New(zerolog.MultiLevelWriter(consoleOrJSON(output, cfg.JSONOutput), rotator)).
			With().Timestamp().Logger()
		return
	}

	Logger = zerolog.New(consoleOrJSON(output, cfg.JSONOutput)).With().Timestamp().Logger()
}

func consoleOrJSON(output io.Writer, jsonOutput bool) io.Writer {
	if jsonOutput {
		return output
	}
	return zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithProcessID adds a process_id field to logger
func WithProcessID(logger zerolog.Logger, pid int64) zerolog.Logger {
	return logger.With().Int64("process_id", pid).Logger()
}
