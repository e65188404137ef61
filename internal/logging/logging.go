package logging

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

const appName = "overlay-hotkeys"

// New creates a new zerolog logger with console and file output at info
// level.
func New() zerolog.Logger {
	return NewWithLevel("info")
}

// NewWithLevel is New with a level name such as "debug". An unknown name
// falls back to info. When the log file cannot be opened the logger writes
// to the console only.
func NewWithLevel(level string) zerolog.Logger {
	return newLogger(os.Stderr, Path(), level)
}

func newLogger(console io.Writer, logPath, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}}

	var fileErr error
	if fileErr = os.MkdirAll(filepath.Dir(logPath), 0o755); fileErr == nil {
		var logFile *os.File
		logFile, fileErr = os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if fileErr == nil {
			writers = append(writers, logFile)
		}
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().Timestamp().Caller().Logger()
	if fileErr != nil {
		logger.Warn().Err(fileErr).Str("path", logPath).Msg("Logging to console only")
	}
	return logger
}

// Path returns the platform-specific log file path
func Path() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Logs"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/state"
		}
	}

	return filepath.Join(base, appName, appName+".log")
}
