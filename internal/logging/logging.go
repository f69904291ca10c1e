// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects where and how verbosely the service logs.
type Config struct {
	Level   string // trace, debug, info, warn, error; default info
	File    string // log file path; empty means no file
	Console bool   // human-readable output on stderr
}

// DefaultFile returns ~/.local/state/slipmail/slipmail.log, or "" when the
// home directory is unknown.
func DefaultFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "slipmail", "slipmail.log")
}

// New returns a logger writing to the configured sinks and a cleanup func
// that closes the log file. When the file cannot be opened the logger falls
// back to stderr.
func New(cfg Config) (zerolog.Logger, func(), error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), func() {}, err
	}

	var writers []io.Writer
	cleanup := func() {}

	if cfg.File != "" {
		f, ferr := openLogFile(cfg.File)
		if ferr == nil {
			writers = append(writers, f)
			cleanup = func() { _ = f.Close() }
		} else {
			cfg.Console = true
		}
		err = ferr
	}
	if cfg.Console || len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	var out io.Writer = writers[0]
	if len(writers) > 1 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.File).Msg("log file unavailable, using stderr")
	}
	return logger, cleanup, nil
}

// ParseLevel maps a level name to a zerolog level. Blank means info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(s)
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}
