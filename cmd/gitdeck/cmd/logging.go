package cmd

import (
	"io"
	"os"
	"strings"

	"github.com/brianly1003/gitdeck/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// setupLogging configures the global logger. The returned closer flushes
// the log file, if any.
func setupLogging(cfg config.LoggingConfig, verbose bool) (io.Closer, error) {
	level, cfg := resolveLogging(cfg, verbose)
	zerolog.SetGlobalLevel(level)

	out, closer := logWriter(cfg, os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closer, nil
}

// resolveLogging picks the level and applies --verbose, which forces debug
// level and console output.
func resolveLogging(cfg config.LoggingConfig, verbose bool) (zerolog.Level, config.LoggingConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
		cfg.Format = "console"
	}
	return level, cfg
}

// logWriter builds the log destination: stderr (human readable on a
// terminal or when asked for) plus an optional rotating file in JSON.
func logWriter(cfg config.LoggingConfig, stderr io.Writer, isTTY bool) (io.Writer, io.Closer) {
	var console io.Writer = stderr
	switch strings.ToLower(cfg.Format) {
	case "console":
		console = zerolog.ConsoleWriter{Out: stderr, NoColor: !isTTY}
	case "json":
	default:
		if isTTY {
			console = zerolog.ConsoleWriter{Out: stderr}
		}
	}

	if cfg.File == "" {
		return console, nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return zerolog.MultiLevelWriter(console, file), file
}
