package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/saltyorg/sqlitepie/internal/config"
)

const (
	DefaultMaxSizeMB  = 50
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 30
	DefaultCompress   = true

	timeFormat = "2006-01-02 15:04:05"
)

// Apply sets the global log level and output writers. The console goes to
// stderr so that command output on stdout stays machine readable. When
// logFilePath is set, events are also written to a rotating file there.
func Apply(level string, loader *config.Loader, logFilePath string) {
	apply(os.Stderr, level, loader, logFilePath)
}

func apply(console io.Writer, level string, loader *config.Loader, logFilePath string) {
	applyLevel(level)
	applyOutputs(console, loader, logFilePath)
}

func applyLevel(level string) {
	switch level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func applyOutputs(console io.Writer, loader *config.Loader, logFilePath string) {
	// Stdout carries command results (query rows, DDL), so log lines stay on
	// the console writer given by Apply, which is stderr.
	consoleOutput := zerolog.ConsoleWriter{Out: console, TimeFormat: timeFormat}
	log.Logger = zerolog.New(consoleOutput).With().Timestamp().Logger()

	if logFilePath == "" {
		return
	}

	maxSize := DefaultMaxSizeMB
	if val := loader.Int("log.max_size_mb", DefaultMaxSizeMB); val > 0 {
		maxSize = val
	}
	maxBackups := DefaultMaxBackups
	if val := loader.Int("log.max_backups", DefaultMaxBackups); val >= 0 {
		maxBackups = val
	}
	maxAgeDays := DefaultMaxAgeDays
	if val := loader.Int("log.max_age_days", DefaultMaxAgeDays); val >= 0 {
		maxAgeDays = val
	}
	compress := loader.Bool("log.compress", DefaultCompress)

	if err := ensureLogDir(logFilePath); err != nil {
		log.Error().Err(err).Str("path", logFilePath).Msg("Failed to prepare log directory; logging to console only")
		return
	}

	fileWriter := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   compress,
	}

	fileConsole := zerolog.ConsoleWriter{
		Out:        fileWriter,
		TimeFormat: timeFormat,
		NoColor:    true,
	}

	multi := zerolog.MultiLevelWriter(consoleOutput, fileConsole)
	log.Logger = zerolog.New(multi).With().Timestamp().Logger()
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
