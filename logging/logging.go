// Package logging builds the zerolog logger used by both binaries.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"madigan/config"
)

// EnvLogLevel overrides log.level when set.
const EnvLogLevel = "MADIGAN_LOG_LEVEL"

// New returns a logger writing to out (console or JSON per cfg.Format) and,
// when cfg.File is set, to a rotating file as JSON. The returned closer
// releases the file; it is a no-op otherwise. The logger also becomes the
// zerolog global.
func New(cfg config.Log, app string, out io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}
	if env, ok := os.LookupEnv(EnvLogLevel); ok && strings.TrimSpace(env) != "" {
		if level, err = parseLevel(env); err != nil {
			return zerolog.Nop(), nopCloser{}, err
		}
	}

	var w io.Writer = out
	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
			LocalTime:  true,
		}
		w = zerolog.MultiLevelWriter(w, file)
		closer = file
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger, closer, nil
}

func parseLevel(raw string) (zerolog.Level, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(raw)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
