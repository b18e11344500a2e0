package logging

import (
	"fmt"
	"io"
	"log/syslog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "CADDX_LOG_LEVEL"
	EnvLogTimestamp = "CADDX_LOG_TIMESTAMP"
	EnvLogNoColor   = "CADDX_LOG_NOCOLOR"
)

// Options controls logger construction
type Options struct {
	App       string
	Level     zerolog.Level
	Syslog    bool
	Timestamp bool
	NoColor   bool
	Out       io.Writer // Console destination, stderr when nil
}

// DefaultOptions returns runtime defaults: warnings and errors, timestamped.
func DefaultOptions(app string) Options {
	return Options{
		App:       app,
		Level:     zerolog.WarnLevel,
		Timestamp: true,
	}
}

// Setup builds the process logger, installs it as log.Logger and sets the
// global level. Environment variables override opts.
func Setup(opts Options) (zerolog.Logger, error) {
	applyEnvOverrides(&opts)

	var logger zerolog.Logger
	if opts.Syslog {
		w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, opts.App)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("failed to open syslog: %w", err)
		}
		logger = zerolog.New(zerolog.SyslogLevelWriter(w))
	} else {
		out := opts.Out
		if out == nil {
			out = os.Stderr
		}
		console := zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    opts.NoColor,
			TimeFormat: time.RFC3339,
		}
		ctx := zerolog.New(console).With()
		if opts.Timestamp {
			ctx = ctx.Timestamp()
		}
		logger = ctx.Logger()
	}

	if opts.App != "" {
		logger = logger.With().Str("app", opts.App).Logger()
	}

	zerolog.SetGlobalLevel(opts.Level)
	log.Logger = logger
	return logger, nil
}

// LevelFromVerbosity maps a -v count to a level: 0 error, 1 warn, 2 info, 3+ debug.
func LevelFromVerbosity(v int) zerolog.Level {
	switch {
	case v <= 0:
		return zerolog.ErrorLevel
	case v == 1:
		return zerolog.WarnLevel
	case v == 2:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

// ParseLevel accepts the usual level names plus "off".
func ParseLevel(raw string) (zerolog.Level, error) {
	if lvl, ok := parseLevel(raw); ok {
		return lvl, nil
	}
	return zerolog.NoLevel, fmt.Errorf("unknown log level %q", raw)
}

func applyEnvOverrides(opts *Options) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		opts.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		opts.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		opts.NoColor = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error", "err":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
