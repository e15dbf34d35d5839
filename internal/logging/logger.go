// Package logging provides the structured zerolog logger used by every
// pipeline stage. Console output is used when stderr is a terminal, JSON
// otherwise; file output is rotated.
//
//	log := logging.FromContext(ctx)
//	log.Warn().Str("pin", pin).Str("stage", "join").Msg("duplicate tabular row")
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration.
type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // auto, console or json
	Output     string `mapstructure:"output"` // stderr, stdout, discard or a file path
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	NoColor    bool   `mapstructure:"no_color"`
}

// DefaultConfig returns info level, auto format, stderr.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "auto",
		Output:     "stderr",
		MaxSizeMB:  50,
		MaxBackups: 5,
		NoColor:    os.Getenv("NO_COLOR") != "",
	}
}

var defaultLogger = New(os.Stderr)

// Default returns the process-wide logger.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l zerolog.Logger) {
	defaultLogger = l
}

// New creates a JSON logger writing to w.
func New(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// NewFromConfig builds a logger from cfg.
func NewFromConfig(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out, isTTY := writer(cfg)
	format := strings.ToLower(cfg.Format)
	if format == "" || format == "auto" {
		format = "json"
		if isTTY {
			format = "console"
		}
	}

	if format == "console" {
		if f, ok := out.(*os.File); ok && isTTY {
			EnableVT(f)
		}
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.DateTime,
			NoColor:    cfg.NoColor || !isTTY,
		}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// Configure installs a logger built from cfg as the default.
func Configure(cfg Config) {
	SetDefault(NewFromConfig(cfg))
}

// writer resolves the output destination and whether it is a terminal.
func writer(cfg Config) (io.Writer, bool) {
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		return os.Stderr, term.IsTerminal(int(os.Stderr.Fd()))
	case "stdout":
		return os.Stdout, term.IsTerminal(int(os.Stdout.Fd()))
	case "discard", "none":
		return io.Discard, false
	default:
		return &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}, false
	}
}

type ctxKey struct{}

// WithLogger stores l in ctx.
func WithLogger(ctx context.Context, l *zerolog.Logger) context.Context {
	if l == nil {
		l = Default()
	}
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or the default.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return Default()
	}
	if l, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok && l != nil {
		return l
	}
	return Default()
}

// WithField returns a context whose logger carries key=value.
func WithField(ctx context.Context, key, value string) context.Context {
	l := FromContext(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, &l)
}

// WithStage tags the context logger with the pipeline stage.
func WithStage(ctx context.Context, stage string) context.Context {
	return WithField(ctx, "stage", stage)
}

// WithRunID tags the context logger with the run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return WithField(ctx, "run_id", runID)
}
