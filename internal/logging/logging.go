// Package logging wires zerolog for the chat backend: a global logger, a
// logger carried in context, and a gin middleware that tags every request.
package logging

import (
	"context"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Field names used across log lines.
const (
	FieldRequestID      = "request_id"
	FieldMethod         = "method"
	FieldPath           = "path"
	FieldStatus         = "status"
	FieldLatency        = "latency_ms"
	FieldClientIP       = "client_ip"
	FieldService        = "service"
	FieldConversationID = "conversation_id"
	FieldMessageID      = "message_id"
	FieldComponent      = "component"
)

// Config holds logger configuration.
type Config struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	// Service is stamped on every line when set.
	Service string `yaml:"service"`
}

var (
	global zerolog.Logger
	once   sync.Once
)

func init() {
	global = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// New creates a configured logger writing to w. Pretty console output is
// used when requested or when w is a terminal.
func New(cfg Config, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if cfg.Pretty || isTerminal(w) {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(w).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	if cfg.Service != "" {
		logger = logger.With().Str(FieldService, cfg.Service).Logger()
	}
	return logger
}

// Init sets the global logger once and bridges the standard library logger
// into it, so stray log.Printf calls still come out structured.
func Init(cfg Config) {
	once.Do(func() {
		global = New(cfg, os.Stderr)
		stdlog.SetFlags(0)
		stdlog.SetOutput(global.With().Str("source", "stdlog").Logger())
	})
}

// L returns the global logger.
func L() zerolog.Logger {
	return global
}

type ctxKey struct{}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Ctx returns the logger stored in ctx, or the global logger.
func Ctx(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
			return l
		}
	}
	return L()
}

// ParseLevel maps a level name to a zerolog level. Unknown names mean info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
