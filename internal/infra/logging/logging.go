package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"x402-subscriptions/internal/config"

	"github.com/rs/zerolog"
)

// New builds the process logger. Unknown or empty levels fall back to info.
// Console output is used in dev or when format is "console"; otherwise JSON.
// Sampling (first 100 events, then 1 in 100) only applies outside dev.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	return newLogger(os.Stdout, cfg, dev)
}

func newLogger(w io.Writer, cfg config.LogConfig, dev bool) *zerolog.Logger {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err == nil && cfg.Level != "" {
		level = parsed
	}
	zerolog.SetGlobalLevel(level)

	if dev || strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(w).With().Timestamp().Str("service", "x402-subscriptions").Logger()
	if cfg.Sampling && !dev {
		logger = logger.Sample(&zerolog.BasicSampler{N: 100})
	}
	return &logger
}

type ctxKey int

const (
	traceIDKey ctxKey = iota
	subscriptionIDKey
	providerIDKey
)

// fields in the order they are attached to a derived logger
var ctxFields = []struct {
	key  ctxKey
	name string
}{
	{traceIDKey, "trace_id"},
	{subscriptionIDKey, "subscription_id"},
	{providerIDKey, "provider_id"},
}

// With derives a logger carrying whichever request-scoped ids ctx holds.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	lc := base.With()
	for _, f := range ctxFields {
		if v, _ := ctx.Value(f.key).(string); v != "" {
			lc = lc.Str(f.name, v)
		}
	}
	derived := lc.Logger()
	return &derived
}

// TraceDuration emits start/finish events at trace level.
//
//	defer logging.TraceDuration(logger, "Lifecycle.Renew")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	began := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		logger.Trace().Str("method", name).Dur("duration", time.Since(began)).Msg("finish")
	}
}

// Redact keeps the 0x prefix plus a few leading and trailing characters of
// wallet addresses and hashes. Dev mode logs them in full.
func Redact(s string, dev bool) string {
	switch {
	case dev:
		return s
	case len(s) <= 10:
		return "***"
	default:
		return s[:6] + "..." + s[len(s)-4:]
	}
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

func WithSubscriptionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, subscriptionIDKey, id)
}

func WithProviderID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, providerIDKey, id)
}
