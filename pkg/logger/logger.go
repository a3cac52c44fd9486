package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// New returns a JSON structured logger.
// local and dev environments log at debug level, everything else at info.
func New(appEnv string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(appEnv) {
	case "local", "dev":
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", "calling-center")
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// ShutdownFlush waits up to max for the process to drain buffered output.
// The JSON handler writes synchronously, so only stdout is synced.
func ShutdownFlush(ctx context.Context, max time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- os.Stdout.Sync() }()

	select {
	case err := <-done:
		return err
	case <-time.After(max):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
