package es

import (
	"log/slog"
	"time"
)

type (
	valueOption[T any] struct{ v T }
	MultiOption[T any] struct{ opts []T }

	LogOption struct {
		l *slog.Logger
	}

	// Clock returns the current time. Stores stamp OccurredAt with it.
	Clock func() time.Time

	ClockOption valueOption[Clock]
)

func WithLog(l *slog.Logger) LogOption { return LogOption{l: l} }

func WithClock(c Clock) ClockOption { return ClockOption{v: c} }

// DefaultClock returns UTC wall clock time.
func DefaultClock() Clock { return func() time.Time { return time.Now().UTC() } }

func logOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
