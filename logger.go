package hpx

import "log/slog"

// Logger is the interface for structured logging.
// It is designed to be compatible with *slog.Logger from the standard library.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger returns the default slog logger from the standard library.
func defaultLogger() Logger {
	return slog.Default()
}

// clientLogger prefixes every record with the client name.
type clientLogger struct {
	Logger
	name string
}

func (l clientLogger) Debug(msg string, args ...any) { l.Logger.Debug(msg, l.with(args)...) }
func (l clientLogger) Info(msg string, args ...any)  { l.Logger.Info(msg, l.with(args)...) }
func (l clientLogger) Warn(msg string, args ...any)  { l.Logger.Warn(msg, l.with(args)...) }
func (l clientLogger) Error(msg string, args ...any) { l.Logger.Error(msg, l.with(args)...) }

func (l clientLogger) with(args []any) []any {
	return append([]any{"client", l.name}, args...)
}
