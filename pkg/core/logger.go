package core

import (
	"fmt"

	"github.com/rs/zerolog"

	eventalog "github.com/fluxorio/eventa/pkg/log"
)

// Logger provides structured logging capabilities
// This abstraction allows swapping logging implementations
//
// The non-f methods take a message followed by key/value pairs:
//
//	logger.Error("listener failed", "tag", tag, "error", err)
type Logger interface {
	// Error logs an error message
	Error(args ...interface{})

	// Errorf logs a formatted error message
	Errorf(format string, args ...interface{})

	// Warn logs a warning message
	Warn(args ...interface{})

	// Warnf logs a formatted warning message
	Warnf(format string, args ...interface{})

	// Info logs an informational message
	Info(args ...interface{})

	// Infof logs a formatted informational message
	Infof(format string, args ...interface{})

	// Debug logs a debug message
	Debug(args ...interface{})

	// Debugf logs a formatted debug message
	Debugf(format string, args ...interface{})

	// With returns a logger that adds the key/value pairs to every entry
	With(args ...interface{}) Logger
}

// zerologLogger implements Logger on top of zerolog
type zerologLogger struct {
	l zerolog.Logger
}

// NewLogger wraps a zerolog logger
func NewLogger(l zerolog.Logger) Logger {
	return &zerologLogger{l: l}
}

// NewDefaultLogger returns a logger derived from the process-wide logger
func NewDefaultLogger() Logger {
	return NewLogger(eventalog.WithComponent("eventa"))
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() Logger {
	return NewLogger(zerolog.Nop())
}

func (z *zerologLogger) Error(args ...interface{}) {
	write(z.l.Error(), args)
}

func (z *zerologLogger) Errorf(format string, args ...interface{}) {
	z.l.Error().Msgf(format, args...)
}

func (z *zerologLogger) Warn(args ...interface{}) {
	write(z.l.Warn(), args)
}

func (z *zerologLogger) Warnf(format string, args ...interface{}) {
	z.l.Warn().Msgf(format, args...)
}

func (z *zerologLogger) Info(args ...interface{}) {
	write(z.l.Info(), args)
}

func (z *zerologLogger) Infof(format string, args ...interface{}) {
	z.l.Info().Msgf(format, args...)
}

func (z *zerologLogger) Debug(args ...interface{}) {
	write(z.l.Debug(), args)
}

func (z *zerologLogger) Debugf(format string, args ...interface{}) {
	z.l.Debug().Msgf(format, args...)
}

func (z *zerologLogger) With(args ...interface{}) Logger {
	return &zerologLogger{l: z.l.With().Fields(args).Logger()}
}

// write treats args[0] as the message and the rest as key/value pairs.
// A dangling key is logged under "extra".
func write(e *zerolog.Event, args []interface{}) {
	if e == nil {
		return
	}
	if len(args) == 0 {
		e.Send()
		return
	}

	msg := fmt.Sprint(args[0])
	kv := args[1:]
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		switch v := kv[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case string:
			e = e.Str(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	if len(kv)%2 == 1 {
		e = e.Interface("extra", kv[len(kv)-1])
	}
	e.Msg(msg)
}
