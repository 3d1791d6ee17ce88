/*
Package logx provides a structured logging wrapper based on zerolog.

It is responsible for initializing the global logger and providing unified
helper functions for the Info, Warn, and Error levels.
Because the terminal itself is owned by the chat UI, log output goes to a
file when one is configured and is discarded otherwise.
*/
package logx

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the global zerolog instance.
// When logFile is non-empty, log records are appended to that file as JSON
// with Unix timestamps and caller information. When it is empty, logging
// is disabled entirely so nothing interferes with the terminal UI.
func Init(logFile string) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var out io.Writer = io.Discard
	level := zerolog.Disabled

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		out = f
		level = zerolog.DebugLevel
	}

	log.Logger = zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()

	return nil
}

// Logger returns a pointer to the global zerolog.Logger instance.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// checkFields validates that the variadic fields parameter has an even number (key-value pairs).
// If the count is odd, it logs a warning and returns nil to prevent zerolog from panicking.
func checkFields(level string, fields []any) []any {
	if len(fields)%2 != 0 {
		Logger().Warn().
			Int("fields_count", len(fields)).
			Str("log_level", level).
			Msgf("Logx call (%s) received odd number of fields: %v. Fields ignored.", level, fields)
		return nil
	}
	return fields
}

// Info records a log message at the Info level.
// It accepts a formatted message string and optional key-value field list.
func Info(msg string, fields ...any) {
	fields = checkFields("Info", fields)

	Logger().Info().
		Fields(fields).
		CallerSkipFrame(1).
		Msg(msg)
}

// Warn records a log message at the Warn level.
// It accepts a formatted message string and optional key-value field list.
func Warn(msg string, fields ...any) {
	fields = checkFields("Warn", fields)

	Logger().Warn().
		Fields(fields).
		CallerSkipFrame(1).
		Msg(msg)
}

// Error records a log message at the Error level.
// It accepts an error object, a formatted message string, and an optional key-value field list.
func Error(err error, msg string, fields ...any) {
	fields = checkFields("Error", fields)

	Logger().Error().
		Err(err).
		Fields(fields).
		CallerSkipFrame(1).
		Msg(msg)
}
