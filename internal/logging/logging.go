package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is a wrapper around zerolog.Logger
type Logger struct {
	logger zerolog.Logger
}

// Config holds logging configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// NewLogger creates a new logger with the given configuration, writing to
// stdout.
func NewLogger(cfg Config) (*Logger, error) {
	var output io.Writer = os.Stdout

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	log.Logger = logger

	return &Logger{logger: logger}, nil
}

// Raw returns the underlying zerolog.Logger, for components (gin middleware,
// the driver, the registry) that want to build their own field chains.
func (l *Logger) Raw() zerolog.Logger {
	return l.logger
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

// ErrorWithErr logs an error message with an error
func (l *Logger) ErrorWithErr(msg string, err error) {
	l.logger.Error().Err(err).Msg(msg)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) {
	l.logger.Fatal().Msg(msg)
}

// Fatalf logs a formatted fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatal().Msgf(format, args...)
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *Logger {
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

// LogHTTPRequest logs HTTP request details
func (l *Logger) LogHTTPRequest(method, path, clientIP string, statusCode int, duration time.Duration, requestID string) {
	evt := l.logger.Info().
		Str("method", method).
		Str("path", path).
		Str("client_ip", clientIP).
		Int("status_code", statusCode).
		Dur("duration_ms", duration)

	if requestID != "" {
		evt = evt.Str("request_id", requestID)
	}

	evt.Msg("HTTP request")
}

// LogSessionEvent logs a session lifecycle transition (started, stopped, spawn_failed).
func (l *Logger) LogSessionEvent(name, streamKey, event string, details map[string]interface{}) {
	evt := l.logger.Info().
		Str("name", name).
		Str("stream_key", streamKey).
		Str("event", event)

	for k, v := range details {
		evt = evt.Interface(k, v)
	}

	evt.Msg("session event")
}

// LogProbeResult logs the outcome of an origin-probe wait.
func (l *Logger) LogProbeResult(streamKey string, live bool, duration time.Duration) {
	l.logger.Info().
		Str("stream_key", streamKey).
		Bool("live", live).
		Dur("duration_ms", duration).
		Msg("origin probe")
}

// NewDefaultLogger creates a logger with default configuration
func NewDefaultLogger() (*Logger, error) {
	return NewLogger(Config{Level: "info", Format: "json"})
}

// NewConsoleLogger creates a logger with console output for development
func NewConsoleLogger() (*Logger, error) {
	return NewLogger(Config{Level: "debug", Format: "console"})
}
