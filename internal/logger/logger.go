package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with application-specific methods
type Logger struct {
	zerolog.Logger
}

// New creates a new Logger instance writing to stdout
func New(level string, format string) *Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter creates a Logger writing to out
func NewWithWriter(out io.Writer, level string, format string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger

	if format == "text" || format == "console" {
		// Human-readable output for development
		output := zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
		logger = zerolog.New(output).Level(lvl).With().Timestamp().Caller().Logger()
	} else {
		logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	}

	return &Logger{Logger: logger}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// WithRequestID returns a new logger with the request ID attached
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With().Str("request_id", requestID).Logger(),
	}
}

// WithUsername returns a new logger with the account name attached
func (l *Logger) WithUsername(username string) *Logger {
	return &Logger{
		Logger: l.With().Str("username", username).Logger(),
	}
}

// WithComponent returns a new logger with the component name attached
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With().Str("component", component).Logger(),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, statusCode int, duration time.Duration, clientIP string) {
	l.Info().
		Str("method", method).
		Str("path", path).
		Int("status", statusCode).
		Dur("duration", duration).
		Str("client_ip", clientIP).
		Msg("HTTP request")
}

// Audit mirrors a security audit record into the application log
func (l *Logger) Audit(actor, kind string, success bool, detail string) {
	event := l.Info()
	if !success {
		event = l.Warn()
	}
	event.
		Str("audit", "true").
		Str("actor", actor).
		Str("kind", kind).
		Bool("success", success).
		Str("detail", detail).
		Msg("audit event")
}
