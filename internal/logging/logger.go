// Package logging builds the logrus loggers shared by the HTTP and MCP processes
// and carries request-scoped fields through context.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/symptom-assessment-server/internal/domain"
)

type contextKey struct{}

// NewLogger creates a logger from configuration. Unknown levels fall back to info.
func NewLogger(cfg domain.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	out, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(out)

	return logger, nil
}

func openOutput(cfg domain.LoggingConfig) (io.Writer, error) {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file":
		if cfg.Filename == "" {
			return nil, fmt.Errorf("logging output is file but no filename is set")
		}
		f, err := os.OpenFile(cfg.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported logging output: %s", cfg.Output)
	}
}

// WithRequestID returns a context carrying the request id used in log entries.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, requestID)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

// Entry returns a log entry tagged with the request id in ctx, if any.
func Entry(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	entry := logrus.NewEntry(logger)
	if id := RequestID(ctx); id != "" {
		entry = entry.WithField("request_id", id)
	}
	return entry
}
