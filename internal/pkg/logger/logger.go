package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with additional functionality
type Logger struct {
	*logrus.Logger
}

// Fields type for structured logging
type Fields map[string]interface{}

// ContextKey type for context values
type contextKey string

const (
	// CorrelationIDKey is the context key for correlation ID
	CorrelationIDKey contextKey = "correlation_id"
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
)

var (
	// defaultLogger is the global logger instance
	defaultLogger *Logger
)

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, text
	Output     io.Writer
	ReportCaller bool
}

// New creates a new logger instance
func New(cfg Config) *Logger {
	log := logrus.New()

	// Set log level
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	// Set output format
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
				logrus.FieldKeyFunc:  "caller",
			},
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	// Set output
	if cfg.Output != nil {
		log.SetOutput(cfg.Output)
	} else {
		log.SetOutput(os.Stdout)
	}

	// Set caller reporting
	log.SetReportCaller(cfg.ReportCaller)

	return &Logger{Logger: log}
}

// Init initializes the default logger
func Init(cfg Config) {
	defaultLogger = New(cfg)
}

// GetLogger returns the default logger instance
func GetLogger() *Logger {
	if defaultLogger == nil {
		// Initialize with default config if not set
		Init(Config{
			Level:  "info",
			Format: "json",
		})
	}
	return defaultLogger
}

// WithFields creates a new logger entry with fields
func (l *Logger) WithFields(fields Fields) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields(fields))
}

// WithContext creates a new logger entry with context values
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithContext(ctx)

	// Add correlation ID if present
	if correlationID := ctx.Value(CorrelationIDKey); correlationID != nil {
		entry = entry.WithField("correlation_id", correlationID)
	}

	// Add request ID if present
	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		entry = entry.WithField("request_id", requestID)
	}

	return entry
}

// WithError creates a new logger entry with error
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}

// Helper methods for structured logging

// Debug logs a debug message
func Debug(msg string, fields ...Fields) {
	entry := GetLogger().Logger
	if len(fields) > 0 {
		entry = GetLogger().WithFields(fields[0]).Logger
	}
	entry.Debug(msg)
}

// Info logs an info message
func Info(msg string, fields ...Fields) {
	entry := GetLogger().Logger
	if len(fields) > 0 {
		entry = GetLogger().WithFields(fields[0]).Logger
	}
	entry.Info(msg)
}

// Warn logs a warning message
func Warn(msg string, fields ...Fields) {
	entry := GetLogger().Logger
	if len(fields) > 0 {
		entry = GetLogger().WithFields(fields[0]).Logger
	}
	entry.Warn(msg)
}

// Error logs an error message
func Error(msg string, err error, fields ...Fields) {
	entry := GetLogger().WithError(err)
	if len(fields) > 0 {
		entry = entry.WithFields(logrus.Fields(fields[0]))
	}
	entry.Error(msg)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, err error, fields ...Fields) {
	entry := GetLogger().WithError(err)
	if len(fields) > 0 {
		entry = entry.WithFields(logrus.Fields(fields[0]))
	}
	entry.Fatal(msg)
}

// WithContext logs with context
func WithContext(ctx context.Context) *logrus.Entry {
	return GetLogger().WithContext(ctx)
}

// WithFields logs with fields
func WithFields(fields Fields) *logrus.Entry {
	return GetLogger().WithFields(fields)
}

// Domain logging helpers

// LogRateFetched logs a successful provider fetch
func LogRateFetched(ctx context.Context, providerID, pair string, rate string, latencyMS int64) {
	GetLogger().WithContext(ctx).WithFields(logrus.Fields{
		"event":       "rate_fetched",
		"provider_id": providerID,
		"pair":        pair,
		"rate":        rate,
		"latency_ms":  latencyMS,
	}).Info("provider rate fetched")
}

// LogRateFetchFailed logs a failed provider fetch
func LogRateFetchFailed(ctx context.Context, providerID, pair string, err error) {
	GetLogger().WithContext(ctx).WithError(err).WithFields(logrus.Fields{
		"event":       "rate_fetch_failed",
		"provider_id": providerID,
		"pair":        pair,
	}).Warn("provider rate fetch failed")
}

// LogBreakerTransition logs a circuit breaker state change
func LogBreakerTransition(ctx context.Context, providerID, from, to, reason string) {
	GetLogger().WithContext(ctx).WithFields(logrus.Fields{
		"event":       "breaker_transition",
		"provider_id": providerID,
		"from_state":  from,
		"to_state":    to,
		"reason":      reason,
	}).Warn("circuit breaker transitioned")
}

// LogAggregationFallback logs a fallback to stale cache or a deviation breach
func LogAggregationFallback(ctx context.Context, pair, reason string, fields Fields) {
	if fields == nil {
		fields = Fields{}
	}
	fields["event"] = "aggregation_fallback"
	fields["pair"] = pair
	fields["reason"] = reason
	GetLogger().WithContext(ctx).WithFields(logrus.Fields(fields)).Warn("aggregation fell back")
}

// LogCycleSummary logs the outcome of one ingestor cycle
func LogCycleSummary(ctx context.Context, attempted, succeeded, failed int, durationMS int64) {
	GetLogger().WithContext(ctx).WithFields(logrus.Fields{
		"event":         "ingestor_cycle_summary",
		"pairs_attempted": attempted,
		"pairs_succeeded": succeeded,
		"pairs_failed":    failed,
		"duration_ms":     durationMS,
	}).Info("ingestor cycle completed")
}

// LogCycleFailureCritical logs a cycle-level failure at CRITICAL severity
// (e.g. every provider down, durable store unreachable).
func LogCycleFailureCritical(ctx context.Context, reason string, err error) {
	GetLogger().WithContext(ctx).WithError(err).WithFields(logrus.Fields{
		"event":    "ingestor_cycle_critical_failure",
		"reason":   reason,
		"severity": "critical",
	}).Error("ingestor cycle failed critically")
}

// SanitizeFields removes sensitive data from log fields
func SanitizeFields(fields Fields) Fields {
	sanitized := make(Fields)
	sensitiveKeys := []string{
		"password", "private_key", "secret", "token", "api_key",
		"credit_card", "ssn", "tax_id",
	}

	for k, v := range fields {
		// Check if key contains sensitive information
		isSensitive := false
		for _, sensitive := range sensitiveKeys {
			if contains(k, sensitive) {
				isSensitive = true
				break
			}
		}

		if isSensitive {
			sanitized[k] = "[REDACTED]"
		} else {
			sanitized[k] = v
		}
	}

	return sanitized
}

// contains checks if a string contains a substring (case-insensitive)
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
