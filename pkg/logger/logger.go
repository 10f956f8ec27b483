// Package logger provides structured logging for the mesh runtime with
// automatic redaction of sensitive values (tokens, credentials, signed URLs).
//
// It wraps the standard log/slog package with convenience functions for the
// recurring domain concerns of a SAM core process: mesh publish/deliver,
// task lifecycle transitions, and downstream HTTP calls made by the proxy.
// All exported functions use the global DefaultLogger, which can be
// reconfigured at process start via SetLevel/SetVerbose.
package logger

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// DefaultLogger is the global structured logger instance. Safe for concurrent use.
var DefaultLogger *slog.Logger

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		switch strings.ToLower(envLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	DefaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// SetLevel replaces the global logger with one at the given level.
func SetLevel(level slog.Level) {
	DefaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// SetVerbose is a convenience wrapper around SetLevel for CLI verbose flags.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
		return
	}
	SetLevel(slog.LevelInfo)
}

func Info(msg string, args ...any)  { DefaultLogger.Info(msg, args...) }
func Debug(msg string, args ...any) { DefaultLogger.Debug(msg, args...) }
func Warn(msg string, args ...any)  { DefaultLogger.Warn(msg, args...) }
func Error(msg string, args ...any) { DefaultLogger.Error(msg, args...) }

func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// MeshPublish logs a message published onto the event mesh.
func MeshPublish(topic string, payloadBytes int, attrs ...any) {
	all := append([]any{"topic", topic, "bytes", payloadBytes}, attrs...)
	Debug("mesh publish", all...)
}

// MeshDeliver logs a message delivered from the event mesh to a subscriber.
func MeshDeliver(topic string, payloadBytes int, attrs ...any) {
	all := append([]any{"topic", topic, "bytes", payloadBytes}, attrs...)
	Debug("mesh deliver", all...)
}

// TaskTransition logs a task state machine transition.
func TaskTransition(logicalTaskID, from, to string, attrs ...any) {
	all := append([]any{"task_id", logicalTaskID, "from", from, "to", to}, attrs...)
	Info("task transition", all...)
}

// DownstreamRequest logs an outbound HTTP call made by the proxy to a
// downstream agent. Headers and body are redacted before logging.
func DownstreamRequest(agent, method, url string, headers map[string]string) {
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	attrs := []any{"agent", agent, "method", method, "url", RedactSensitiveData(url)}
	if len(headers) > 0 {
		redacted := make(map[string]string, len(headers))
		for k, v := range headers {
			redacted[k] = RedactSensitiveData(v)
		}
		attrs = append(attrs, "headers", redacted)
	}
	Debug("downstream request", attrs...)
}

// DownstreamResponse logs the outcome of a downstream HTTP call.
func DownstreamResponse(agent string, statusCode int, err error) {
	if err != nil {
		Error("downstream response error", "agent", agent, "error", err.Error())
		return
	}
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	Debug("downstream response", "agent", agent, "status_code", statusCode)
}

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_\-\.]+`),
	regexp.MustCompile(`(?i)(token|secret|password)=([^&\s]+)`),
}

// RedactSensitiveData strips tokens, bearer credentials, and query-string
// secrets from a string while leaving enough of the prefix for debugging.
func RedactSensitiveData(input string) string {
	result := input
	for _, p := range sensitivePatterns {
		result = p.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "Bearer ") {
				return "Bearer [REDACTED]"
			}
			if len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return result
}

// JSONAttr marshals v for structured logging, falling back to an error tag
// if marshaling fails rather than panicking.
func JSONAttr(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "<unmarshalable>"
	}
	return string(b)
}
