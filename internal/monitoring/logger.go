package monitoring

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger provides structured logging with domain helpers.
type Logger struct {
	*slog.Logger
}

// LogOptions selects the level and encoding of a Logger.
type LogOptions struct {
	Level  string    // debug, info, warn, error
	Format string    // json or text
	Output io.Writer // defaults to stdout
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a logger writing RFC3339 timestamps under the "timestamp" key.
func NewLogger(opts LogOptions) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	level := ParseLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip string, statusCode int, duration time.Duration) {
	level := slog.LevelInfo
	if statusCode >= 500 {
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// PredictionLogger logs a completed prediction.
func (l *Logger) PredictionLogger(method string, probability, confidence float64, duration time.Duration, cacheHit bool) {
	l.Info("Prediction Completed",
		"method", method,
		"probability", probability,
		"confidence", confidence,
		"duration_ms", duration.Milliseconds(),
		"cache_hit", cacheHit,
	)
}

// TrainingLogger logs one recorded training epoch.
func (l *Logger) TrainingLogger(runID string, epoch int, loss, trainAccuracy float64, validationAccuracy *float64) {
	attrs := []any{
		"run_id", runID,
		"epoch", epoch,
		"loss", loss,
		"train_accuracy", trainAccuracy,
	}
	if validationAccuracy != nil {
		attrs = append(attrs, "validation_accuracy", *validationAccuracy)
	}
	l.Info("Training Progress", attrs...)
}

// APIErrorLogger logs API errors with context
func (l *Logger) APIErrorLogger(err error, method, path, ip string, statusCode int) {
	l.Error("API Error",
		"error", err.Error(),
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
	)
}

// ExternalAPILogger logs calls to remote collaborators.
func (l *Logger) ExternalAPILogger(apiName string, duration time.Duration, err error) {
	if err != nil {
		l.Warn("External API Call",
			"api_name", apiName,
			"duration_ms", duration.Milliseconds(),
			"success", false,
			"error", err.Error(),
		)
		return
	}
	l.Debug("External API Call",
		"api_name", apiName,
		"duration_ms", duration.Milliseconds(),
		"success", true,
	)
}

// SystemLogger logs system-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).Round(time.Second).String(),
	)
}

var startTime = time.Now()
