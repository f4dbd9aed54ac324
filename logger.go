package hadb

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"
)

// Level is the severity of a log entry.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelCritical:
		return "critical"
	default:
		return fmt.Sprintf("level(%d)", int8(l))
	}
}

// Fields are the named values substituted into a message template.
type Fields map[string]any

// Logger receives log entries. msg is a template where "{name}" is
// replaced by the matching entry of fields.
type Logger interface {
	Log(level Level, msg string, fields Fields)
}

// Interpolate replaces "{name}" placeholders in msg. Placeholders with
// no field, or with a value that has no natural string form, are kept.
func Interpolate(msg string, fields Fields) string {
	if len(fields) == 0 || !strings.Contains(msg, "{") {
		return msg
	}
	pairs := make([]string, 0, len(fields)*2)
	for k, v := range fields {
		s, ok := scalarString(v)
		if !ok {
			continue
		}
		pairs = append(pairs, "{"+k+"}", s)
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}

func scalarString(v any) (string, bool) {
	// Error and String methods may dereference a nil receiver.
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return "<nil>", true
	}
	switch v := v.(type) {
	case nil:
		return "", true
	case string:
		return v, true
	case error:
		return v.Error(), true
	case fmt.Stringer:
		return v.String(), true
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return fmt.Sprint(v), true
	default:
		return "", false
	}
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Log(Level, string, Fields) {}

// slogLevelCritical sits above slog.LevelError.
const slogLevelCritical = slog.LevelError + 4

// SlogLogger writes entries to a *slog.Logger. The message is
// interpolated and every field is also attached as an attribute.
type SlogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

func NewSlogLogger(logger *slog.Logger) SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return SlogLogger{
		logger: logger,
		ctx:    context.Background(),
	}
}

func (l *SlogLogger) WithContext(ctx context.Context) SlogLogger {
	return SlogLogger{
		logger: l.logger,
		ctx:    ctx,
	}
}

func (l SlogLogger) Log(level Level, msg string, fields Fields) {
	attrs := make([]slog.Attr, 0, len(fields))
	for k, v := range fields {
		switch v := v.(type) {
		case error:
			attrs = append(attrs, slog.String(k, v.Error()))
		case time.Duration:
			attrs = append(attrs, slog.String(k, v.String()))
		default:
			attrs = append(attrs, slog.Any(k, v))
		}
	}
	l.logger.LogAttrs(l.ctx, slogLevel(level), Interpolate(msg, fields), attrs...)
}

func slogLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slogLevelCritical
	}
}
