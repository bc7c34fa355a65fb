package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Format selects the output encoding.
type Format string

const (
	FormatPretty Format = "pretty"
	FormatJSON   Format = "json"
)

var (
	mu       sync.RWMutex
	logger   *slog.Logger
	levelVar = new(slog.LevelVar)
	initOnce sync.Once
)

// initLogger installs the default pretty stderr logger on first use.
func initLogger() {
	initOnce.Do(func() {
		levelVar.Set(slog.LevelInfo)
		logger = slog.New(newHandler(os.Stderr, FormatPretty))
	})
}

func newHandler(w io.Writer, f Format) slog.Handler {
	if f == FormatJSON {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelVar})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      levelVar,
		TimeFormat: time.RFC3339,
	})
}

// Setup replaces the output writer and format. Intended to be called once
// from main after config load; tests use it to capture output.
func Setup(w io.Writer, f Format, l Level) {
	initLogger()
	mu.Lock()
	logger = slog.New(newHandler(w, f))
	mu.Unlock()
	SetLevel(l)
}

func SetLevel(l Level) {
	initLogger()
	levelVar.Set(toSlog(l))
}

// ParseLevel maps a config string onto a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ParseFormat maps a config string onto a Format, defaulting to pretty.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatJSON)) {
		return FormatJSON
	}
	return FormatPretty
}

func Debug(msg string, kv ...any) {
	logWithLevel(slog.LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(slog.LevelInfo, msg, kv...)
}

func Warn(msg string, kv ...any) {
	logWithLevel(slog.LevelWarn, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	logWithLevel(slog.LevelError, msg, extended...)
}

// Logger exposes the underlying slog.Logger for libraries that want one.
func Logger() *slog.Logger {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func logWithLevel(level slog.Level, msg string, kv ...any) {
	l := Logger()
	if !l.Enabled(context.Background(), level) {
		return
	}
	// Odd trailing key is dropped, as with the old line format.
	if len(kv)%2 == 1 {
		kv = kv[:len(kv)-1]
	}
	l.Log(context.Background(), level, msg, kv...)
}

func toSlog(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
