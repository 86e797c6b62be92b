// Package log provides the structured logging used across emuplug.
// It wraps the Kratos logging system over a zerolog backend and exposes
// package-level helpers so registry code can log without carrying a logger.
package log

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// Level represents the logging level.
type Level int32

const (
	// DebugLevel logs are voluminous: per-callback and per-region detail.
	DebugLevel Level = iota
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs are more important than Info, but don't need individual human review.
	WarnLevel
	// ErrorLevel logs are high-priority.
	ErrorLevel
	// FatalLevel logs terminate the process.
	FatalLevel
)

// ParseLevel maps a configuration string to a Level, defaulting to InfoLevel
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return DebugLevel
	case "warn", "WARN", "warning":
		return WarnLevel
	case "error", "ERROR":
		return ErrorLevel
	case "fatal", "FATAL":
		return FatalLevel
	default:
		return InfoLevel
	}
}

func (l Level) kratos() log.Level {
	switch l {
	case DebugLevel:
		return log.LevelDebug
	case WarnLevel:
		return log.LevelWarn
	case ErrorLevel:
		return log.LevelError
	case FatalLevel:
		return log.LevelFatal
	default:
		return log.LevelInfo
	}
}

var (
	// Logger is the primary logging interface, nil until Init.
	Logger log.Logger

	// helperStore holds the current *log.Helper so the logger can be rebuilt
	// while other goroutines log.
	helperStore atomic.Value // of *log.Helper

	// minLevel is the level filter applied when the logger is built.
	minLevel atomic.Int32
)

func init() {
	minLevel.Store(int32(InfoLevel))
}

// SetLevel sets the global logging level and rebuilds the logger.
func SetLevel(level Level) {
	minLevel.Store(int32(level))
	rebuild()
}

// GetLevel returns the current global logging level.
func GetLevel() Level {
	return Level(minLevel.Load())
}

// fallbackLogger writes plain lines to stderr before Init
type fallbackLogger struct{}

func (f *fallbackLogger) logFormat(level Level, lvl, format string, args ...any) {
	if level < GetLevel() {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "[%s] [%s] [emuplug] %s\n", timestamp, lvl, msg)
}

func (f *fallbackLogger) logKV(level Level, lvl string, keyvals ...any) {
	if level < GetLevel() {
		return
	}
	f.logFormat(level, lvl, "%s", formatKV(keyvals...))
}

// formatKV renders keyvals as space separated key=value pairs, the way the
// kratos std logger does. A dangling key gets an empty value.
func formatKV(keyvals ...any) string {
	var b strings.Builder
	for i := 0; i < len(keyvals); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		var val any = ""
		if i+1 < len(keyvals) {
			val = keyvals[i+1]
		}
		fmt.Fprintf(&b, "%v=%v", keyvals[i], val)
	}
	return b.String()
}

var fallback = &fallbackLogger{}

// helper returns the current helper, nil before Init.
func helper() *log.Helper {
	if v := helperStore.Load(); v != nil {
		if h, ok := v.(*log.Helper); ok && h != nil {
			return h
		}
	}
	return nil
}

func Debug(a ...any) {
	if h := helper(); h != nil {
		h.Debug(a...)
	} else {
		fallback.logFormat(DebugLevel, "DEBUG", "%s", fmt.Sprint(a...))
	}
}

func Debugf(format string, a ...any) {
	if h := helper(); h != nil {
		h.Debugf(format, a...)
	} else {
		fallback.logFormat(DebugLevel, "DEBUG", format, a...)
	}
}

func Debugw(keyvals ...any) {
	if h := helper(); h != nil {
		h.Debugw(keyvals...)
	} else {
		fallback.logKV(DebugLevel, "DEBUG", keyvals...)
	}
}

func Info(a ...any) {
	if h := helper(); h != nil {
		h.Info(a...)
	} else {
		fallback.logFormat(InfoLevel, "INFO", "%s", fmt.Sprint(a...))
	}
}

func Infof(format string, a ...any) {
	if h := helper(); h != nil {
		h.Infof(format, a...)
	} else {
		fallback.logFormat(InfoLevel, "INFO", format, a...)
	}
}

func Infow(keyvals ...any) {
	if h := helper(); h != nil {
		h.Infow(keyvals...)
	} else {
		fallback.logKV(InfoLevel, "INFO", keyvals...)
	}
}

func Warn(a ...any) {
	if h := helper(); h != nil {
		h.Warn(a...)
	} else {
		fallback.logFormat(WarnLevel, "WARN", "%s", fmt.Sprint(a...))
	}
}

func Warnf(format string, a ...any) {
	if h := helper(); h != nil {
		h.Warnf(format, a...)
	} else {
		fallback.logFormat(WarnLevel, "WARN", format, a...)
	}
}

func Warnw(keyvals ...any) {
	if h := helper(); h != nil {
		h.Warnw(keyvals...)
	} else {
		fallback.logKV(WarnLevel, "WARN", keyvals...)
	}
}

func Error(a ...any) {
	if h := helper(); h != nil {
		h.Error(a...)
	} else {
		fallback.logFormat(ErrorLevel, "ERROR", "%s", fmt.Sprint(a...))
	}
}

func Errorf(format string, a ...any) {
	if h := helper(); h != nil {
		h.Errorf(format, a...)
	} else {
		fallback.logFormat(ErrorLevel, "ERROR", format, a...)
	}
}

func Errorw(keyvals ...any) {
	if h := helper(); h != nil {
		h.Errorw(keyvals...)
	} else {
		fallback.logKV(ErrorLevel, "ERROR", keyvals...)
	}
}

// Fatalf logs a formatted message at FatalLevel and exits the process.
func Fatalf(format string, a ...any) {
	// the helper exits by itself
	if h := helper(); h != nil {
		h.Fatalf(format, a...)
	}
	fallback.logFormat(FatalLevel, "FATAL", format, a...)
	os.Exit(1)
}

// Fatalw logs key-value pairs at FatalLevel and exits the process.
func Fatalw(keyvals ...any) {
	if h := helper(); h != nil {
		h.Fatalw(keyvals...)
	}
	fallback.logKV(FatalLevel, "FATAL", keyvals...)
	os.Exit(1)
}
