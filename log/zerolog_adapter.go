package log

import (
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/rs/zerolog"
)

// zeroLogLogger adapts zerolog to the Kratos log.Logger interface
type zeroLogLogger struct {
	logger zerolog.Logger
}

func (l zeroLogLogger) event(level log.Level) *zerolog.Event {
	switch level {
	case log.LevelDebug:
		return l.logger.Debug()
	case log.LevelInfo:
		return l.logger.Info()
	case log.LevelWarn:
		return l.logger.Warn()
	case log.LevelError:
		return l.logger.Error()
	case log.LevelFatal:
		// the kratos helper exits after logging, zerolog must not exit first
		return l.logger.WithLevel(zerolog.FatalLevel)
	}
	return l.logger.Warn().Str("kratos_level", level.String())
}

// Log writes keyvals as typed zerolog fields. The message key becomes the
// record message; a dangling key gets a "MISSING" value.
func (l zeroLogLogger) Log(level log.Level, keyvals ...any) error {
	e := l.event(level)
	var msg string
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		var val any = "MISSING"
		if i+1 < len(keyvals) {
			val = keyvals[i+1]
		}
		if key == log.DefaultMessageKey {
			msg = fmt.Sprint(val)
			continue
		}
		e = field(e, key, val)
	}
	if stack := stackFor(level); stack != "" {
		e = e.Str("stack", stack)
	}
	e.Msg(msg)
	return nil
}

// field picks the zerolog encoder for the common value types
func field(e *zerolog.Event, key string, val any) *zerolog.Event {
	switch v := val.(type) {
	case error:
		if key == "err" || key == "error" {
			return e.AnErr(zerolog.ErrorFieldName, v)
		}
		return e.AnErr(key, v)
	case string:
		return e.Str(key, v)
	case bool:
		return e.Bool(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case uint64:
		return e.Uint64(key, v)
	case time.Duration:
		return e.Dur(key, v)
	case fmt.Stringer:
		return e.Stringer(key, v)
	}
	return e.Interface(key, val)
}
