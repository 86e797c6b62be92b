package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/go-lynx/emuplug/conf"
)

var (
	// base is the zerolog backend the kratos logger is rebuilt around
	baseMu sync.Mutex
	base   log.Logger
	fields []any

	callerSkipDefault = 4
	callerSkipCurrent = 4

	// rotating file writer and its optional batch, closed by Sync
	fileWriter *lumberjack.Logger
	fileBatch  *batchWriter
)

// Init builds the logger from configuration. keyvals are attached to every record,
// e.g. "registry.id", id.
//
// Parameters:
//   - cfg: the log section; nil uses the defaults
//   - keyvals: constant fields
//
// Returns:
//   - error: if the file output cannot be prepared
func Init(cfg *conf.Log, keyvals ...any) error {
	if cfg == nil {
		cfg = &conf.Default().Emuplug.Log
	}

	var writers []io.Writer
	if cfg.ConsoleOutput {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
			NoColor:    cfg.NoColor,
			PartsOrder: []string{
				zerolog.TimestampFieldName,
				zerolog.LevelFieldName,
				zerolog.CallerFieldName,
				zerolog.MessageFieldName,
			},
		})
	}

	_ = Sync()

	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		w := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		var out io.Writer = w
		baseMu.Lock()
		fileWriter = w
		if cfg.Batch.Enabled {
			fileBatch = newBatchWriter(w, cfg.Batch.SizeBytes, cfg.Batch.FlushInterval.Std())
			out = fileBatch
		}
		baseMu.Unlock()
		writers = append(writers, out)
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	callerSkipCurrent = callerSkipDefault
	if cfg.CallerSkip > 0 {
		callerSkipCurrent = cfg.CallerSkip
	}

	minLevel.Store(int32(ParseLevel(strings.ToLower(cfg.Level))))
	stackLevel := ParseLevel(strings.ToLower(cfg.Stack.Level))
	setStackConfig(cfg.Stack.Enabled, stackLevel.kratos(), 6, cfg.Stack.MaxFrames, nil)

	return InitWithWriter(zerolog.MultiLevelWriter(writers...), keyvals...)
}

// InitWithWriter builds the logger over an arbitrary writer, emitting JSON records.
// Tests use it to capture output.
func InitWithWriter(w io.Writer, keyvals ...any) error {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zl := zerolog.New(w).With().Timestamp().Logger()

	baseMu.Lock()
	base = zeroLogLogger{logger: zl}
	fields = append([]any(nil), keyvals...)
	baseMu.Unlock()

	rebuild()
	return nil
}

// rebuild applies the current level and fields to the backend
func rebuild() {
	baseMu.Lock()
	defer baseMu.Unlock()
	if base == nil {
		return
	}
	kv := append([]any{"caller", Caller(callerSkipCurrent)}, fields...)
	logger := log.With(log.NewFilter(base, log.FilterLevel(GetLevel().kratos())), kv...)
	Logger = logger
	helperStore.Store(log.NewHelper(logger))
}

// Sync flushes and closes the file output, if any
func Sync() error {
	baseMu.Lock()
	defer baseMu.Unlock()
	var err error
	if fileBatch != nil {
		err = fileBatch.Close()
		fileBatch = nil
	}
	if fileWriter != nil {
		if cerr := fileWriter.Close(); err == nil {
			err = cerr
		}
		fileWriter = nil
	}
	return err
}

// Caller returns a log.Valuer that provides the caller's source location.
// The depth parameter determines how many stack frames to skip.
//
// Example output: "emuplug/lifecycle.go:42"
func Caller(depth int) log.Valuer {
	if depth < 0 {
		depth = 0
	}
	return func(context.Context) any {
		_, file, line, ok := runtime.Caller(depth)
		if !ok {
			return "unknown:0"
		}
		return trimFilePath(file, 2) + ":" + strconv.Itoa(line)
	}
}

// trimFilePath reduces a file path to its last depth components.
// For example, with depth=2: "/a/b/c/d.go" becomes "c/d.go".
func trimFilePath(file string, depth int) string {
	if file == "" || depth <= 0 {
		return "unknown"
	}
	var slashPos []int
	for i := len(file) - 1; i >= 0; i-- {
		if file[i] == '/' || file[i] == '\\' {
			slashPos = append(slashPos, i)
			if len(slashPos) == depth {
				break
			}
		}
	}
	if len(slashPos) == 0 {
		return file
	}
	return file[slashPos[len(slashPos)-1]+1:]
}
