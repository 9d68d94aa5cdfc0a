// Package logging provides structured logging using zap
package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.Mutex
	logger  *zap.Logger
	sugar   *zap.SugaredLogger
	console zapcore.Core
	logFile *os.File
)

// Config holds logging configuration
type Config struct {
	Level string // debug, info, warn, error
	JSON  bool   // console output as JSON

	// FilePath, when set, receives a JSON copy of every entry.
	FilePath string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Level: "info",
	}
}

// Init (re)initializes the global logger. Calling it again replaces the
// previous logger, so the CLI can switch to a file-backed logger once the
// command and its log directory are known.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	consoleEnc := zap.NewProductionEncoderConfig()
	consoleEnc.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEnc.EncodeLevel = zapcore.CapitalLevelEncoder
	if isatty.IsTerminal(os.Stderr.Fd()) {
		consoleEnc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var encoder zapcore.Encoder
	if cfg.JSON {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(consoleEnc)
	}

	consoleCore := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	cores := []zapcore.Core{consoleCore}

	var newFile *os.File
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		fileEnc := zap.NewProductionEncoderConfig()
		fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder
		// The audit file always records debug entries.
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), zapcore.AddSync(f), zapcore.DebugLevel))
		newFile = f
	}

	if logger != nil {
		_ = logger.Sync()
	}
	if logFile != nil {
		_ = logFile.Close()
	}

	console = consoleCore
	build(zapcore.NewTee(cores...))
	logFile = newFile
	return nil
}

func build(core zapcore.Core) {
	logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	sugar = logger.Sugar()
}

// InitDefault initializes with default configuration
func InitDefault() {
	mu.Lock()
	initialized := logger != nil
	mu.Unlock()
	if !initialized {
		_ = Init(DefaultConfig())
	}
}

// FileName returns the timestamped per-invocation log file name for a command.
func FileName(command string, now time.Time) string {
	return fmt.Sprintf("%s_%s.log", command, now.Format("20060102_150405"))
}

// L returns the global logger
func L() *zap.Logger {
	InitDefault()
	return logger
}

// S returns the global sugared logger
func S() *zap.SugaredLogger {
	InitDefault()
	return sugar
}

// Sync flushes any buffered log entries and closes the log file. Later
// entries go to the console only.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	var err error
	if logger != nil {
		err = ignoreUnsyncable(logger.Sync())
	}
	if logFile != nil {
		build(console)
		if cerr := logFile.Close(); cerr != nil {
			err = multierr.Append(err, cerr)
		}
		logFile = nil
	}
	return err
}

// ignoreUnsyncable drops the errors fsync gives for pipes and terminals,
// which is what stderr usually is.
func ignoreUnsyncable(err error) error {
	var kept []error
	for _, e := range multierr.Errors(err) {
		if errors.Is(e, syscall.EINVAL) || errors.Is(e, syscall.ENOTTY) {
			continue
		}
		kept = append(kept, e)
	}
	return multierr.Combine(kept...)
}

// --- Convenience functions ---

// Debug logs a debug message with fields
func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

// Info logs an info message with fields
func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

// Warn logs a warning message with fields
func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

// Error logs an error message with fields
func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

// --- Field constructors for common types ---

// String creates a string field
func String(key, val string) zap.Field {
	return zap.String(key, val)
}

// Strings creates a string slice field
func Strings(key string, val []string) zap.Field {
	return zap.Strings(key, val)
}

// Int creates an int field
func Int(key string, val int) zap.Field {
	return zap.Int(key, val)
}

// Int64 creates an int64 field
func Int64(key string, val int64) zap.Field {
	return zap.Int64(key, val)
}

// Bool creates a bool field
func Bool(key string, val bool) zap.Field {
	return zap.Bool(key, val)
}

// Err creates an error field
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Duration creates a duration field
func Duration(key string, val time.Duration) zap.Field {
	return zap.Duration(key, val)
}
