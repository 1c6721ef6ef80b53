package logging

import (
	"context"
	"fmt"
	"strings"

	commonlog "github.com/RyanBlaney/latency-benchmark-common/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Fields carries structured key/value pairs attached to a log entry
type Fields = commonlog.Fields

// Logger is the structured logger shared with the common library, so the
// transcoder and this module write through the same sink
type Logger = commonlog.Logger

// Config controls how NewLogger builds the backing zap logger
type Config struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// contextFieldsKey is where the common library looks for request fields
const contextFieldsKey = "logger_fields"

type zapLogger struct {
	base  *zap.Logger
	level zap.AtomicLevel
}

func init() {
	// the library default writes to stdout, which would corrupt CLI output
	commonlog.SetGlobalLogger(NewDefaultLogger())
}

// NewDefaultLogger returns an info-level console logger
func NewDefaultLogger() Logger {
	logger, err := NewLogger(Config{Level: "info", Format: "console"})
	if err != nil {
		return NewNopLogger()
	}
	return logger
}

// NewLogger builds a logger from config
func NewLogger(cfg Config) (Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var zcfg zap.Config
	switch strings.ToLower(cfg.Format) {
	case "", "console":
		zcfg = zap.NewDevelopmentConfig()
		zcfg.DisableStacktrace = true
	case "json":
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.MessageKey = "message"
		zcfg.EncoderConfig.TimeKey = "time"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}

	base, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &zapLogger{base: base, level: zcfg.Level}, nil
}

// NewNopLogger returns a logger that drops everything
func NewNopLogger() Logger {
	return &zapLogger{base: zap.NewNop(), level: zap.NewAtomicLevel()}
}

// NewObservedLogger returns a logger whose entries are recorded for assertions in tests
func NewObservedLogger(level zapcore.Level) (Logger, *observer.ObservedLogs) {
	atomic := zap.NewAtomicLevelAt(level)
	core, recorded := observer.New(atomic)
	return &zapLogger{base: zap.New(core), level: atomic}, recorded
}

// FromZap wraps an existing zap logger
func FromZap(base *zap.Logger) Logger {
	return &zapLogger{base: base, level: zap.NewAtomicLevelAt(base.Level())}
}

// Zap returns the zap logger behind l, or a no-op one when l is backed by
// something else
func Zap(l Logger) *zap.Logger {
	if zl, ok := l.(*zapLogger); ok {
		return zl.base
	}
	return zap.NewNop()
}

// ParseLevel maps a level name onto a zap level
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

// SetDefault installs logger as the process-wide logger, for this module
// and the common library alike
func SetDefault(logger Logger) {
	if logger == nil {
		return
	}
	commonlog.SetGlobalLogger(logger)
}

// Default returns the process-wide logger
func Default() Logger {
	return commonlog.GetGlobalLogger()
}

// WithFields returns a child of the process-wide logger
func WithFields(fields Fields) Logger {
	return commonlog.WithFields(fields)
}

func (l *zapLogger) Debug(msg string, fields ...Fields) {
	l.base.Debug(msg, toZapFields(fields)...)
}

func (l *zapLogger) Info(msg string, fields ...Fields) {
	l.base.Info(msg, toZapFields(fields)...)
}

func (l *zapLogger) Warn(msg string, fields ...Fields) {
	l.base.Warn(msg, toZapFields(fields)...)
}

func (l *zapLogger) Error(err error, msg string, fields ...Fields) {
	l.base.Error(msg, withError(err, fields)...)
}

func (l *zapLogger) Fatal(err error, msg string, fields ...Fields) {
	l.base.Fatal(msg, withError(err, fields)...)
}

func (l *zapLogger) WithFields(fields Fields) Logger {
	return &zapLogger{base: l.base.With(toZapFields([]Fields{fields})...), level: l.level}
}

func (l *zapLogger) WithContext(ctx context.Context) Logger {
	if fields, ok := ctx.Value(contextFieldsKey).(Fields); ok {
		return l.WithFields(fields)
	}
	return l
}

// SetLevel changes the level of l and every logger derived from it
func (l *zapLogger) SetLevel(level commonlog.Level) {
	switch level {
	case commonlog.DebugLevel:
		l.level.SetLevel(zapcore.DebugLevel)
	case commonlog.InfoLevel:
		l.level.SetLevel(zapcore.InfoLevel)
	case commonlog.WarnLevel:
		l.level.SetLevel(zapcore.WarnLevel)
	case commonlog.ErrorLevel:
		l.level.SetLevel(zapcore.ErrorLevel)
	case commonlog.FatalLevel:
		l.level.SetLevel(zapcore.FatalLevel)
	}
}

func withError(err error, fields []Fields) []zap.Field {
	zf := toZapFields(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	return zf
}

func toZapFields(fields []Fields) []zap.Field {
	n := 0
	for _, f := range fields {
		n += len(f)
	}
	if n == 0 {
		return nil
	}

	out := make([]zap.Field, 0, n)
	for _, f := range fields {
		for k, v := range f {
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
