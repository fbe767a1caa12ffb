// Package log is a small kratos-style structured logger, backed by zap.
package log

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultMessageKey is the key used for the message in keyvals-style logging.
const DefaultMessageKey = "msg"

// Level is the logging level.
type Level int8

const (
	LevelDebug Level = iota - 1
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "INFO"
	}
}

// Logger is the fundamental logging interface.
type Logger interface {
	Log(level Level, keyvals ...any) error
}

// Valuer is resolved at log time against the given context.
type Valuer func(ctx context.Context) any

// Timestamp returns a Valuer that formats time.Now using layout.
func Timestamp(layout string) Valuer {
	return func(ctx context.Context) any {
		return time.Now().Format(layout)
	}
}

// Caller is unused at present, kept for parity with the keyvals-style pattern.
func Caller() Valuer {
	return func(ctx context.Context) any { return "" }
}

func bindValues(keyvals []any) []any {
	for i := 1; i < len(keyvals); i += 2 {
		if v, ok := keyvals[i].(Valuer); ok {
			keyvals[i] = v(context.Background())
		}
	}
	return keyvals
}

type zapLogger struct {
	z *zap.Logger
}

func newZapLogger(level Level) *zapLogger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.TimeKey = "ts"

	var zlevel zapcore.Level
	switch level {
	case LevelDebug:
		zlevel = zapcore.DebugLevel
	case LevelWarn:
		zlevel = zapcore.WarnLevel
	case LevelError:
		zlevel = zapcore.ErrorLevel
	default:
		zlevel = zapcore.InfoLevel
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(os.Stdout), zlevel)
	return &zapLogger{z: zap.New(core)}
}

func (l *zapLogger) Log(level Level, keyvals ...any) error {
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals)-1; i += 2 {
		key, _ := keyvals[i].(string)
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}

	switch level {
	case LevelDebug:
		l.z.Debug("", fields...)
	case LevelWarn:
		l.z.Warn("", fields...)
	case LevelError:
		l.z.Error("", fields...)
	case LevelFatal:
		l.z.Fatal("", fields...)
	default:
		l.z.Info("", fields...)
	}
	return nil
}

// DefaultLogger writes JSON lines to stdout at info level and above.
var DefaultLogger Logger = newZapLogger(LevelInfo)

type filterLogger struct {
	Logger
	pairs []any
}

// With returns a new Logger that always prepends the given keyvals.
// Values implementing Valuer are resolved lazily at Log time.
func With(logger Logger, keyvals ...any) Logger {
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "MISSING_VALUE")
	}
	return &filterLogger{Logger: logger, pairs: keyvals}
}

func (l *filterLogger) Log(level Level, keyvals ...any) error {
	merged := make([]any, 0, len(l.pairs)+len(keyvals))
	merged = append(merged, bindValues(append([]any{}, l.pairs...))...)
	merged = append(merged, keyvals...)
	return l.Logger.Log(level, merged...)
}

var global Logger = DefaultLogger

// SetLogger replaces the package-level default logger.
func SetLogger(logger Logger) {
	global = logger
}

// GetLogger returns the package-level default logger.
func GetLogger() Logger {
	return global
}

// Helper wraps a Logger with printf-style and structured convenience methods.
type Helper struct {
	logger Logger
}

// NewHelper wraps logger in a Helper.
func NewHelper(logger Logger) *Helper {
	return &Helper{logger: logger}
}

func (h *Helper) Debug(a ...any)            { _ = h.logger.Log(LevelDebug, DefaultMessageKey, fmt.Sprint(a...)) }
func (h *Helper) Debugf(f string, a ...any) { _ = h.logger.Log(LevelDebug, DefaultMessageKey, fmt.Sprintf(f, a...)) }
func (h *Helper) Info(a ...any)             { _ = h.logger.Log(LevelInfo, DefaultMessageKey, fmt.Sprint(a...)) }
func (h *Helper) Infof(f string, a ...any)  { _ = h.logger.Log(LevelInfo, DefaultMessageKey, fmt.Sprintf(f, a...)) }
func (h *Helper) Warn(a ...any)             { _ = h.logger.Log(LevelWarn, DefaultMessageKey, fmt.Sprint(a...)) }
func (h *Helper) Warnf(f string, a ...any)  { _ = h.logger.Log(LevelWarn, DefaultMessageKey, fmt.Sprintf(f, a...)) }
func (h *Helper) Error(a ...any)            { _ = h.logger.Log(LevelError, DefaultMessageKey, fmt.Sprint(a...)) }
func (h *Helper) Errorf(f string, a ...any) { _ = h.logger.Log(LevelError, DefaultMessageKey, fmt.Sprintf(f, a...)) }
func (h *Helper) Fatal(a ...any) {
	_ = h.logger.Log(LevelFatal, DefaultMessageKey, fmt.Sprint(a...))
	os.Exit(1)
}
func (h *Helper) Fatalf(f string, a ...any) {
	_ = h.logger.Log(LevelFatal, DefaultMessageKey, fmt.Sprintf(f, a...))
	os.Exit(1)
}

// Errorw logs an error with structured keyvals, e.g. Errorw(DefaultMessageKey, "boom", "name", "x").
func (h *Helper) Errorw(keyvals ...any) {
	_ = h.logger.Log(LevelError, keyvals...)
}

// Enabled always reports true; level filtering happens inside the zap core,
// which was given its level at construction time.
func (h *Helper) Enabled(level Level) bool {
	return true
}

var defaultHelper = NewHelper(global)

func refreshHelper() { defaultHelper = NewHelper(global) }

// package-level convenience funcs, forwarding to the current global logger.
func Debug(a ...any)            { refreshHelper(); defaultHelper.Debug(a...) }
func Debugf(f string, a ...any) { refreshHelper(); defaultHelper.Debugf(f, a...) }
func Info(a ...any)             { refreshHelper(); defaultHelper.Info(a...) }
func Infof(f string, a ...any)  { refreshHelper(); defaultHelper.Infof(f, a...) }
func Warn(a ...any)             { refreshHelper(); defaultHelper.Warn(a...) }
func Warnf(f string, a ...any)  { refreshHelper(); defaultHelper.Warnf(f, a...) }
func Error(a ...any)            { refreshHelper(); defaultHelper.Error(a...) }
func Errorf(f string, a ...any) { refreshHelper(); defaultHelper.Errorf(f, a...) }
func Fatal(a ...any)            { refreshHelper(); defaultHelper.Fatal(a...) }
func Fatalf(f string, a ...any) { refreshHelper(); defaultHelper.Fatalf(f, a...) }
func Errorw(keyvals ...any)     { refreshHelper(); defaultHelper.Errorw(keyvals...) }

type ctxKey struct{}

// NewContext binds a Helper to ctx, recoverable with Context.
func NewContext(ctx context.Context, h *Helper) context.Context {
	return context.WithValue(ctx, ctxKey{}, h)
}

// Context returns the Helper bound to ctx, or a Helper over the current
// global logger if none was bound.
func Context(ctx context.Context) *Helper {
	if h, ok := ctx.Value(ctxKey{}).(*Helper); ok {
		return h
	}
	return NewHelper(global)
}
