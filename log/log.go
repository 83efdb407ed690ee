package log

import (
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level = zapcore.Level

const (
	InfoLevel   Level = zap.InfoLevel
	WarnLevel   Level = zap.WarnLevel
	ErrorLevel  Level = zap.ErrorLevel
	DPanicLevel Level = zap.DPanicLevel
	PanicLevel  Level = zap.PanicLevel // log msg, then panic
	FatalLevel  Level = zap.FatalLevel // log msg, then calls os.Exit(1)
	DebugLevel  Level = zap.DebugLevel
)

type Field = zap.Field

// Logger wraps a zap.Logger; zap guarantees it is safe for concurrent use.
type Logger struct {
	l     *zap.Logger
	level Level
}

var std = New(os.Stderr, InfoLevel)

func Default() *Logger {
	return std
}

// ResetDefault replaces the default logger and rebinds the package-level
// logging functions to it.
func ResetDefault(l *Logger) {
	std = l
	Info = std.l.Info
	Warn = std.l.Warn
	Error = std.l.Error
	DPanic = std.l.DPanic
	Panic = std.l.Panic
	Fatal = std.l.Fatal
	Debug = std.l.Debug
}

type Option = zap.Option

var (
	WithCaller    = zap.WithCaller
	AddStacktrace = zap.AddStacktrace
	AddCallerSkip = zap.AddCallerSkip
)

func New(writer io.Writer, level Level, opts ...Option) *Logger {
	if writer == nil {
		panic("writer is nil")
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02T15:04:05.000Z0700"))
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(cfg.EncoderConfig),
		zapcore.AddSync(writer),
		zapcore.Level(level),
	)

	opts = append(opts, WithCaller(true))
	logger := &Logger{
		l:     zap.New(core, opts...),
		level: level,
	}

	return logger
}

func (l *Logger) Sync() error {
	return l.l.Sync()
}

func Sync() error {
	if std != nil {
		return std.Sync()
	}
	return nil
}

var (
	Skip       = zap.Skip
	Binary     = zap.Binary
	Bool       = zap.Bool
	ByteString = zap.ByteString
	Float64    = zap.Float64
	Float32    = zap.Float32
	Int        = zap.Int
	Int64      = zap.Int64
	Int32      = zap.Int32
	String     = zap.String
	Uint       = zap.Uint
	Uint64     = zap.Uint64
	Uint32     = zap.Uint32
	Uint16     = zap.Uint16
	Uint8      = zap.Uint8
	Duration   = zap.Duration
	Time       = zap.Time
	Stringer   = zap.Stringer
	Namespace  = zap.Namespace
	Any        = zap.Any
)

var (
	Info   = std.l.Info
	Warn   = std.l.Warn
	Error  = std.l.Error
	DPanic = std.l.DPanic
	Panic  = std.l.Panic
	Fatal  = std.l.Fatal
	Debug  = std.l.Debug
)
