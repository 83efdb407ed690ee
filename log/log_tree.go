package log

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LevelEnableFunc func(lvl Level) bool

// RotateOption mirrors the lumberjack rotation knobs: MaxSize in MB,
// MaxAge in days.
type RotateOption struct {
	MaxSize    int  `mapstructure:"max-size" yaml:"max-size"`
	MaxAge     int  `mapstructure:"max-age" yaml:"max-age"`
	MaxBackups int  `mapstructure:"max-backups" yaml:"max-backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

type TeeOption struct {
	Filename string
	Lef      LevelEnableFunc
	Ropt     RotateOption
}

// NewTeeWithRotate builds a logger writing each TeeOption to its own
// rotating file, plus a console copy of Info and above on stderr.
func NewTeeWithRotate(topts []TeeOption, opts ...Option) *Logger {
	var zcores []zapcore.Core
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02T15:04:05.000Z0700"))
	}

	for _, topt := range topts {
		topt := topt
		lv := zap.LevelEnablerFunc(func(lvl Level) bool {
			return topt.Lef(lvl)
		})

		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   topt.Filename,
			MaxSize:    topt.Ropt.MaxSize,
			MaxBackups: topt.Ropt.MaxBackups,
			MaxAge:     topt.Ropt.MaxAge,
			Compress:   topt.Ropt.Compress,
			LocalTime:  true,
		})

		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(cfg.EncoderConfig),
			zapcore.AddSync(w),
			lv,
		)
		zcores = append(zcores, core)
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg.EncoderConfig),
		zapcore.AddSync(os.Stderr),
		zapcore.Level(InfoLevel),
	)
	zcores = append(zcores, core)
	opts = append(opts, WithCaller(true))
	logger := &Logger{
		l: zap.New(zapcore.NewTee(zcores...), opts...),
	}
	return logger
}
