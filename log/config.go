package log

import (
	"path"

	"github.com/stratotrack/sondelog/tool"
)

// Config holds the file logging parameters.
type Config struct {
	Path        string        `mapstructure:"path" yaml:"path"`
	InfoOption  *RotateOption `mapstructure:"info-option" yaml:"info-option"`
	ErrorOption *RotateOption `mapstructure:"error-option" yaml:"error-option"`
}

func defaultRotateOption() *RotateOption {
	return &RotateOption{
		MaxSize:    64,
		MaxAge:     28,
		MaxBackups: 8,
		Compress:   true,
	}
}

// SetDefaultLogMode routes the default logger to rotating files under
// config.Path: sondelog.log for Info and below, error.log for everything
// above.
func SetDefaultLogMode(config *Config) error {
	if err := tool.FSCreateMultiDir(config.Path); err != nil {
		return err
	}
	infoOption := config.InfoOption
	if infoOption == nil {
		infoOption = defaultRotateOption()
	}
	errorOption := config.ErrorOption
	if errorOption == nil {
		errorOption = defaultRotateOption()
	}
	var tops = []TeeOption{
		{
			Filename: path.Join(config.Path, "sondelog.log"),
			Ropt:     *infoOption,
			Lef: func(lvl Level) bool {
				return lvl <= InfoLevel
			},
		},
		{
			Filename: path.Join(config.Path, "error.log"),
			Ropt:     *errorOption,
			Lef: func(lvl Level) bool {
				return lvl > InfoLevel
			},
		},
	}

	logger := NewTeeWithRotate(tops)
	ResetDefault(logger)
	return nil
}
