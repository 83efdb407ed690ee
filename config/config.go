// Package config loads the ground-side tool configuration from YAML.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/stratotrack/sondelog/archive"
	"github.com/stratotrack/sondelog/flash"
	"github.com/stratotrack/sondelog/flashlog"
	"github.com/stratotrack/sondelog/log"
	"github.com/stratotrack/sondelog/tool"
)

// DeviceConfig selects the flash image file and its geometry. Zero
// geometry fields fall back to the W25Q16JV layout.
type DeviceConfig struct {
	// Path is the backing image file
	Path string `mapstructure:"path" yaml:"path"`
	// Size total capacity in bytes
	Size uint32 `mapstructure:"size" yaml:"size"`
	// SectorSize smallest erasable unit
	SectorSize uint32 `mapstructure:"sector-size" yaml:"sector-size"`
	// PageSize largest single program operation
	PageSize uint32 `mapstructure:"page-size" yaml:"page-size"`
}

// Geometry resolves the configured dimensions, defaulting each zero
// field from the W25Q16JV layout.
func (c *DeviceConfig) Geometry() flash.Geometry {
	geo := flash.DefaultGeometry()
	if c.Size != 0 {
		geo.Size = c.Size
	}
	if c.SectorSize != 0 {
		geo.SectorSize = c.SectorSize
	}
	if c.PageSize != 0 {
		geo.PageSize = c.PageSize
	}
	return geo
}

// Open opens the configured image file as a block device.
func (c *DeviceConfig) Open() (*flash.FileDevice, error) {
	return flash.OpenFileDevice(c.Path, c.Geometry())
}

// Config aggregates every subsystem's settings.
type Config struct {
	Log      *log.Config       `mapstructure:"log" yaml:"log"`
	Device   *DeviceConfig     `mapstructure:"device" yaml:"device"`
	Flashlog *flashlog.Config  `mapstructure:"flashlog" yaml:"flashlog"`
	Archive  *archive.S3Config `mapstructure:"archive" yaml:"archive"`
}

// Default returns the configuration used when no file is given:
// a sondelog.img file device with W25Q16JV geometry, console logging,
// archive disabled.
func Default() *Config {
	return &Config{
		Device:   &DeviceConfig{Path: "sondelog.img"},
		Flashlog: &flashlog.Config{},
	}
}

// Load reads and validates the YAML configuration at configFile. An
// empty path yields Default().
func Load(configFile string) (*Config, error) {
	if configFile == "" {
		return Default(), nil
	}
	viperConfig := viper.New()
	viperConfig.SetConfigFile(configFile)
	viperConfig.AddConfigPath(".")
	viperConfig.AutomaticEnv()
	if !tool.FSPathIsExist(configFile) {
		return nil, fmt.Errorf("config file not found (%q)", configFile)
	}
	if err := viperConfig.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed: %v", err)
	}
	var config Config
	if err := viperConfig.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("config mapping failed: %v", err)
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Device == nil {
		c.Device = &DeviceConfig{Path: "sondelog.img"}
	}
	if c.Flashlog == nil {
		c.Flashlog = &flashlog.Config{}
	}
}

// Validate checks cross-field consistency after defaults are applied.
func (c *Config) Validate() error {
	if c.Device.Path == "" {
		return fmt.Errorf("yaml device.path is required")
	}
	if err := c.Device.Geometry().Validate(); err != nil {
		return err
	}
	if c.Archive != nil && c.Archive.Enabled {
		if c.Archive.Endpoint == "" {
			return fmt.Errorf("yaml archive.endpoint is required when archive is enabled")
		}
		if c.Archive.Bucket == "" {
			return fmt.Errorf("yaml archive.bucket is required when archive is enabled")
		}
	}
	return nil
}

// SetupLog routes the default logger per the log section. Without one
// the console default stays.
func (c *Config) SetupLog() error {
	if c.Log == nil {
		return nil
	}
	return log.SetDefaultLogMode(c.Log)
}
