package config_test

import (
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stratotrack/sondelog/config"
	"github.com/stratotrack/sondelog/flash"
	"github.com/stratotrack/sondelog/log"
)

func Test_LoadDefaults(t *testing.T) {
	c, err := config.Load("")
	assert.NoError(t, err)
	assert.Equal(t, "sondelog.img", c.Device.Path)
	assert.Equal(t, flash.DefaultGeometry(), c.Device.Geometry())
	assert.NotNil(t, c.Flashlog)
	assert.Nil(t, c.Archive)
	assert.Nil(t, c.Log)
	assert.NoError(t, c.Validate())
}

func Test_LoadYAML(t *testing.T) {
	dir := t.TempDir()
	yaml := `
device:
  path: ` + filepath.Join(dir, "flight.img") + `
  size: 12288
  sector-size: 4096
flashlog:
  header-sync-interval: 5
  disable-wrap: true
archive:
  enabled: false
  bucket: sonde-flights
log:
  path: ` + filepath.Join(dir, "logs") + `
`
	configFile := filepath.Join(dir, "sondelog.yaml")
	assert.NoError(t, os.WriteFile(configFile, []byte(yaml), 0644))

	c, err := config.Load(configFile)
	assert.NoError(t, err)
	assert.Equal(t, flash.Geometry{Size: 12288, SectorSize: 4096, PageSize: 256}, c.Device.Geometry())
	assert.Equal(t, uint32(5), c.Flashlog.HeaderSyncInterval)
	assert.True(t, c.Flashlog.DisableWrap)
	assert.NotNil(t, c.Archive)
	assert.False(t, c.Archive.Enabled)
	assert.Equal(t, "sonde-flights", c.Archive.Bucket)
	assert.NotNil(t, c.Log)
}

func Test_LoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func Test_LoadRejectsBadGeometry(t *testing.T) {
	dir := t.TempDir()
	yaml := `
device:
  path: flight.img
  size: 10000
`
	configFile := filepath.Join(dir, "sondelog.yaml")
	assert.NoError(t, os.WriteFile(configFile, []byte(yaml), 0644))

	_, err := config.Load(configFile)
	assert.ErrorIs(t, err, flash.ErrGeometry)
}

func Test_ValidateArchiveRequiresBucket(t *testing.T) {
	dir := t.TempDir()
	yaml := `
device:
  path: flight.img
archive:
  enabled: true
  endpoint: s3.example.com
`
	configFile := filepath.Join(dir, "sondelog.yaml")
	assert.NoError(t, os.WriteFile(configFile, []byte(yaml), 0644))

	_, err := config.Load(configFile)
	assert.ErrorContains(t, err, "archive.bucket")
}

func Test_DeviceConfigGeometryDefaults(t *testing.T) {
	dc := &config.DeviceConfig{Size: 8192, SectorSize: 4096}
	assert.Equal(t, flash.Geometry{Size: 8192, SectorSize: 4096, PageSize: 256}, dc.Geometry())
}

func Test_DeviceConfigOpen(t *testing.T) {
	dc := &config.DeviceConfig{
		Path:       filepath.Join(t.TempDir(), "flight.img"),
		Size:       8192,
		SectorSize: 4096,
	}
	dev, err := dc.Open()
	assert.NoError(t, err)
	assert.Equal(t, dc.Geometry(), dev.Geometry())
	assert.NoError(t, dev.Close())
}

func Test_SetupLog(t *testing.T) {
	old := log.Default()
	defer log.ResetDefault(old)

	dir := t.TempDir()
	c := &config.Config{Log: &log.Config{Path: path.Join(dir, "logs")}}
	assert.NoError(t, c.SetupLog())
	log.Info("telemetry archive test line")

	_, err := os.Stat(path.Join(dir, "logs", "sondelog.log"))
	assert.NoError(t, err)
}
