package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
id: obc-test
flash:
  image: /tmp/flash.img
  edac: true
mcu:
  image: /tmp/mcu.img
  rewrite_bootloader: false
fram:
  images: [a.img, b.img, c.img]
  size: 8KB
  settings_address: 256
scrubbing:
  primary: 2s
  bootloader: -1s
telemetry:
  mqtt: mqtt://localhost:1883/obc/
  websocket: ":8090"
`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "obc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	conf, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)
	require.NoError(t, Validate(conf))
	Normalize(conf)

	assert.Equal(t, "obc-test", conf.ID)
	assert.True(t, conf.Flash.EDAC)
	assert.Equal(t, Size(8*1024), conf.FRAM.Size)
	assert.Equal(t, uint32(256), conf.FRAM.SettingsAddress)
	assert.Equal(t, []string{"a.img", "b.img", "c.img"}, conf.FRAM.Images)
	assert.Equal(t, 2*time.Second, conf.Scrubbing.Primary)
	assert.Equal(t, time.Second, conf.Scrubbing.Failsafe, "default kept")
	assert.Equal(t, -time.Second, conf.Scrubbing.Bootloader)
	require.NotNil(t, conf.MCU.RewriteBootloader)
	assert.False(t, *conf.MCU.RewriteBootloader)
	assert.Equal(t, ":8090", conf.Telemetry.WebsocketAddr)
	assert.Equal(t, 10*time.Second, conf.Telemetry.Period)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{"two fram images", func(c *Config) { c.FRAM.Images = []string{"a", "b"} }},
		{"settings beyond fram", func(c *Config) { c.FRAM.Size = 64; c.FRAM.SettingsAddress = 60 }},
		{"negative loop interval", func(c *Config) { c.LoopInterval = -time.Second }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conf := Default()
			tc.modify(conf)
			assert.Error(t, Validate(conf))
		})
	}
	assert.NoError(t, Validate(Default()))
}

func TestNormalizeDefaults(t *testing.T) {
	conf := &Config{}
	Normalize(conf)
	assert.NotEmpty(t, conf.ID)
	assert.Len(t, conf.FRAM.Images, 3)
	assert.Equal(t, Size(32*1024), conf.FRAM.Size)
	assert.Equal(t, 100*time.Millisecond, conf.LoopInterval)
	require.NotNil(t, conf.MCU.RewriteBootloader)
	assert.True(t, *conf.MCU.RewriteBootloader)
}

func TestInvalidSize(t *testing.T) {
	_, err := Load(writeConfig(t, "fram:\n  size: lots\n"))
	assert.Error(t, err)
}
