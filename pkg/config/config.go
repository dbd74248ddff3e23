// Package config describes how the on-board computer stack is put
// together: device images, scrubbing periods and telemetry links.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/inhies/go-bytesize"
	"gopkg.in/yaml.v3"
)

// Size is a byte count, written human readable in YAML ("32KB").
type Size uint32

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}
	b, err := bytesize.Parse(str)
	if err != nil {
		return fmt.Errorf("line %d: invalid size %q: %w", value.Line, str, err)
	}
	*s = Size(b)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Size) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

func (s Size) String() string {
	return bytesize.New(float64(s)).String()
}

// Config is the complete configuration.
type Config struct {
	// ID identifies the OBC on telemetry links, the machine ID by default.
	ID string `yaml:"id"`

	Flash     FlashConfig     `yaml:"flash"`
	MCU       MCUConfig       `yaml:"mcu"`
	FRAM      FRAMConfig      `yaml:"fram"`
	Scrubbing ScrubbingConfig `yaml:"scrubbing"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// LoopInterval is the mission loop tick.
	LoopInterval time.Duration `yaml:"loop_interval"`
	// LockTimeout bounds how long telecommands wait for a busy region.
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// FlashConfig describes the program flash.
type FlashConfig struct {
	// Image is the file backing the flash, in memory if empty.
	Image string `yaml:"image"`
	// EDAC enables correction of single bit upsets on reads.
	EDAC bool `yaml:"edac"`
}

// MCUConfig describes the MCU internal flash holding the running bootloader.
type MCUConfig struct {
	// Image is the file backing the MCU flash. The MCU bootloader is
	// not scrubbed if empty.
	Image string `yaml:"image"`
	// RewriteBootloader enables repairing the MCU bootloader from the
	// voted bootloader copies.
	RewriteBootloader *bool `yaml:"rewrite_bootloader"`
}

// FRAMConfig describes the three FRAM chips.
type FRAMConfig struct {
	// Images are the files backing each chip, in memory if empty.
	Images []string `yaml:"images"`
	// Size is the size of each chip.
	Size Size `yaml:"size"`
	// SettingsAddress is where the boot settings record lives.
	SettingsAddress uint32 `yaml:"settings_address"`
}

// ScrubbingConfig holds the period of every scrubber. A negative
// period disables the scrubber.
type ScrubbingConfig struct {
	Primary      time.Duration `yaml:"primary"`
	Failsafe     time.Duration `yaml:"failsafe"`
	Bootloader   time.Duration `yaml:"bootloader"`
	SafeMode     time.Duration `yaml:"safe_mode"`
	BootSettings time.Duration `yaml:"boot_settings"`
}

// TelemetryConfig describes where status frames go.
type TelemetryConfig struct {
	Period time.Duration `yaml:"period"`
	// MQTTBrokerURL e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string `yaml:"mqtt"`
	// WebsocketAddr is the listen address of the status stream.
	WebsocketAddr string `yaml:"websocket"`
	// Downlink is a file receiving length-prefixed frames.
	Downlink string `yaml:"downlink"`
}

var defaultConfig = Config{
	FRAM: FRAMConfig{
		Size: 32 * 1024,
	},
	Scrubbing: ScrubbingConfig{
		Primary:      time.Second,
		Failsafe:     time.Second,
		Bootloader:   10 * time.Minute,
		SafeMode:     10 * time.Minute,
		BootSettings: time.Minute,
	},
	Telemetry: TelemetryConfig{
		Period: 10 * time.Second,
	},
	LoopInterval: 100 * time.Millisecond,
	LockTimeout:  5 * time.Second,
}

var (
	configFile  string
	flagID      string
	flagMQTTURL string
)

func init() {
	configFile = os.Getenv("OBC_CONFIG")
	flagMQTTURL = os.Getenv("OBC_MQTT_URL")
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&configFile, "config", configFile, "Configuration file")
	flag.StringVar(&flagID, "id", flagID, "OBC ID, defaults to machine ID")
	flag.StringVar(&flagMQTTURL, "mqtt", flagMQTTURL, "MQTT broker URL")
}

// Default returns a copy of the default configuration.
func Default() *Config {
	conf := defaultConfig
	conf.FRAM.Images = make([]string, 3)
	return &conf
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	conf := Default()
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return conf, nil
}

// NewConfig builds the configuration from the config file and flags,
// validated and normalized.
func NewConfig() (*Config, error) {
	conf := Default()
	if configFile != "" {
		var err error
		if conf, err = Load(configFile); err != nil {
			return nil, err
		}
	}
	if flagID != "" {
		conf.ID = flagID
	}
	if flagMQTTURL != "" {
		conf.Telemetry.MQTTBrokerURL = flagMQTTURL
	}
	if err := Validate(conf); err != nil {
		return nil, err
	}
	Normalize(conf)
	return conf, nil
}

// Validate checks the configuration. It does not modify it.
func Validate(conf *Config) error {
	if n := len(conf.FRAM.Images); n != 0 && n != 3 {
		return fmt.Errorf("fram: exactly 3 images required, got %d", n)
	}
	if conf.FRAM.Size != 0 && uint32(conf.FRAM.Size) < conf.FRAM.SettingsAddress+16 {
		return fmt.Errorf("fram: settings at 0x%x do not fit in %v", conf.FRAM.SettingsAddress, conf.FRAM.Size)
	}
	if conf.LoopInterval < 0 || conf.Telemetry.Period < 0 || conf.LockTimeout < 0 {
		return fmt.Errorf("negative interval")
	}
	return nil
}

// Normalize fills in defaults. Call it after Validate.
func Normalize(conf *Config) {
	if conf.ID == "" {
		conf.ID = machineID()
	}
	if len(conf.FRAM.Images) == 0 {
		conf.FRAM.Images = make([]string, 3)
	}
	if conf.FRAM.Size == 0 {
		conf.FRAM.Size = defaultConfig.FRAM.Size
	}
	if conf.LoopInterval == 0 {
		conf.LoopInterval = defaultConfig.LoopInterval
	}
	if conf.LockTimeout == 0 {
		conf.LockTimeout = defaultConfig.LockTimeout
	}
	if conf.Telemetry.Period == 0 {
		conf.Telemetry.Period = defaultConfig.Telemetry.Period
	}
	if conf.MCU.RewriteBootloader == nil {
		enable := true
		conf.MCU.RewriteBootloader = &enable
	}
}

func machineID() string {
	id, err := machineid.ProtectedID("obc")
	if err != nil {
		return "obc"
	}
	return id[:12]
}
