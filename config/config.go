// Package config reads the otaflash tool configuration.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/moffa90/go-otaflash/bootloader"
	"github.com/moffa90/go-otaflash/firmware"
	"github.com/moffa90/go-otaflash/protocol"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	configDir  = ".otaflash"
	configName = "config.yaml"
)

// Transport kinds.
const (
	TransportBLE    = "ble"
	TransportSerial = "serial"
	TransportSim    = "sim"
)

var supportedTransports = []string{TransportBLE, TransportSerial, TransportSim}

// Config is the tool configuration. Zero values mean "use the default".
type Config struct {
	Transport string `yaml:"transport"`
	Firmware  string `yaml:"firmware"`
	Kind      string `yaml:"kind"`

	BLE    BLE    `yaml:"ble"`
	Serial Serial `yaml:"serial"`

	Retries         int      `yaml:"retries"`
	RetryBackoff    Duration `yaml:"retry_backoff"`
	EraseTimeout    Duration `yaml:"erase_timeout"`
	VerifyTimeout   Duration `yaml:"verify_timeout"`
	ResponseTimeout Duration `yaml:"response_timeout"`
	SettleInterval  Duration `yaml:"settle_interval"`
	MaxPasses       int      `yaml:"max_passes"`

	SourceAddress   string `yaml:"source_address"`
	TargetAddress   string `yaml:"target_address"`
	Sequence        int    `yaml:"sequence"`
	FirmwareVersion uint32 `yaml:"firmware_version"`

	Debug bool `yaml:"debug"`

	// Path is the file the configuration was read from, empty for defaults
	Path string `yaml:"-"`
}

// BLE selects the peripheral and its characteristics.
type BLE struct {
	Address      string `yaml:"address"`
	ServiceUUID  string `yaml:"service_uuid"`
	WriteUUID    string `yaml:"write_uuid"`
	NotifyUUID   string `yaml:"notify_uuid"`
	WithResponse bool   `yaml:"with_response"`
	WriteSize    int    `yaml:"write_size"`
}

// Serial selects the UART.
type Serial struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// Duration reads "15s" style values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Transport: TransportBLE,
		Kind:      firmware.Primary.String(),
		Serial: Serial{
			Baud: 460800,
		},
		Sequence:        protocol.DefaultSequenceTag,
		SourceAddress:   protocol.DefaultSourceAddress.String(),
		TargetAddress:   protocol.DefaultTargetAddress.String(),
		FirmwareVersion: firmware.DefaultVersion,
	}
}

// DefaultPath returns ~/.otaflash/config.yaml.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "failed to detect home directory")
	}
	return filepath.Join(home, configDir, configName), nil
}

// ExpandPath resolves a leading ~ in path.
func ExpandPath(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", errors.Wrapf(err, "expand %q", path)
	}
	return expanded, nil
}

// Load reads the configuration at path over the defaults. An empty path
// reads DefaultPath and tolerates its absence. Unknown keys are rejected;
// call Validate once any overrides have been applied.
func Load(path string) (*Config, error) {
	optional := path == ""
	if optional {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "cannot parse %s", path)
		}
		cfg.Path = path
	case optional && os.IsNotExist(err):
	default:
		return nil, errors.Wrap(err, "cannot read config file")
	}

	cfg.Transport = strings.ToLower(cfg.Transport)
	if cfg.Firmware, err = ExpandPath(cfg.Firmware); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and formats.
func (c *Config) Validate() error {
	c.Transport = strings.ToLower(c.Transport)
	if !contains(supportedTransports, c.Transport) {
		return errors.Errorf("%q transport is unsupported, supported transports are: %q", c.Transport, supportedTransports)
	}
	if _, err := firmware.ParseKind(c.Kind); err != nil {
		return err
	}
	if c.Transport == TransportSerial && c.Serial.Port == "" {
		return errors.New("serial transport requires serial.port")
	}
	if c.Serial.Baud < 0 {
		return errors.Errorf("serial.baud %d is negative", c.Serial.Baud)
	}
	if c.BLE.WriteSize < 0 {
		return errors.Errorf("ble.write_size %d is negative", c.BLE.WriteSize)
	}
	if c.Retries < 0 {
		return errors.Errorf("retries %d is negative", c.Retries)
	}
	if c.MaxPasses < 0 {
		return errors.Errorf("max_passes %d is negative", c.MaxPasses)
	}
	if c.Sequence < 0 || c.Sequence > 0xFF {
		return errors.Errorf("sequence %d does not fit in a byte", c.Sequence)
	}
	for name, d := range map[string]Duration{
		"retry_backoff":    c.RetryBackoff,
		"erase_timeout":    c.EraseTimeout,
		"verify_timeout":   c.VerifyTimeout,
		"response_timeout": c.ResponseTimeout,
		"settle_interval":  c.SettleInterval,
	} {
		if d < 0 {
			return errors.Errorf("%s is negative", name)
		}
	}
	if _, err := c.Header(); err != nil {
		return err
	}
	return nil
}

// FirmwareKind returns the parsed Kind.
func (c *Config) FirmwareKind() (firmware.Kind, error) {
	return firmware.ParseKind(c.Kind)
}

// Header returns the frame addressing.
func (c *Config) Header() (protocol.Header, error) {
	h := protocol.DefaultHeader()
	var err error
	if c.SourceAddress != "" {
		if h.Source, err = protocol.ParseAddress(c.SourceAddress); err != nil {
			return h, errors.Wrap(err, "source_address")
		}
	}
	if c.TargetAddress != "" {
		if h.Target, err = protocol.ParseAddress(c.TargetAddress); err != nil {
			return h, errors.Wrap(err, "target_address")
		}
	}
	h.Sequence = byte(c.Sequence)
	return h, nil
}

// ProgrammerOptions translates the transfer settings. Unset fields keep the
// programmer defaults.
func (c *Config) ProgrammerOptions() ([]bootloader.Option, error) {
	h, err := c.Header()
	if err != nil {
		return nil, err
	}

	opts := []bootloader.Option{
		bootloader.WithHeader(h),
		bootloader.WithFirmwareVersion(c.FirmwareVersion),
	}
	if c.Retries > 0 {
		opts = append(opts, bootloader.WithRetries(c.Retries))
	}
	if c.RetryBackoff > 0 {
		opts = append(opts, bootloader.WithRetryBackoff(time.Duration(c.RetryBackoff)))
	}
	if c.EraseTimeout > 0 {
		opts = append(opts, bootloader.WithEraseTimeout(time.Duration(c.EraseTimeout)))
	}
	if c.VerifyTimeout > 0 {
		opts = append(opts, bootloader.WithVerifyTimeout(time.Duration(c.VerifyTimeout)))
	}
	if c.ResponseTimeout > 0 {
		opts = append(opts, bootloader.WithResponseTimeout(time.Duration(c.ResponseTimeout)))
	}
	if c.SettleInterval > 0 {
		opts = append(opts, bootloader.WithSettleInterval(time.Duration(c.SettleInterval)))
	}
	if c.MaxPasses > 0 {
		opts = append(opts, bootloader.WithMaxPasses(c.MaxPasses))
	}
	return opts, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
