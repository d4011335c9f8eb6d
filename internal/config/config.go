// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Serial      SerialConfig      `mapstructure:"serial"`
	Device      DeviceConfig      `mapstructure:"device"`
	Registers   RegistersConfig   `mapstructure:"registers"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Timing      TimingConfig      `mapstructure:"timing"`
	Queue       QueueConfig       `mapstructure:"queue"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// DeviceConfig is the analyzer's identity on the link
type DeviceConfig struct {
	SlaveAddress    uint8  `mapstructure:"slave_address"`
	SerialNumber    uint32 `mapstructure:"serial_number"` // pipe serial number for long addressing
	Unlocked        bool   `mapstructure:"unlocked"`
	FactoryUnlocked bool   `mapstructure:"factory_unlocked"`
}

// RegistersConfig points at the register map
type RegistersConfig struct {
	Map string `mapstructure:"map"` // YAML register map path
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // File path for "file/mmap" type
}

// TimingConfig overrides the delays derived from the baud rate. Zero keeps the
// derived value.
type TimingConfig struct {
	Watchdog      time.Duration    `mapstructure:"watchdog"`
	ResponseDelay time.Duration    `mapstructure:"response_delay"`
	Retry         time.Duration    `mapstructure:"retry"`
	ClassDelays   ClassDelayConfig `mapstructure:"class_delays"`
}

// ClassDelayConfig sets the silence interval per register class
type ClassDelayConfig struct {
	Integer      time.Duration `mapstructure:"integer"`
	Long         time.Duration `mapstructure:"long"`
	Float        time.Duration `mapstructure:"float"`
	Coil         time.Duration `mapstructure:"coil"`
	Diagnostic   time.Duration `mapstructure:"diagnostic"`
	ForceAddress time.Duration `mapstructure:"force_address"`
}

// QueueConfig sizes the request queue
type QueueConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"device":        "serial.device",
	"baud-rate":     "serial.baud_rate",
	"slave-address": "device.slave_address",
	"register-map":  "registers.map",
	"log-level":     "log.level",
	"log-file":      "log.file",
}

// AddFlags registers the flags that override the configuration file.
func AddFlags(fs *pflag.FlagSet) {
	fs.StringP("device", "p", "", "Serial port device name.")
	fs.IntP("baud-rate", "s", 0, "Serial port speed.")
	fs.Uint8P("slave-address", "a", 0, "Modbus slave address.")
	fs.StringP("register-map", "m", "", "Register map file.")
	fs.StringP("log-level", "v", "", "Log verbosity level (debug, info, warn, error).")
	fs.StringP("log-file", "L", "", "Log file name ('-' for logging to STDOUT only).")
}

// LoadConfig loads configuration from file, then applies the flags of fs that
// were set. Without an explicit file and with none found on the search path,
// the defaults are used. fs may be nil.
func LoadConfig(configFile string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/analyzer-rtu/")
		v.AddConfigPath("$HOME/.analyzer-rtu")
		v.AddConfigPath(".")
	}

	setDefaults(v)
	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fixupSerial(&config.Serial)
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("serial.device", "/dev/ttyS0")
	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("device.slave_address", 1)
	v.SetDefault("persistence.type", "memory")
	v.SetDefault("queue.capacity", 8)
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
}

func (c *Config) validate() error {
	if c.Device.SlaveAddress == 0 || c.Device.SlaveAddress > 247 {
		return fmt.Errorf("device.slave_address %d out of range 1-247", c.Device.SlaveAddress)
	}
	switch c.Serial.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("serial.parity %q must be N, E or O", c.Serial.Parity)
	}
	switch c.Persistence.Type {
	case "memory":
	case "file", "mmap":
		if c.Persistence.Path == "" {
			return fmt.Errorf("persistence.path is required for type %q", c.Persistence.Type)
		}
	default:
		return fmt.Errorf("unknown persistence.type %q", c.Persistence.Type)
	}
	if c.Queue.Capacity < 2 {
		return fmt.Errorf("queue.capacity %d must be at least 2", c.Queue.Capacity)
	}
	return nil
}
