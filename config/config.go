// Package config loads the YAML file shared by the simulator and the host
// tool.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"mbif/core"
	"mbif/storage"
)

type Config struct {
	Device    DeviceConfig  `yaml:"device"`
	Storage   StorageConfig `yaml:"storage"`
	Serial    SerialConfig  `yaml:"serial"`
	ExportDir string        `yaml:"export_dir"` // Where the virtual file is written on remount
	Debug     bool          `yaml:"debug"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	BoardID        uint16      `yaml:"board_id"`
	DAPLinkVersion uint16      `yaml:"daplink_version"`
	USB            string      `yaml:"usb"` // connected | disconnected
	Power          PowerConfig `yaml:"power"`
}

type PowerConfig struct {
	Source string `yaml:"source"` // none | usb | battery | both
	VBatUV uint32 `yaml:"vbat_uv"`
	VInUV  uint32 `yaml:"vin_uv"`
}

// ---- STORAGE ----

type StorageConfig struct {
	Base       uint32 `yaml:"base"`
	Size       uint32 `yaml:"size"`
	SectorSize uint32 `yaml:"sector_size"`
	Image      string `yaml:"image"` // Intel HEX flash image, optional
}

// ---- SERIAL ----

type SerialConfig struct {
	Device        string `yaml:"device"`
	Baud          int    `yaml:"baud"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
}

// Load reads and parses the file at path. Defaults are applied; call
// Validate before use.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML, rejecting unknown keys
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used without a file
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// applyDefaults fills in missing values
func applyDefaults(cfg *Config) {
	if cfg.Device.BoardID == 0 {
		cfg.Device.BoardID = 0x9904 // micro:bit v2.0
	}
	if cfg.Device.DAPLinkVersion == 0 {
		cfg.Device.DAPLinkVersion = 0x0100
	}
	if cfg.Device.USB == "" {
		cfg.Device.USB = "connected"
	}
	if cfg.Device.Power.Source == "" {
		cfg.Device.Power.Source = "usb"
	}

	if cfg.Storage.Base == 0 && cfg.Storage.Size == 0 {
		cfg.Storage.Base = storage.DefaultGeometry.Base
		cfg.Storage.Size = storage.DefaultGeometry.Size
	}
	if cfg.Storage.SectorSize == 0 {
		cfg.Storage.SectorSize = storage.DefaultGeometry.SectorSize
	}

	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 115200
	}
	if cfg.Serial.ReadTimeoutMs == 0 {
		cfg.Serial.ReadTimeoutMs = 100
	}
}

// Geometry returns the storage layout
func (c *Config) Geometry() storage.Geometry {
	return storage.Geometry{
		Base:       c.Storage.Base,
		Size:       c.Storage.Size,
		SectorSize: c.Storage.SectorSize,
	}
}

var powerSources = map[string]core.PowerSource{
	"none":    core.PowerSourceNone,
	"usb":     core.PowerSourceUSB,
	"battery": core.PowerSourceBattery,
	"both":    core.PowerSourceBoth,
}

var usbStates = map[string]core.USBState{
	"connected":    core.USBConnected,
	"disconnected": core.USBDisconnected,
}

// Monitor builds the fixed power readings the simulator reports
func (c *Config) Monitor() *core.StaticPowerMonitor {
	return &core.StaticPowerMonitor{
		Source: powerSources[c.Device.Power.Source],
		VBat:   c.Device.Power.VBatUV,
		VIn:    c.Device.Power.VInUV,
	}
}

// USBState returns the configured enumeration state
func (c *Config) USBState() core.USBState {
	return usbStates[c.Device.USB]
}
