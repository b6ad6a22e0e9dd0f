package config

import (
	"fmt"
)

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	// ---- device ----

	if _, ok := usbStates[cfg.Device.USB]; !ok {
		return fmt.Errorf("device.usb: unknown state %q", cfg.Device.USB)
	}
	if _, ok := powerSources[cfg.Device.Power.Source]; !ok {
		return fmt.Errorf("device.power.source: unknown source %q", cfg.Device.Power.Source)
	}

	// ---- storage ----

	g := cfg.Geometry()
	if err := g.Validate(); err != nil {
		return fmt.Errorf(
			"storage: base=0x%X size=0x%X sector_size=0x%X: %w",
			g.Base, g.Size, g.SectorSize, err,
		)
	}

	// ---- serial ----

	if cfg.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud: must be positive, got %d", cfg.Serial.Baud)
	}
	if cfg.Serial.ReadTimeoutMs < 0 {
		return fmt.Errorf("serial.read_timeout_ms: must not be negative")
	}

	return nil
}
