// Package client talks to the interface chip from the target MCU side.
// It is written against tinygo.org/x/drivers so the same code runs on a
// real I2C bus, the serial bridge or the in-process simulator.
package client

import (
	"bytes"
	"time"

	"tinygo.org/x/drivers"

	"mbif/protocol"
)

// Config holds the client configuration.
type Config struct {
	// Retries is how many times a read is repeated while the device
	// answers with the busy sentinel
	Retries int

	// RetryDelay is the pause between busy retries
	RetryDelay time.Duration

	// Wait, when set, blocks until the device asserts its interrupt
	// line. It replaces RetryDelay.
	Wait func() error
}

func defaultConfig() Config {
	return Config{
		Retries:    20,
		RetryDelay: 5 * time.Millisecond,
	}
}

// Option is a functional option for configuring the Device.
type Option func(*Config)

// WithRetries sets how many busy reads are tolerated per request.
func WithRetries(n int) Option {
	return func(c *Config) {
		c.Retries = n
	}
}

// WithRetryDelay sets the pause between busy retries.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) {
		c.RetryDelay = d
	}
}

// WithInterruptWait waits on the interrupt line instead of sleeping.
func WithInterruptWait(wait func() error) Option {
	return func(c *Config) {
		c.Wait = wait
	}
}

// Device is a connection to one interface chip.
type Device struct {
	bus drivers.I2C
	cfg Config
}

// New creates a Device on bus.
func New(bus drivers.I2C, opts ...Option) *Device {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Device{bus: bus, cfg: cfg}
}

func isBusy(rsp []byte) bool {
	return len(rsp) >= 2 && bytes.Equal(rsp[:2], protocol.BusySentinel[:])
}

// exchange writes req to addr and reads an n byte response, retrying
// while the device reports busy.
func (d *Device) exchange(addr uint8, req []byte, n int) ([]byte, error) {
	if err := d.bus.Tx(uint16(addr), req, nil); err != nil {
		return nil, err
	}
	return d.read(addr, n)
}

func (d *Device) read(addr uint8, n int) ([]byte, error) {
	if n < len(protocol.BusySentinel) {
		n = len(protocol.BusySentinel)
	}
	rsp := make([]byte, n)
	for attempt := 0; ; attempt++ {
		if err := d.bus.Tx(uint16(addr), nil, rsp); err != nil {
			return nil, err
		}
		if !isBusy(rsp) {
			return rsp, nil
		}
		if attempt >= d.cfg.Retries {
			return nil, ErrBusy
		}
		if err := d.pause(); err != nil {
			return nil, err
		}
	}
}

func (d *Device) pause() error {
	if d.cfg.Wait != nil {
		return d.cfg.Wait()
	}
	time.Sleep(d.cfg.RetryDelay)
	return nil
}
