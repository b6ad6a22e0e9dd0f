package mcu

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/marcinbor85/gohex"

	"mbif/bridge"
	"mbif/client"
	"mbif/host/serial"
)

// MCU is a connection to an interface chip through the serial I2C bridge
type MCU struct {
	bridge *bridge.Client
	dev    *client.Device

	connected bool
}

// Info is a snapshot of the device properties and file configuration
type Info struct {
	BoardVersion    uint16
	ProtocolVersion uint16
	DAPLinkVersion  uint16
	PowerState      uint8
	VBatUV, VInUV   uint32
	USBState        uint8
	LEDSleepState   bool
	AutomaticSleep  bool

	FileName    string
	FileSize    uint32
	FileVisible bool
	EncStart    uint32
	EncEnd      uint32
	StorageSize uint32
	SectorSize  uint32
}

// Connect opens device with the default serial settings
func Connect(device string) (*MCU, error) {
	return ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig opens the serial port described by cfg
func ConnectWithConfig(cfg *serial.Config) (*MCU, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return NewMCU(port), nil
}

// NewMCU talks to a bridge over an already open stream
func NewMCU(port io.ReadWriteCloser, opts ...bridge.ClientOption) *MCU {
	m := &MCU{connected: true}
	m.bridge = bridge.NewClient(port, opts...)
	m.dev = client.New(m.bridge, client.WithInterruptWait(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return m.bridge.WaitLine(ctx, 2*time.Millisecond)
	}))
	return m
}

// Device returns the protocol client
func (m *MCU) Device() *client.Device {
	return m.dev
}

// Bridge returns the bridge client, which implements drivers.I2C
func (m *MCU) Bridge() *bridge.Client {
	return m.bridge
}

// IsConnected returns whether the MCU is connected
func (m *MCU) IsConnected() bool {
	return m.connected
}

// Close closes the connection
func (m *MCU) Close() error {
	m.connected = false
	return m.bridge.Close()
}

// ReadInfo reads every readable property and the file configuration
func (m *MCU) ReadInfo() (*Info, error) {
	if !m.connected {
		return nil, fmt.Errorf("not connected")
	}
	d := m.dev
	info := &Info{}
	var err error

	steps := []struct {
		name string
		fn   func() error
	}{
		{"board version", func() error { info.BoardVersion, err = d.BoardVersion(); return err }},
		{"protocol version", func() error { info.ProtocolVersion, err = d.ProtocolVersion(); return err }},
		{"daplink version", func() error { info.DAPLinkVersion, err = d.DAPLinkVersion(); return err }},
		{"power state", func() error { info.PowerState, err = d.PowerState(); return err }},
		{"power consumption", func() error { info.VBatUV, info.VInUV, err = d.PowerConsumption(); return err }},
		{"usb state", func() error { info.USBState, err = d.USBState(); return err }},
		{"led sleep state", func() error { info.LEDSleepState, err = d.LEDSleepState(); return err }},
		{"automatic sleep", func() error { info.AutomaticSleep, err = d.AutomaticSleep(); return err }},
		{"file name", func() error { info.FileName, err = d.FileName(); return err }},
		{"file size", func() error { info.FileSize, err = d.FileSize(); return err }},
		{"file visible", func() error { info.FileVisible, err = d.FileVisible(); return err }},
		{"encoding window", func() error { info.EncStart, info.EncEnd, err = d.EncodingWindow(); return err }},
		{"storage size", func() error { info.StorageSize, err = d.StorageSize(); return err }},
		{"sector size", func() error { info.SectorSize, err = d.SectorSize(); return err }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return nil, fmt.Errorf("read %s: %w", s.name, err)
		}
	}
	return info, nil
}

// PrintInfo writes a summary of info
func PrintInfo(w io.Writer, info *Info) {
	fmt.Fprintln(w, "=== Interface chip ===")
	fmt.Fprintf(w, "Board:        0x%04X\n", info.BoardVersion)
	fmt.Fprintf(w, "Protocol:     %d\n", info.ProtocolVersion)
	fmt.Fprintf(w, "DAPLink:      0x%04X\n", info.DAPLinkVersion)
	fmt.Fprintf(w, "Power state:  %d (vbat %d uV, vin %d uV)\n", info.PowerState, info.VBatUV, info.VInUV)
	fmt.Fprintf(w, "USB state:    %d\n", info.USBState)
	fmt.Fprintf(w, "LED in sleep: %v\n", info.LEDSleepState)
	fmt.Fprintf(w, "Auto sleep:   %v\n", info.AutomaticSleep)
	fmt.Fprintln(w, "=== Storage ===")
	fmt.Fprintf(w, "File:         %q (%d bytes, visible %v)\n", info.FileName, info.FileSize, info.FileVisible)
	fmt.Fprintf(w, "Hex window:   [%d, %d)\n", info.EncStart, info.EncEnd)
	fmt.Fprintf(w, "Capacity:     %d bytes in %d byte sectors\n", info.StorageSize, info.SectorSize)
}

// DumpHex writes the first n bytes of the data region as Intel HEX,
// addressed from base
func (m *MCU) DumpHex(w io.Writer, base uint32, n int) error {
	data, err := m.dev.ReadData(0, n)
	if err != nil {
		return err
	}
	mem := gohex.NewMemory()
	if err := mem.AddBinary(base, data); err != nil {
		return err
	}
	return mem.DumpIntelHex(w, 16)
}

// LoadHex programs an Intel HEX image into the data region. Addresses
// are taken relative to base. Every sector touched is erased first.
func (m *MCU) LoadHex(r io.Reader, base uint32) error {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return err
	}
	sector, err := m.dev.SectorSize()
	if err != nil {
		return err
	}

	segs := mem.GetDataSegments()
	for _, seg := range segs {
		if seg.Address < base {
			return fmt.Errorf("segment at 0x%X below base 0x%X", seg.Address, base)
		}
		if len(seg.Data) == 0 {
			continue
		}
		off := seg.Address - base
		first := off / sector * sector
		last := (off + uint32(len(seg.Data)) - 1) / sector * sector
		if err := m.dev.EraseData(first, last); err != nil {
			return fmt.Errorf("erase 0x%X-0x%X: %w", first, last, err)
		}
	}
	for _, seg := range segs {
		if err := m.dev.WriteData(seg.Address-base, seg.Data); err != nil {
			return fmt.Errorf("write 0x%X: %w", seg.Address, err)
		}
	}
	return nil
}
