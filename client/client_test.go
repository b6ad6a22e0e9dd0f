package client

import (
	"bytes"
	"errors"
	"testing"

	"mbif/core"
	"mbif/protocol"
	"mbif/sim"
	"mbif/storage"
)

var testGeometry = storage.Geometry{Base: 0x10000, Size: 0x10000, SectorSize: 0x1000}

func newSim(t *testing.T, opts ...sim.Option) *sim.Device {
	t.Helper()
	d, err := sim.New(sim.Config{
		Geometry:       testGeometry,
		BoardID:        0x9905,
		DAPLinkVersion: 0x0100,
		Monitor:        &core.StaticPowerMonitor{Source: core.PowerSourceUSB, VBat: 2900000, VIn: 3300000},
		USB:            core.USBConnected,
	}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestReadProperties(t *testing.T) {
	dev := New(newSim(t).Bus)

	if v, err := dev.BoardVersion(); err != nil || v != 0x9905 {
		t.Errorf("BoardVersion = %#x, %v", v, err)
	}
	if v, err := dev.ProtocolVersion(); err != nil || v != protocol.I2CProtocolVersion {
		t.Errorf("ProtocolVersion = %d, %v", v, err)
	}
	if v, err := dev.DAPLinkVersion(); err != nil || v != 0x0100 {
		t.Errorf("DAPLinkVersion = %#x, %v", v, err)
	}
	if v, err := dev.PowerState(); err != nil || v != uint8(core.PowerSourceUSB) {
		t.Errorf("PowerState = %d, %v", v, err)
	}
	vbat, vin, err := dev.PowerConsumption()
	if err != nil || vbat != 2900000 || vin != 3300000 {
		t.Errorf("PowerConsumption = %d, %d, %v", vbat, vin, err)
	}
	if v, err := dev.USBState(); err != nil || v != uint8(core.USBConnected) {
		t.Errorf("USBState = %d, %v", v, err)
	}
}

func TestWriteProperties(t *testing.T) {
	s := newSim(t)
	dev := New(s.Bus)

	if err := dev.SetAutomaticSleep(false); err != nil {
		t.Fatal(err)
	}
	if on, err := dev.AutomaticSleep(); err != nil || on {
		t.Errorf("AutomaticSleep = %v, %v", on, err)
	}
	if err := dev.SetLEDSleepState(false); err != nil {
		t.Fatal(err)
	}
	if on, err := dev.LEDSleepState(); err != nil || on {
		t.Errorf("LEDSleepState = %v, %v", on, err)
	}
}

func TestProtocolError(t *testing.T) {
	dev := New(newSim(t).Bus)

	_, err := dev.ReadProperty(protocol.PropPowerMode)
	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.Code != protocol.ErrReadDisallowed {
		t.Fatalf("read PowerMode: err = %v", err)
	}

	err = dev.SetPowerMode(uint8(core.PowerModeRunning))
	if !errors.As(err, &pe) || pe.Code != protocol.ErrWriteFail {
		t.Errorf("SetPowerMode(running): err = %v", err)
	}
}

func TestBusyRetriesExhausted(t *testing.T) {
	s := newSim(t, sim.WithManualService())
	dev := New(s.Bus, WithRetries(2), WithRetryDelay(0))

	_, err := dev.BoardVersion()
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	if got := s.Bus.Stats().BusyReads; got != 3 {
		t.Errorf("BusyReads = %d, want 3", got)
	}
}

func TestBusyRetryWaitsForService(t *testing.T) {
	s := newSim(t, sim.WithManualService())
	waits := 0
	dev := New(s.Bus, WithInterruptWait(func() error {
		waits++
		s.Bus.Service()
		return nil
	}))

	v, err := dev.BoardVersion()
	if err != nil || v != 0x9905 {
		t.Fatalf("BoardVersion = %#x, %v", v, err)
	}
	if waits != 1 {
		t.Errorf("waits = %d, want 1", waits)
	}
}

func TestFileConfig(t *testing.T) {
	dev := New(newSim(t).Bus)

	name, err := dev.FileName()
	if err != nil || name != storage.DefaultFilename {
		t.Fatalf("FileName = %q, %v", name, err)
	}
	name, err = dev.SetFileName("README  XYZ")
	if err != nil || name != "README  BIN" {
		t.Errorf("SetFileName = %q, %v", name, err)
	}
	if _, err := dev.SetFileName("BAD*NAMETXT"); err == nil {
		t.Error("invalid name accepted")
	}

	if err := dev.SetFileSize(100); err != nil {
		t.Fatal(err)
	}
	if n, err := dev.FileSize(); err != nil || n != 100 {
		t.Errorf("FileSize = %d, %v", n, err)
	}
	var fe *FlashError
	if err := dev.SetFileSize(0x100000); !errors.As(err, &fe) {
		t.Errorf("oversized SetFileSize: err = %v", err)
	}

	if err := dev.SetFileVisible(true); err != nil {
		t.Fatal(err)
	}
	if v, err := dev.FileVisible(); err != nil || !v {
		t.Errorf("FileVisible = %v, %v", v, err)
	}

	if err := dev.SetEncodingWindow(4, 8); err != nil {
		t.Fatal(err)
	}
	if s, e, err := dev.EncodingWindow(); err != nil || s != 4 || e != 8 {
		t.Errorf("EncodingWindow = %d, %d, %v", s, e, err)
	}

	if err := dev.WriteConfig(); err != nil {
		t.Fatal(err)
	}
	if err := dev.EraseConfig(); err != nil {
		t.Fatal(err)
	}
	if v, _ := dev.FileVisible(); v {
		t.Error("EraseConfig left the file visible")
	}
}

func TestSizes(t *testing.T) {
	dev := New(newSim(t).Bus)
	if n, err := dev.StorageSize(); err != nil || n != testGeometry.DataSize() {
		t.Errorf("StorageSize = %d, %v", n, err)
	}
	if n, err := dev.SectorSize(); err != nil || n != testGeometry.SectorSize {
		t.Errorf("SectorSize = %d, %v", n, err)
	}
	if err := dev.Remount(); err != nil {
		t.Errorf("Remount: %v", err)
	}
}

func TestDataRoundTrip(t *testing.T) {
	dev := New(newSim(t).Bus)

	data := make([]byte, 2500)
	for i := range data {
		data[i] = byte(i * 7)
	}
	if err := dev.WriteData(0x100, data); err != nil {
		t.Fatal(err)
	}
	got, err := dev.ReadData(0x100, len(data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("read back differs")
	}

	if err := dev.EraseData(0, 0x1000); err != nil {
		t.Fatal(err)
	}
	got, _ = dev.ReadData(0x100, 16)
	if !bytes.Equal(got, bytes.Repeat([]byte{0xFF}, 16)) {
		t.Errorf("after erase = % x", got)
	}
}

func TestDataErrors(t *testing.T) {
	dev := New(newSim(t).Bus)
	var fe *FlashError

	if _, err := dev.ReadData(testGeometry.DataSize()-4, 8); !errors.As(err, &fe) {
		t.Errorf("read past end: err = %v", err)
	}
	if err := dev.EraseData(0x10, 0x1000); !errors.As(err, &fe) || fe.Cmd != protocol.FlashDataErase {
		t.Errorf("unaligned erase: err = %v", err)
	}
}

func TestUserEvent(t *testing.T) {
	s := newSim(t)
	dev := New(s.Bus)

	s.Bus.UserEvent(protocol.UserEventResetButtonLongPress)
	if !s.Line.Asserted() {
		t.Fatal("line not asserted")
	}
	kind, err := dev.ReadUserEvent()
	if err != nil || kind != protocol.UserEventResetButtonLongPress {
		t.Errorf("ReadUserEvent = %d, %v", kind, err)
	}
}
