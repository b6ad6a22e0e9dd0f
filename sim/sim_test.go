package sim

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mbif/core"
	"mbif/protocol"
	"mbif/storage"
)

var testGeometry = storage.Geometry{Base: 0x10000, Size: 0x10000, SectorSize: 0x1000}

func newDevice(t *testing.T, cfg Config, opts ...Option) *Device {
	t.Helper()
	if cfg.Geometry == (storage.Geometry{}) {
		cfg.Geometry = testGeometry
	}
	if cfg.BoardID == 0 {
		cfg.BoardID = 0x9904
	}
	if cfg.USB == core.USBDisconnected && cfg.Monitor == nil {
		cfg.USB = core.USBConnected
		cfg.Monitor = &core.StaticPowerMonitor{Source: core.PowerSourceUSB}
	}
	d, err := New(cfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestTxReadProperty(t *testing.T) {
	d := newDevice(t, Config{})

	rsp := make([]byte, protocol.CommandSize)
	if err := d.Bus.Tx(uint16(protocol.AddrComms), protocol.ReadRequest(protocol.PropBoardVersion), rsp); err != nil {
		t.Fatal(err)
	}
	want := protocol.ReadResponse(protocol.PropBoardVersion, []byte{0x04, 0x99})
	if !bytes.Equal(rsp, want) {
		t.Errorf("rsp = % x, want % x", rsp, want)
	}
	if d.Line.Asserted() {
		t.Error("line still asserted after the response was read")
	}
}

func TestTxNack(t *testing.T) {
	d := newDevice(t, Config{})
	if err := d.Bus.Tx(0x10, []byte{1}, nil); err != ErrNack {
		t.Errorf("Tx(0x10) = %v, want ErrNack", err)
	}
	if err := d.Bus.Tx(uint16(protocol.AddrFlash), make([]byte, protocol.DataLength+1), nil); err != ErrTooLong {
		t.Errorf("oversized write = %v, want ErrTooLong", err)
	}
}

func TestManualServiceShowsBusy(t *testing.T) {
	d := newDevice(t, Config{}, WithManualService())

	if err := d.Bus.Tx(uint16(protocol.AddrFlash), []byte{byte(protocol.FlashSectorSize)}, nil); err != nil {
		t.Fatal(err)
	}
	busy := make([]byte, 2)
	d.Bus.Tx(uint16(protocol.AddrFlash), nil, busy)
	if !bytes.Equal(busy, protocol.BusySentinel[:]) {
		t.Fatalf("read before service = % x, want busy", busy)
	}

	d.Bus.Service()
	if !d.Line.Asserted() {
		t.Fatal("line not asserted once the response was ready")
	}
	rsp := make([]byte, 3)
	d.Bus.Tx(uint16(protocol.AddrFlash), nil, rsp)
	if !bytes.Equal(rsp, []byte{0x07, 0x10, 0x00}) {
		t.Errorf("rsp = % x", rsp)
	}
	if d.Bus.Stats().BusyReads != 1 {
		t.Errorf("BusyReads = %d", d.Bus.Stats().BusyReads)
	}
}

func TestPowerDownOnBattery(t *testing.T) {
	d := newDevice(t, Config{
		Monitor: &core.StaticPowerMonitor{Source: core.PowerSourceBattery},
		USB:     core.USBDisconnected,
	})

	rsp := make([]byte, protocol.CommandSize)
	req := protocol.WriteRequest(protocol.PropPowerMode, []byte{byte(core.PowerModeDown)})
	if err := d.Bus.Tx(uint16(protocol.AddrComms), req, rsp); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(rsp, protocol.WriteResponse(protocol.PropPowerMode)) {
		t.Fatalf("rsp = % x", rsp)
	}
	modes := d.Power.Modes()
	if len(modes) != 1 || modes[0] != core.PowerModeDown {
		t.Errorf("modes = %v, want [down]", modes)
	}
}

func TestRemountExports(t *testing.T) {
	dir := t.TempDir()
	d := newDevice(t, Config{ExportDir: dir})

	hdr := protocol.FlashData{Cmd: protocol.FlashDataWrite, Address: 0, Length: 3}.Header()
	steps := [][]byte{
		append(hdr, 'a', 'b', 'c'),
		{byte(protocol.FlashCfgFileSize), 0, 0, 0, 3},
		{byte(protocol.FlashCfgFileVisible), 1},
		{byte(protocol.FlashRemountMSD)},
	}
	for _, req := range steps {
		rsp := make([]byte, 1)
		if err := d.Bus.Tx(uint16(protocol.AddrFlash), req, rsp); err != nil {
			t.Fatal(err)
		}
		if rsp[0] != req[0] {
			t.Fatalf("cmd %#x answered % x", req[0], rsp)
		}
	}

	got, err := os.ReadFile(filepath.Join(dir, "DATA.BIN"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "abc" {
		t.Errorf("exported %q", got)
	}
}

func TestUserEventWakesHost(t *testing.T) {
	d := newDevice(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Bus.UserEvent(protocol.UserEventWakeFromWakeOnEdge)
	if err := d.Line.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	rsp := make([]byte, protocol.CommandSize)
	d.Bus.Tx(uint16(protocol.AddrComms), nil, rsp)
	want := protocol.ReadResponse(protocol.PropUserEvent, []byte{protocol.UserEventWakeFromWakeOnEdge})
	if !bytes.Equal(rsp, want) {
		t.Errorf("rsp = % x, want % x", rsp, want)
	}
}

func TestClosedBus(t *testing.T) {
	d := newDevice(t, Config{})
	d.Close()
	if err := d.Bus.Tx(uint16(protocol.AddrComms), []byte{0x10, 0x01}, nil); err != ErrClosed {
		t.Errorf("Tx after Close = %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	d := newDevice(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Bus.Run(ctx) }()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
