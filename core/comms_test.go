package core

import (
	"bytes"
	"testing"

	"mbif/protocol"
)

type commsFixture struct {
	engine *I2CEngine
	line   *fakeLine
	board  *Board
	mon    *StaticPowerMonitor
	comms  *CommsHandler
}

func newCommsFixture() *commsFixture {
	line := &fakeLine{}
	e := NewI2CEngine(WithInterruptLine(line))
	mon := &StaticPowerMonitor{Source: PowerSourceUSB, VBat: 3000000, VIn: 5000000}
	b := NewBoard(0x9904, 0x0100, mon)
	return &commsFixture{
		engine: e,
		line:   line,
		board:  b,
		mon:    mon,
		comms:  NewCommsHandler(e, b, nil),
	}
}

// exchange writes req to the COMMS address, lets the task drain, then
// reads back a full record
func (f *commsFixture) exchange(req []byte) []byte {
	hostWrite(f.engine, protocol.AddrComms, req)
	f.engine.Drain()
	rsp := hostRead(f.engine, protocol.AddrComms, protocol.CommandSize)
	f.engine.Drain()
	return rsp
}

func TestReadProperties(t *testing.T) {
	f := newCommsFixture()
	f.board.USB = USBConnected

	tests := []struct {
		name string
		prop protocol.PropertyID
		want []byte
	}{
		{"board version", protocol.PropBoardVersion, []byte{0x04, 0x99}},
		{"protocol version", protocol.PropI2CProtocolVersion, []byte{0x02, 0x00}},
		{"daplink version", protocol.PropDAPLinkVersion, []byte{0x00, 0x01}},
		{"power state", protocol.PropPowerState, []byte{byte(PowerSourceUSB)}},
		{"power consumption", protocol.PropPowerConsumption, []byte{
			0xC0, 0xC6, 0x2D, 0x00, // 3000000 uV battery
			0x40, 0x4B, 0x4C, 0x00, // 5000000 uV input
		}},
		{"usb state", protocol.PropUSBEnumeration, []byte{byte(USBConnected)}},
		{"led sleep state", protocol.PropPowerLedSleepState, []byte{1}},
		{"automatic sleep", protocol.PropAutomaticSleep, []byte{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.exchange(protocol.ReadRequest(tt.prop))
			want := protocol.ReadResponse(tt.prop, tt.want)
			if !bytes.Equal(got, want) {
				t.Errorf("got % x, want % x", got, want)
			}
		})
	}
}

func TestPowerStateTracksMonitor(t *testing.T) {
	f := newCommsFixture()
	f.mon.Source = PowerSourceBattery

	got := f.exchange(protocol.ReadRequest(protocol.PropPowerState))
	want := protocol.ReadResponse(protocol.PropPowerState, []byte{byte(PowerSourceBattery)})
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestCommsErrors(t *testing.T) {
	tests := []struct {
		name string
		req  []byte
		want protocol.ErrorCode
	}{
		{"read power mode", protocol.ReadRequest(protocol.PropPowerMode), protocol.ErrReadDisallowed},
		{"read user event", protocol.ReadRequest(protocol.PropUserEvent), protocol.ErrReadDisallowed},
		{"read unknown", protocol.ReadRequest(0x42), protocol.ErrUnknownProperty},
		{"write unknown", protocol.WriteRequest(0x42, []byte{1}), protocol.ErrUnknownProperty},
		{"write board version", protocol.WriteRequest(protocol.PropBoardVersion, []byte{1, 2}), protocol.ErrWriteDisallowed},
		{"write user event", protocol.WriteRequest(protocol.PropUserEvent, []byte{1}), protocol.ErrWriteDisallowed},
		{"power mode invalid", protocol.WriteRequest(protocol.PropPowerMode, []byte{0x7F}), protocol.ErrWriteFail},
		{"power mode running", protocol.WriteRequest(protocol.PropPowerMode, []byte{byte(PowerModeRunning)}), protocol.ErrWriteFail},
		{"power mode size", protocol.WriteRequest(protocol.PropPowerMode, []byte{3, 0}), protocol.ErrWrongPropertySize},
		{"oversized value", []byte{0x12, 0x07, 0x09}, protocol.ErrWrongPropertySize},
		{"short read request", []byte{0x10}, protocol.ErrIncompleteCommand},
		{"short write request", []byte{0x12, 0x07, 0x01}, protocol.ErrIncompleteCommand},
		{"read response", protocol.ReadResponse(protocol.PropPowerState, []byte{1}), protocol.ErrCommandDisallowed},
		{"write response", protocol.WriteResponse(protocol.PropPowerMode), protocol.ErrCommandDisallowed},
		{"error response", protocol.ErrorResponse(protocol.ErrBusy), protocol.ErrCommandDisallowed},
		{"unknown command", []byte{0x55}, protocol.ErrUnknownCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCommsFixture()
			got := f.exchange(tt.req)
			want := protocol.ErrorResponse(tt.want)
			if !bytes.Equal(got, want) {
				t.Errorf("got % x, want % x", got, want)
			}
		})
	}
}

func TestWritableProperties(t *testing.T) {
	f := newCommsFixture()

	got := f.exchange(protocol.WriteRequest(protocol.PropPowerLedSleepState, []byte{0}))
	if !bytes.Equal(got, protocol.WriteResponse(protocol.PropPowerLedSleepState)) {
		t.Fatalf("led sleep write = % x", got)
	}
	if f.board.LEDSleepOn {
		t.Error("LED sleep state not cleared")
	}

	f.exchange(protocol.WriteRequest(protocol.PropAutomaticSleep, []byte{0}))
	if f.board.AutomaticSleep {
		t.Error("automatic sleep not cleared")
	}

	got = f.exchange(protocol.WriteRequest(protocol.PropPowerMode, []byte{byte(PowerModeSleep)}))
	if !bytes.Equal(got, protocol.WriteResponse(protocol.PropPowerMode)) {
		t.Fatalf("power mode write = % x", got)
	}
	if f.board.Mode != PowerModeSleep {
		t.Errorf("mode = %v, want sleep", f.board.Mode)
	}
}

func TestNopNotAnswered(t *testing.T) {
	f := newCommsFixture()
	if _, ok := f.comms.Process([]byte{0x00}); ok {
		t.Error("NOP produced a response")
	}
	hostWrite(f.engine, protocol.AddrComms, []byte{0x00})
	f.engine.Drain()
	if f.line.asserts != 0 || f.engine.ResponseReady() {
		t.Error("NOP published a response")
	}
}

func TestPowerDownScenario(t *testing.T) {
	f := newCommsFixture()

	hostWrite(f.engine, protocol.AddrComms, protocol.WriteRequest(protocol.PropPowerMode, []byte{byte(PowerModeDown)}))
	f.engine.Drain()
	if !f.line.asserted {
		t.Fatal("response not signalled")
	}
	if f.board.Shutdown != ShutdownWaiting {
		t.Fatal("shutdown requested before the host read the acknowledgement")
	}

	got := hostRead(f.engine, protocol.AddrComms, protocol.CommandSize)
	if !bytes.Equal(got, protocol.WriteResponse(protocol.PropPowerMode)) {
		t.Fatalf("response = % x", got)
	}
	f.engine.Drain()

	if f.board.Mode != PowerModeDown {
		t.Errorf("mode = %v, want down", f.board.Mode)
	}
	if f.board.Shutdown != ShutdownRequested {
		t.Error("shutdown not requested after the acknowledgement was read")
	}
	if f.line.asserted {
		t.Error("line not released after the read")
	}
}
