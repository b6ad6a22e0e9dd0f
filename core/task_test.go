package core

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"mbif/protocol"
	"mbif/storage"
)

type fakeRemounter struct {
	calls int
	last  storage.Config
}

func (r *fakeRemounter) Remount(cfg storage.Config) error {
	r.calls++
	r.last = cfg
	return nil
}

type fakePower struct {
	modes []PowerMode
}

func (p *fakePower) Enter(mode PowerMode) error {
	p.modes = append(p.modes, mode)
	return nil
}

type taskFixture struct {
	*flashFixture
	board *Board
	mon   *StaticPowerMonitor
	line  *fakeLine
	rem   *fakeRemounter
	power *fakePower
	task  *Task
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()
	ff := newFlashFixture(t)
	line := &fakeLine{}
	ff.engine = NewI2CEngine(WithInterruptLine(line))
	ff.flash = NewFlashHandler(ff.engine, ff.store)

	mon := &StaticPowerMonitor{Source: PowerSourceUSB}
	b := NewBoard(0x9904, 0x0100, mon)
	b.USB = USBConnected
	NewCommsHandler(ff.engine, b, nil)

	rem := &fakeRemounter{}
	power := &fakePower{}
	return &taskFixture{
		flashFixture: ff,
		board:        b,
		mon:          mon,
		line:         line,
		rem:          rem,
		power:        power,
		task:         NewTask(ff.engine, b, ff.flash, ff.store, rem, power),
	}
}

func TestTaskRemountsOnce(t *testing.T) {
	f := newTaskFixture(t)

	hostWrite(f.engine, protocol.AddrFlash, []byte{0x03, 1})
	f.task.Service()
	hostRead(f.engine, protocol.AddrFlash, 2)
	f.task.Service()

	hostWrite(f.engine, protocol.AddrFlash, []byte{byte(protocol.FlashRemountMSD)})
	f.task.Service()
	f.task.Service()

	if f.rem.calls != 1 {
		t.Fatalf("remount calls = %d, want 1", f.rem.calls)
	}
	if !f.rem.last.Visible {
		t.Error("remount did not see the updated config")
	}
}

func TestTaskPowerDownOnBattery(t *testing.T) {
	f := newTaskFixture(t)
	f.mon.Source = PowerSourceBattery
	f.board.USB = USBDisconnected
	f.board.AutomaticSleep = false

	hostWrite(f.engine, protocol.AddrComms, protocol.WriteRequest(protocol.PropPowerMode, []byte{byte(PowerModeDown)}))
	f.task.Service()
	if len(f.power.modes) != 0 {
		t.Fatal("powered down before the acknowledgement was read")
	}

	hostRead(f.engine, protocol.AddrComms, protocol.CommandSize)
	f.task.Service()

	if len(f.power.modes) != 1 || f.power.modes[0] != PowerModeDown {
		t.Fatalf("power modes = %v, want [down]", f.power.modes)
	}
	if f.board.Shutdown != ShutdownWaiting {
		t.Error("shutdown state not returned to waiting")
	}
}

func TestTaskStaysUpOnUSB(t *testing.T) {
	f := newTaskFixture(t)

	hostWrite(f.engine, protocol.AddrComms, protocol.WriteRequest(protocol.PropPowerMode, []byte{byte(PowerModeSleep)}))
	f.task.Service()
	hostRead(f.engine, protocol.AddrComms, protocol.CommandSize)
	f.task.Service()

	if len(f.power.modes) != 0 {
		t.Errorf("entered %v while USB connected", f.power.modes)
	}
	if f.board.Shutdown != ShutdownWaiting {
		t.Error("shutdown request not dropped")
	}
}

func TestTaskAutomaticSleep(t *testing.T) {
	f := newTaskFixture(t)
	f.board.SetUSBState(USBDisconnected)

	// Bus activity holds off sleep for the wake timeout
	hostWrite(f.engine, protocol.AddrFlash, []byte{0x07})
	f.task.Service()
	if len(f.power.modes) != 0 {
		t.Fatal("slept during the wake timeout")
	}
	hostRead(f.engine, protocol.AddrFlash, 3)
	f.task.Service()

	for i := 0; i < WakeTicks; i++ {
		f.task.Tick()
	}
	if len(f.power.modes) != 1 || f.power.modes[0] != PowerModeSleep {
		t.Fatalf("power modes = %v, want [sleep]", f.power.modes)
	}
}

func TestTaskAutomaticSleepDisabled(t *testing.T) {
	f := newTaskFixture(t)
	f.board.SetUSBState(USBDisconnected)
	f.board.AutomaticSleep = false

	f.task.Tick()
	if len(f.power.modes) != 0 {
		t.Errorf("slept with automatic sleep off: %v", f.power.modes)
	}
}

func TestTaskNoSleepWhileUSBHostActive(t *testing.T) {
	f := newTaskFixture(t)
	f.board.USB = USBDisconnected
	f.board.USBHostActive = true

	f.task.Tick()
	if len(f.power.modes) != 0 {
		t.Errorf("slept with an active USB host: %v", f.power.modes)
	}
}

func TestPostUserEvent(t *testing.T) {
	f := newTaskFixture(t)

	f.task.PostUserEvent(protocol.UserEventResetButtonLongPress)
	if !f.line.asserted {
		t.Fatal("user event did not assert the line")
	}
	got := hostRead(f.engine, protocol.AddrComms, protocol.CommandSize)
	want := protocol.ReadResponse(protocol.PropUserEvent, []byte{protocol.UserEventResetButtonLongPress})
	if !bytes.Equal(got, want) {
		t.Errorf("read = % x, want % x", got, want)
	}
	f.task.Service()
	if f.line.asserted {
		t.Error("line not released after the event was read")
	}
}

func TestStreamClosedDropsResponse(t *testing.T) {
	f := newTaskFixture(t)
	f.task.PostUserEvent(protocol.UserEventWakeFromResetButton)
	f.task.StreamClosed()
	if f.engine.ResponseReady() || f.line.asserted {
		t.Error("response survived the stream closing")
	}
}

func TestTaskRunStopsOnCancel(t *testing.T) {
	f := newTaskFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.task.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestUserEventDuringPowerDownAck(t *testing.T) {
	f := newTaskFixture(t)
	f.mon.Source = PowerSourceBattery
	f.board.USB = USBDisconnected

	hostWrite(f.engine, protocol.AddrComms, protocol.WriteRequest(protocol.PropPowerMode, []byte{byte(PowerModeDown)}))
	f.engine.Drain()
	hostRead(f.engine, protocol.AddrComms, protocol.CommandSize)

	// The wake button fires before the task drains the read
	f.task.PostUserEvent(protocol.UserEventWakeFromResetButton)
	f.engine.Drain()

	if f.board.Shutdown != ShutdownRequested {
		t.Errorf("shutdown = %d, want requested", f.board.Shutdown)
	}
	if !f.line.asserted {
		t.Error("line released with the user event unread")
	}
	got := hostRead(f.engine, protocol.AddrComms, protocol.CommandSize)
	want := protocol.ReadResponse(protocol.PropUserEvent, []byte{protocol.UserEventWakeFromResetButton})
	if !bytes.Equal(got, want) {
		t.Errorf("read = % x, want % x", got, want)
	}
}
