package core

import (
	"context"
	"time"

	"mbif/protocol"
	"mbif/storage"
)

// TickInterval is the period of the main task housekeeping tick
const TickInterval = 30 * time.Millisecond

// Remounter re-exports the virtual file to the USB host after its
// configuration or contents changed
type Remounter interface {
	Remount(cfg storage.Config) error
}

// PowerController enters a low power mode. It returns once the chip is
// running again.
type PowerController interface {
	Enter(mode PowerMode) error
}

// Task is the main task: it drains the I2C engine outside interrupt
// context and applies the power and remount requests the handlers leave
// behind
type Task struct {
	engine *I2CEngine
	board  *Board
	flash  *FlashHandler
	store  *storage.Store

	remounter Remounter
	power     PowerController
}

// NewTask wires the task. remounter and power may be nil.
func NewTask(e *I2CEngine, b *Board, flash *FlashHandler, store *storage.Store, remounter Remounter, power PowerController) *Task {
	return &Task{
		engine:    e,
		board:     b,
		flash:     flash,
		store:     store,
		remounter: remounter,
		power:     power,
	}
}

// Service drains pending I2C work and then applies remount and power
// requests. It is safe to call at any time from task context.
func (t *Task) Service() {
	t.engine.Drain()

	if t.flash != nil && t.flash.TakeRemount() {
		t.remount()
	}

	t.checkAutomaticSleep()
	t.checkShutdown()
}

// Tick is the 30 ms housekeeping step
func (t *Task) Tick() {
	t.engine.Tick30ms()
	t.Service()
}

func (t *Task) remount() {
	if t.remounter == nil || t.store == nil {
		return
	}
	cfg := t.store.Config()
	if err := t.remounter.Remount(cfg); err != nil {
		DebugPrintln("[TASK] remount failed: " + err.Error())
		return
	}
	DebugPrintln("[TASK] remounted " + cfg.DisplayName())
}

func (t *Task) checkAutomaticSleep() {
	b := t.board
	if b.usbAbsent() && b.AutomaticSleep && b.Shutdown == ShutdownWaiting && t.engine.CanSleep() {
		b.Mode = PowerModeSleep
		b.Shutdown = ShutdownRequested
	}
}

func (t *Task) checkShutdown() {
	b := t.board
	if b.Shutdown != ShutdownRequested {
		return
	}
	switch {
	case b.Monitor.PowerSource() == PowerSourceBattery || b.usbAbsent():
		b.Shutdown = ShutdownWaiting
		if t.power == nil {
			return
		}
		DebugPrintln("[TASK] entering power mode " + b.Mode.String())
		if err := t.power.Enter(b.Mode); err != nil {
			DebugPrintln("[TASK] power mode " + b.Mode.String() + ": " + err.Error())
		}
	case b.USB == USBConnected:
		// USB keeps the interface chip running
		b.Shutdown = ShutdownWaiting
	}
}

// PostUserEvent queues a device initiated UserEvent response and asserts
// the interrupt line so the host comes to read it
func (t *Task) PostUserEvent(kind uint8) {
	t.engine.ReleaseInterrupt()
	t.engine.Respond(protocol.ReadResponse(protocol.PropUserEvent, []byte{kind}))
}

// StreamClosed drops any I2C exchange in progress, for when the USB
// host resets the interface
func (t *Task) StreamClosed() {
	t.engine.Reset()
}

// Run services engine events and ticks until ctx is done
func (t *Task) Run(ctx context.Context) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	events := t.engine.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			t.Service()
		case <-ticker.C:
			t.Tick()
		}
	}
}
