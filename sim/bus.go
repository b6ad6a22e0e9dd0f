// Package sim runs the interface chip firmware in-process. Bus plays the
// I2C master side of every transfer against a core.I2CEngine and runs
// the main task between transfers, so host drivers written against
// tinygo.org/x/drivers can talk to the firmware without hardware.
package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"mbif/core"
	"mbif/protocol"
)

var (
	ErrNack    = protocol.ErrNack
	ErrTooLong = errors.New("sim: write exceeds receive buffer")
	ErrClosed  = errors.New("sim: bus closed")
)

var _ drivers.I2C = (*Bus)(nil)

// Bus serializes I2C transfers and task work on one lock. On the chip the
// two are separated by interrupt masking, which is a no-op hosted.
type Bus struct {
	mu     sync.Mutex
	engine *core.I2CEngine
	task   *core.Task
	closed bool

	autoService bool
	onTransfer  func(addr uint8, w, r []byte)
}

// Option configures a Bus
type Option func(*Bus)

// WithManualService stops the bus from running the task after each
// transfer. Tests use it to observe the busy sentinel.
func WithManualService() Option {
	return func(b *Bus) {
		b.autoService = false
	}
}

// WithTransferHook calls fn after every completed transfer, for tracing
func WithTransferHook(fn func(addr uint8, w, r []byte)) Option {
	return func(b *Bus) {
		b.onTransfer = fn
	}
}

// NewBus drives engine as an I2C target and runs task between transfers
func NewBus(engine *core.I2CEngine, task *core.Task, opts ...Option) *Bus {
	b := &Bus{engine: engine, task: task, autoService: true}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Tx performs a write transfer when w is non-empty, then a read transfer
// when r is non-empty. An empty w and r is an address probe.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	a := uint8(addr)
	if addr > 0x7F || core.ChannelForAddress(a) == core.ChannelNone {
		return ErrNack
	}
	if len(w) > protocol.DataLength {
		return ErrTooLong
	}

	if len(w) > 0 || len(r) == 0 {
		b.engine.Receive(a<<1, w)
		b.serviceLocked()
	}
	if len(r) > 0 {
		b.engine.Transmit(a<<1|1, func(tx []byte) (int, error) {
			n := copy(r, tx)
			clear(r[n:])
			return len(r), nil
		})
		b.serviceLocked()
	}
	if b.onTransfer != nil {
		b.onTransfer(a, w, r)
	}
	return nil
}

func (b *Bus) serviceLocked() {
	if b.autoService && b.task != nil {
		b.task.Service()
	}
}

// Service runs the main task once
func (b *Bus) Service() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.task != nil {
		b.task.Service()
	}
}

// Tick runs one housekeeping tick of the main task
func (b *Bus) Tick() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.task != nil {
		b.task.Tick()
	}
}

// UserEvent posts a device initiated event, as a button press would
func (b *Bus) UserEvent(kind uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.task != nil {
		b.task.PostUserEvent(kind)
	}
}

// BusError injects a bus error into a transfer to addr
func (b *Bus) BusError(addr uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine.AddressMatch(addr << 1)
	b.engine.ReceiveRequest()
	b.engine.BusError()
}

// Do runs fn with transfers held off, for touching state the task owns
func (b *Bus) Do(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn()
}

// Stats returns the engine counters
func (b *Bus) Stats() core.EngineStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.engine.Stats()
}

// Run ticks the task and services engine events until ctx is done or the
// bus is closed
func (b *Bus) Run(ctx context.Context) error {
	ticker := time.NewTicker(core.TickInterval)
	defer ticker.Stop()

	events := b.engine.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			b.Service()
		case <-ticker.C:
			b.Tick()
		}
	}
}

// Close stops the engine. Later transfers fail with ErrClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.engine.Close()
	return nil
}
