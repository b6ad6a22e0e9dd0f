// I2C slave transport
// Interrupt-driven state machine serving the COMMS and FLASH addresses
package core

import (
	"sync"

	"mbif/protocol"
)

// WakeTicks is how many 30 ms ticks an address match keeps the device
// awake.
const WakeTicks = 3

type pendingEvent struct {
	set     bool
	channel Channel
	count   int

	// head holds the start of what a read transmitted, since tx may be
	// overwritten by Respond before Drain runs
	head [protocol.CommandSize]byte
}

func (p *pendingEvent) headBytes() []byte {
	return p.head[:min(p.count, len(p.head))]
}

// I2CEngine owns the transfer buffers and the per-transfer state of the
// slave controller. The AddressMatch, TransmitRequest, ReceiveRequest,
// Complete and BusError methods are called from the interrupt; everything
// else runs in task context.
//
// Completed transfers are parked in two single slots, one for reads and
// one for writes, and handed to the channel handlers by Drain. A second
// write completing before Drain replaces the first and is counted as an
// overrun; hosts must wait for the interrupt line between transactions.
type I2CEngine struct {
	rx [protocol.DataLength]byte
	tx [protocol.DataLength]byte

	busy [2]byte

	// xfer serializes whole transfers when several controllers feed the
	// engine from their own goroutines
	xfer sync.Mutex

	// Per-transfer state, written by the interrupt
	channel  Channel
	rxFlag   bool
	busyTx   bool
	inFlight bool
	rxLast   int

	// Response state
	txReady bool
	txLen   int

	pendingRead  pendingEvent
	pendingWrite pendingEvent

	handlers [channelCount]I2CHandler
	line     InterruptLine
	events   chan struct{}
	closed   bool

	wakeTimeout uint8
	allowSleep  bool

	overruns  uint32
	busErrors uint32
	busyReads uint32
}

// EngineOption configures an I2CEngine
type EngineOption func(*I2CEngine)

// WithInterruptLine sets the line asserted when a response is ready
func WithInterruptLine(l InterruptLine) EngineOption {
	return func(e *I2CEngine) {
		e.line = l
	}
}

// NewI2CEngine creates an idle engine with no handlers registered
func NewI2CEngine(opts ...EngineOption) *I2CEngine {
	e := &I2CEngine{
		busy:       protocol.BusySentinel,
		line:       nopLine{},
		events:     make(chan struct{}, 1),
		allowSleep: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register installs the handler for a channel. HID is accepted on the
// bus but never dispatched, so registering it is an error.
func (e *I2CEngine) Register(ch Channel, h I2CHandler) error {
	if ch != ChannelComms && ch != ChannelFlash {
		return ErrInvalidChannel
	}
	e.handlers[ch] = h
	return nil
}

// mustRegister installs a built-in handler. Register only fails for a
// channel that is never dispatched, so an error here is a programming
// error.
func (e *I2CEngine) mustRegister(ch Channel, h I2CHandler) {
	if err := e.Register(ch, h); err != nil {
		panic("core: register " + ch.String() + ": " + err.Error())
	}
}

// Events delivers a wake-up whenever work is parked for Drain. Several
// completions may share one wake-up.
func (e *I2CEngine) Events() <-chan struct{} {
	return e.events
}

func (e *I2CEngine) signal() {
	if e.closed {
		return
	}
	select {
	case e.events <- struct{}{}:
	default:
	}
}

// AddressMatch records the addressed channel. raw is the address byte as
// seen on the bus, R/W bit included.
func (e *I2CEngine) AddressMatch(raw uint8) {
	e.channel = ChannelForAddress(raw >> 1)
	e.inFlight = true
	e.wakeTimeout = WakeTicks
}

// TransmitRequest returns the bytes to clock out for a host read. While no
// response is ready this is the two byte busy sentinel.
func (e *I2CEngine) TransmitRequest() []byte {
	e.rxFlag = false
	if !e.txReady {
		e.busyTx = true
		return e.busy[:]
	}
	e.busyTx = false
	return e.tx[:]
}

// ResponseLen is the length of the ready response, for controllers that
// must be handed an exact reply. It is 2 while the busy sentinel is sent.
func (e *I2CEngine) ResponseLen() int {
	if !e.txReady {
		return len(e.busy)
	}
	return e.txLen
}

// ReceiveRequest returns the buffer for a host write.
func (e *I2CEngine) ReceiveRequest() []byte {
	e.rxFlag = true
	clear(e.rx[:e.rxLast])
	e.rxLast = 0
	return e.rx[:]
}

// Complete ends the current transfer after n bytes.
func (e *I2CEngine) Complete(n int) {
	e.inFlight = false
	if e.closed {
		return
	}
	if n > len(e.rx) {
		n = len(e.rx)
	}

	if e.rxFlag {
		e.rxLast = n
		if n == 0 || e.rx[0] == byte(protocol.CmdNop) {
			return
		}
		if e.handlers[e.channel] == nil {
			return
		}
		if e.pendingWrite.set {
			e.overruns++
			DebugAsync("[I2C] write overrun on " + e.channel.String())
		}
		e.pendingWrite = pendingEvent{set: true, channel: e.channel, count: n}
		e.allowSleep = false
		e.signal()
		return
	}

	if e.busyTx {
		// The host saw the busy sentinel; the real response is still pending
		e.busyTx = false
		e.busyReads++
		return
	}
	e.txReady = false
	if e.handlers[e.channel] == nil {
		return
	}
	e.pendingRead = pendingEvent{set: true, channel: e.channel, count: n}
	copy(e.pendingRead.head[:], e.tx[:n])
	e.allowSleep = false
	e.signal()
}

// BusError abandons the current transfer. Nothing is dispatched.
func (e *I2CEngine) BusError() {
	e.busErrors++
	e.inFlight = false
	e.busyTx = false
	DebugAsync("[I2C] bus error on " + e.channel.String())
}

// Receive runs one whole host write to raw carrying data and returns the
// number of bytes accepted. Controllers that report complete transfers,
// rather than interrupt steps, use Receive and Transmit.
func (e *I2CEngine) Receive(raw uint8, data []byte) int {
	e.xfer.Lock()
	defer e.xfer.Unlock()
	e.AddressMatch(raw)
	n := copy(e.ReceiveRequest(), data)
	e.Complete(n)
	return n
}

// Transmit runs one whole host read from raw. send clocks out the reply
// and returns how many bytes the host took; an error abandons the transfer
// as a bus error.
func (e *I2CEngine) Transmit(raw uint8, send func(tx []byte) (int, error)) error {
	e.xfer.Lock()
	defer e.xfer.Unlock()
	e.AddressMatch(raw)
	tx := e.TransmitRequest()
	n, err := send(tx[:e.ResponseLen()])
	if err != nil {
		e.BusError()
		return err
	}
	e.Complete(n)
	return nil
}

// Fault records a bus error seen outside any transfer.
func (e *I2CEngine) Fault() {
	e.xfer.Lock()
	e.BusError()
	e.xfer.Unlock()
}

// Drain runs the parked read completion, then the parked write
// completion, on their handlers. It returns how many handlers ran.
func (e *I2CEngine) Drain() int {
	state := disableInterrupts()
	r := e.pendingRead
	w := e.pendingWrite
	e.pendingRead = pendingEvent{}
	e.pendingWrite = pendingEvent{}
	restoreInterrupts(state)

	ran := 0
	if r.set {
		if h := e.handlers[r.channel]; h != nil {
			h.HandleRead(r.headBytes())
			ran++
		}
		e.clearStaleResponse()
	}
	if w.set {
		if h := e.handlers[w.channel]; h != nil {
			h.HandleWrite(e.rx[:w.count])
			ran++
		}
	}

	state = disableInterrupts()
	if !e.pendingRead.set && !e.pendingWrite.set {
		e.allowSleep = true
	}
	restoreInterrupts(state)
	return ran
}

// clearStaleResponse zeroes a consumed response so a later read cannot
// see it again.
func (e *I2CEngine) clearStaleResponse() {
	state := disableInterrupts()
	if !e.txReady {
		clear(e.tx[:e.txLen])
		e.txLen = 0
	}
	restoreInterrupts(state)
}

// Respond publishes b as the next response and asserts the interrupt
// line. b is truncated to the buffer capacity.
func (e *I2CEngine) Respond(b []byte) {
	state := disableInterrupts()
	old := e.txLen
	n := copy(e.tx[:], b)
	if old > n {
		clear(e.tx[n:old])
	}
	e.txLen = n
	e.txReady = true
	restoreInterrupts(state)

	e.line.Assert()
}

// ClearResponse drops any unread response.
func (e *I2CEngine) ClearResponse() {
	state := disableInterrupts()
	clear(e.tx[:e.txLen])
	e.txLen = 0
	e.txReady = false
	restoreInterrupts(state)
}

// ReleaseInterrupt de-asserts the response-ready line, unless a newer
// response is already waiting to be read.
func (e *I2CEngine) ReleaseInterrupt() {
	state := disableInterrupts()
	ready := e.txReady
	restoreInterrupts(state)
	if !ready {
		e.line.Release()
	}
}

// ResponseReady reports whether a response waits to be read.
func (e *I2CEngine) ResponseReady() bool {
	state := disableInterrupts()
	ready := e.txReady
	restoreInterrupts(state)
	return ready
}

// Tick30ms ages the wake timeout. Call it every 30 ms.
func (e *I2CEngine) Tick30ms() {
	state := disableInterrupts()
	if e.wakeTimeout > 0 {
		e.wakeTimeout--
	}
	restoreInterrupts(state)
}

// CanSleep reports whether the bus is quiet enough for low power: no
// transfer in flight or awaiting dispatch, and the wake timeout expired.
func (e *I2CEngine) CanSleep() bool {
	state := disableInterrupts()
	ok := e.allowSleep && !e.inFlight && e.wakeTimeout == 0
	restoreInterrupts(state)
	return ok
}

// Reset clears buffers, pending work and flags and releases the line.
func (e *I2CEngine) Reset() {
	state := disableInterrupts()
	clear(e.rx[:])
	clear(e.tx[:])
	e.txLen = 0
	e.txReady = false
	e.rxLast = 0
	e.channel = ChannelNone
	e.rxFlag = false
	e.busyTx = false
	e.inFlight = false
	e.pendingRead = pendingEvent{}
	e.pendingWrite = pendingEvent{}
	e.allowSleep = true
	e.wakeTimeout = 0
	restoreInterrupts(state)

	select {
	case <-e.events:
	default:
	}
	e.line.Release()
}

// Close resets the engine and stops event delivery. The engine ignores
// further completions.
func (e *I2CEngine) Close() {
	e.Reset()
	state := disableInterrupts()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
	restoreInterrupts(state)
}

// EngineStats is a snapshot of the engine counters
type EngineStats struct {
	Overruns  uint32 // Write completions replaced before Drain
	BusErrors uint32
	BusyReads uint32 // Reads answered with the busy sentinel
}

func (e *I2CEngine) Stats() EngineStats {
	state := disableInterrupts()
	s := EngineStats{Overruns: e.overruns, BusErrors: e.busErrors, BusyReads: e.busyReads}
	restoreInterrupts(state)
	return s
}
