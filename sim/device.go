package sim

import (
	"context"
	"sync"

	"mbif/core"
	"mbif/storage"
	"mbif/vfs"
)

// Line is the combined interrupt line seen from the host side
type Line struct {
	mu       sync.Mutex
	asserted bool
	edges    chan struct{}
}

func NewLine() *Line {
	return &Line{edges: make(chan struct{}, 1)}
}

func (l *Line) Assert() {
	l.mu.Lock()
	l.asserted = true
	l.mu.Unlock()
	select {
	case l.edges <- struct{}{}:
	default:
	}
}

func (l *Line) Release() {
	l.mu.Lock()
	l.asserted = false
	l.mu.Unlock()
}

func (l *Line) Asserted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.asserted
}

// Wait blocks until the line is asserted or ctx is done
func (l *Line) Wait(ctx context.Context) error {
	for {
		if l.Asserted() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.edges:
		}
	}
}

// PowerRecorder stands in for the chip's low power modes. Entering a mode
// returns at once, as if a wake source fired immediately.
type PowerRecorder struct {
	mu    sync.Mutex
	modes []core.PowerMode
	hook  func(core.PowerMode)
}

func (p *PowerRecorder) Enter(mode core.PowerMode) error {
	p.mu.Lock()
	p.modes = append(p.modes, mode)
	hook := p.hook
	p.mu.Unlock()
	if hook != nil {
		hook(mode)
	}
	return nil
}

// Modes returns the modes entered so far
func (p *PowerRecorder) Modes() []core.PowerMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.PowerMode(nil), p.modes...)
}

// OnEnter sets a callback run after each mode entry
func (p *PowerRecorder) OnEnter(fn func(core.PowerMode)) {
	p.mu.Lock()
	p.hook = fn
	p.mu.Unlock()
}

// Config describes a simulated interface chip
type Config struct {
	Geometry       storage.Geometry
	BoardID        uint16
	DAPLinkVersion uint16
	Monitor        core.PowerMonitor
	USB            core.USBState

	// ExportDir receives the virtual file on remount. Empty disables
	// the export.
	ExportDir string

	// OnRemount runs after each remount, e.g. to persist the flash image
	OnRemount func(cfg storage.Config) error
}

// remountChain exports the file, then runs the configured hook
type remountChain struct {
	export *vfs.Dir
	hook   func(cfg storage.Config) error
}

func (r *remountChain) Remount(cfg storage.Config) error {
	if r.export != nil {
		if err := r.export.Remount(cfg); err != nil {
			return err
		}
	}
	if r.hook != nil {
		return r.hook(cfg)
	}
	return nil
}

// Device is a fully wired simulated interface chip
type Device struct {
	Flash  *storage.MemFlash
	Store  *storage.Store
	Engine *core.I2CEngine
	Board  *core.Board
	Comms  *core.CommsHandler
	FlashH *core.FlashHandler
	Task   *core.Task
	Line   *Line
	Power  *PowerRecorder
	Export *vfs.Dir
	Bus    *Bus
}

// New builds a device over fresh erased flash
func New(cfg Config, opts ...Option) (*Device, error) {
	if err := cfg.Geometry.Validate(); err != nil {
		return nil, err
	}
	return NewWithFlash(cfg, storage.NewMemFlash(cfg.Geometry), opts...)
}

// NewWithFlash builds a device over an existing flash image
func NewWithFlash(cfg Config, mem *storage.MemFlash, opts ...Option) (*Device, error) {
	store, err := storage.New(mem, cfg.Geometry)
	if err != nil {
		return nil, err
	}
	if _, err := store.Init(); err != nil {
		return nil, err
	}

	d := &Device{
		Flash: mem,
		Store: store,
		Line:  NewLine(),
		Power: &PowerRecorder{},
	}
	d.Engine = core.NewI2CEngine(core.WithInterruptLine(d.Line))
	d.Board = core.NewBoard(cfg.BoardID, cfg.DAPLinkVersion, cfg.Monitor)
	d.Board.SetUSBState(cfg.USB)
	d.Comms = core.NewCommsHandler(d.Engine, d.Board, nil)
	d.FlashH = core.NewFlashHandler(d.Engine, store)

	if cfg.ExportDir != "" {
		d.Export, err = vfs.NewDir(cfg.ExportDir, store)
		if err != nil {
			return nil, err
		}
	}
	remounter := &remountChain{export: d.Export, hook: cfg.OnRemount}
	d.Task = core.NewTask(d.Engine, d.Board, d.FlashH, store, remounter, d.Power)
	d.Bus = NewBus(d.Engine, d.Task, opts...)
	return d, nil
}

// Close stops the bus
func (d *Device) Close() error {
	return d.Bus.Close()
}
