// Package vfs renders the data region as the single file the interface
// chip shows on its USB mass storage drive, and exports it to a host
// directory for the simulator.
package vfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mbif/protocol"
	"mbif/storage"
)

// FileSize is the length of the exported file for cfg. Every byte inside
// the encoding window is shown as two hex characters.
func FileSize(cfg storage.Config) uint32 {
	start, end := window(cfg)
	return cfg.FileSize + (end - start)
}

// window clamps the encoding window to the file contents
func window(cfg storage.Config) (start, end uint32) {
	start, end = cfg.EncStart, cfg.EncEnd
	if end > cfg.FileSize {
		end = cfg.FileSize
	}
	if start > end {
		start = end
	}
	return start, end
}

const hexDigits = "0123456789ABCDEF"

// Render reads the file described by cfg from the store
func Render(store *storage.Store, cfg storage.Config) ([]byte, error) {
	raw := make([]byte, cfg.FileSize)
	for off := uint32(0); off < cfg.FileSize; off += protocol.PayloadMax {
		end := off + protocol.PayloadMax
		if end > cfg.FileSize {
			end = cfg.FileSize
		}
		if err := store.Read(off, raw[off:end]); err != nil {
			return nil, fmt.Errorf("read data at %#x: %w", off, err)
		}
	}

	start, end := window(cfg)
	if start == end {
		return raw, nil
	}
	out := make([]byte, 0, FileSize(cfg))
	out = append(out, raw[:start]...)
	for _, b := range raw[start:end] {
		out = append(out, hexDigits[b>>4], hexDigits[b&0x0F])
	}
	out = append(out, raw[end:]...)
	return out, nil
}

// Dir exports the virtual file into a directory. It implements
// core.Remounter.
type Dir struct {
	path  string
	store *storage.Store

	mu      sync.Mutex
	current string // name of the file last exported
}

// NewDir exports store contents under path, creating it if needed
func NewDir(path string, store *storage.Store) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return &Dir{path: path, store: store}, nil
}

// Path returns the export directory
func (d *Dir) Path() string { return d.path }

// Current returns the file name last exported, or "" when hidden
func (d *Dir) Current() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Remount replaces the exported file with the current store contents.
// A hidden file is removed.
func (d *Dir) Remount(cfg storage.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := cfg.DisplayName()
	if d.current != "" && (d.current != name || !cfg.Visible) {
		if err := os.Remove(filepath.Join(d.path, d.current)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		d.current = ""
	}
	if !cfg.Visible {
		return nil
	}

	data, err := Render(d.store, cfg)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.path, ".remount-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.path, name)); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	d.current = name
	return nil
}
