//go:build rp2040

package main

import (
	"errors"
	"machine"

	"mbif/storage"
)

var errFlashRange = errors.New("address outside the flash data area")

// blockDevice is the subset of machine.Flash used here
type blockDevice interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Size() int64
	WriteBlockSize() int64
	EraseBlockSize() int64
	EraseBlocks(start, len int64) error
}

// RPFlash implements storage.Flash on machine.Flash. Storage addresses are
// offsets from the start of the flash data area.
type RPFlash struct {
	dev blockDevice
}

func NewRPFlash() *RPFlash {
	return &RPFlash{dev: machine.Flash}
}

// Geometry places a storage region of size bytes at the end of the data
// area
func (f *RPFlash) Geometry(size uint32) (storage.Geometry, error) {
	sector := uint32(f.dev.EraseBlockSize())
	total := uint32(f.dev.Size())
	if size > total {
		return storage.Geometry{}, errFlashRange
	}
	base := (total - size) / sector * sector
	g := storage.Geometry{Base: base, Size: size, SectorSize: sector}
	return g, g.Validate()
}

func (f *RPFlash) check(addr uint32, n int) error {
	if int64(addr)+int64(n) > f.dev.Size() {
		return errFlashRange
	}
	return nil
}

func (f *RPFlash) ReadAt(p []byte, addr uint32) error {
	if err := f.check(addr, len(p)); err != nil {
		return err
	}
	_, err := f.dev.ReadAt(p, int64(addr))
	return err
}

// Program writes data at addr. The controller programs whole aligned
// blocks, so the bytes around data are padded with 0xFF, which leaves
// them unchanged.
func (f *RPFlash) Program(addr uint32, data []byte) error {
	if err := f.check(addr, len(data)); err != nil {
		return err
	}
	block := uint32(f.dev.WriteBlockSize())
	if block <= 1 {
		_, err := f.dev.WriteAt(data, int64(addr))
		return err
	}

	start := addr / block * block
	end := (addr + uint32(len(data)) + block - 1) / block * block
	buf := make([]byte, end-start)
	for i := range buf {
		buf[i] = 0xFF
	}
	copy(buf[addr-start:], data)
	_, err := f.dev.WriteAt(buf, int64(start))
	return err
}

func (f *RPFlash) EraseSector(addr uint32) error {
	sector := uint32(f.dev.EraseBlockSize())
	if addr%sector != 0 {
		return errFlashRange
	}
	if err := f.check(addr, int(sector)); err != nil {
		return err
	}
	return f.dev.EraseBlocks(int64(addr/sector), 1)
}
