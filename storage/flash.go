// Package storage keeps the virtual file exposed over the FLASH channel:
// the persisted configuration record in the first sector of the storage
// region and the raw data sectors that follow it.
//
//	base                                               base+Size
//	| config | data                                          |
//	         ^ data offset 0
package storage

import (
	"errors"
	"fmt"
	"strconv"
)

// Flash is the raw program/erase backend. Addresses are absolute.
type Flash interface {
	// ReadAt fills p with the bytes stored at addr.
	ReadAt(p []byte, addr uint32) error

	// Program writes data at addr. NOR semantics: bits can only be
	// cleared, so the target must have been erased first.
	Program(addr uint32, data []byte) error

	// EraseSector sets the sector starting at addr to 0xFF.
	EraseSector(addr uint32) error
}

// Geometry describes the storage region inside the flash.
type Geometry struct {
	Base       uint32 // Absolute address of the config sector
	Size       uint32 // Region size including the config sector
	SectorSize uint32 // Erase granularity
}

// DefaultGeometry is the layout used when nothing else is configured:
// 128 KiB of storage at 128 KiB, 4 KiB sectors.
var DefaultGeometry = Geometry{
	Base:       0x00020000,
	Size:       0x00020000,
	SectorSize: 0x1000,
}

var ErrGeometry = errors.New("invalid storage geometry")

// Limits of the FLASH size replies: StorageSize carries the data region in
// one byte of KiB, SectorSize carries two bytes.
const (
	MaxSectorSize = 0xFFFF
	MaxDataKiB    = 0xFF
)

// Validate checks that the region holds the config sector plus at least
// one data sector, all sector aligned, and that both sizes fit their
// FLASH replies.
func (g Geometry) Validate() error {
	switch {
	case g.SectorSize == 0:
		return ErrGeometry
	case g.Base%g.SectorSize != 0 || g.Size%g.SectorSize != 0:
		return ErrGeometry
	case g.Size < 2*g.SectorSize:
		return ErrGeometry
	case uint64(g.Base)+uint64(g.Size) > 1<<32:
		return ErrGeometry
	case g.SectorSize > MaxSectorSize:
		return fmt.Errorf("%w: sector_size 0x%X does not fit in 16 bits", ErrGeometry, g.SectorSize)
	case g.DataSize()%1024 != 0 || g.DataSize()/1024 > MaxDataKiB:
		return fmt.Errorf("%w: data region of %d bytes is not a whole number of KiB up to %d",
			ErrGeometry, g.DataSize(), MaxDataKiB)
	}
	return nil
}

// ConfigAddr is the absolute address of the configuration record.
func (g Geometry) ConfigAddr() uint32 { return g.Base }

// DataStart is the absolute address of data offset 0.
func (g Geometry) DataStart() uint32 { return g.Base + g.SectorSize }

// DataSize is the capacity of the data region in bytes.
func (g Geometry) DataSize() uint32 { return g.Size - g.SectorSize }

// SectorCount is the number of data sectors.
func (g Geometry) SectorCount() uint32 { return g.DataSize() / g.SectorSize }

var (
	ErrOutOfRange      = errors.New("address out of storage range")
	ErrInvalidFilename = errors.New("invalid 8.3 filename")
	ErrVerify          = errors.New("flash verify failed")
)

// RangeError reports a data region access outside its bounds. It matches
// ErrOutOfRange with errors.Is.
type RangeError struct {
	Op     string
	Offset uint32
	Length uint32
	Limit  uint32
}

func (e *RangeError) Error() string {
	return "storage " + e.Op + ": offset 0x" + strconv.FormatUint(uint64(e.Offset), 16) +
		" length " + strconv.FormatUint(uint64(e.Length), 10) +
		" exceeds 0x" + strconv.FormatUint(uint64(e.Limit), 16)
}

func (e *RangeError) Unwrap() error { return ErrOutOfRange }
