package storage

import (
	"errors"
	"io"

	"github.com/marcinbor85/gohex"
)

var (
	ErrUnaligned = errors.New("flash access not aligned")
	ErrNotErased = errors.New("flash target not erased")
)

// MemFlash is an in-memory NOR flash covering one Geometry. Programming
// ANDs data into the array, erasing sets a sector to 0xFF. It counts
// operations and accepts injected faults so callers can be tested against
// wear and failure behaviour.
type MemFlash struct {
	geo  Geometry
	mem  []byte
	page uint32

	// Strict rejects programming over bytes that are not erased.
	Strict bool

	Erases   int
	Programs int

	// FailErase and FailProgram, when set, are consulted before each
	// operation; a non-nil result aborts it.
	FailErase   func(addr uint32) error
	FailProgram func(addr uint32, n int) error
}

// NewMemFlash returns an erased flash for g.
func NewMemFlash(g Geometry) *MemFlash {
	m := &MemFlash{geo: g, mem: make([]byte, g.Size), page: 1}
	for i := range m.mem {
		m.mem[i] = 0xFF
	}
	return m
}

// SetProgramAlign requires Program addresses and lengths to be multiples
// of n, like word-programmed parts.
func (m *MemFlash) SetProgramAlign(n uint32) {
	if n == 0 {
		n = 1
	}
	m.page = n
}

func (m *MemFlash) offset(addr uint32, n int) (uint32, error) {
	if addr < m.geo.Base || uint64(addr)+uint64(n) > uint64(m.geo.Base)+uint64(m.geo.Size) {
		return 0, ErrOutOfRange
	}
	return addr - m.geo.Base, nil
}

func (m *MemFlash) ReadAt(p []byte, addr uint32) error {
	off, err := m.offset(addr, len(p))
	if err != nil {
		return err
	}
	copy(p, m.mem[off:])
	return nil
}

func (m *MemFlash) Program(addr uint32, data []byte) error {
	off, err := m.offset(addr, len(data))
	if err != nil {
		return err
	}
	if addr%m.page != 0 || uint32(len(data))%m.page != 0 {
		return ErrUnaligned
	}
	if m.FailProgram != nil {
		if err := m.FailProgram(addr, len(data)); err != nil {
			return err
		}
	}
	m.Programs++
	if m.Strict {
		for i := range data {
			if m.mem[int(off)+i] != 0xFF {
				return ErrNotErased
			}
		}
	}
	for i, b := range data {
		m.mem[int(off)+i] &= b
	}
	return nil
}

func (m *MemFlash) EraseSector(addr uint32) error {
	off, err := m.offset(addr, int(m.geo.SectorSize))
	if err != nil {
		return err
	}
	if addr%m.geo.SectorSize != 0 {
		return ErrUnaligned
	}
	if m.FailErase != nil {
		if err := m.FailErase(addr); err != nil {
			return err
		}
	}
	m.Erases++
	for i := off; i < off+m.geo.SectorSize; i++ {
		m.mem[i] = 0xFF
	}
	return nil
}

// Bytes exposes the backing array.
func (m *MemFlash) Bytes() []byte { return m.mem }

// ResetCounters zeroes Erases and Programs.
func (m *MemFlash) ResetCounters() {
	m.Erases = 0
	m.Programs = 0
}

// LoadHex overlays an Intel HEX image. Segments outside the region are
// rejected. Counters are not touched.
func (m *MemFlash) LoadHex(r io.Reader) error {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return err
	}
	for _, seg := range mem.GetDataSegments() {
		off, err := m.offset(seg.Address, len(seg.Data))
		if err != nil {
			return err
		}
		copy(m.mem[off:], seg.Data)
	}
	return nil
}

// DumpHex writes the non-erased sectors as Intel HEX.
func (m *MemFlash) DumpHex(w io.Writer) error {
	mem := gohex.NewMemory()
	sector := m.geo.SectorSize
	for off := uint32(0); off < m.geo.Size; off += sector {
		chunk := m.mem[off : off+sector]
		if erased(chunk) {
			continue
		}
		if err := mem.AddBinary(m.geo.Base+off, chunk); err != nil {
			return err
		}
	}
	return mem.DumpIntelHex(w, 16)
}

func erased(b []byte) bool {
	for _, v := range b {
		if v != 0xFF {
			return false
		}
	}
	return true
}
