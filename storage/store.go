package storage

import "bytes"

// Store owns the RAM copy of the configuration record and bounds-checks
// all data region accesses. Setters only change the RAM copy; WriteConfig
// persists it. A Store is used from a single task and is not safe for
// concurrent use.
type Store struct {
	flash Flash
	geo   Geometry
	cfg   Config
}

// New returns a store holding the default configuration. Call Init to
// load the persisted record.
func New(flash Flash, geo Geometry) (*Store, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	return &Store{flash: flash, geo: geo, cfg: DefaultConfig(geo)}, nil
}

// Init loads the record from flash when its key matches, otherwise it
// resets to defaults. It reports whether a record was found.
func (s *Store) Init() (bool, error) {
	var raw [ConfigSize]byte
	if err := s.flash.ReadAt(raw[:], s.geo.ConfigAddr()); err != nil {
		s.reset()
		return false, err
	}
	c, ok := DecodeConfig(raw[:])
	if !ok {
		s.reset()
		return false, nil
	}
	s.cfg = c
	return true, nil
}

func (s *Store) reset() {
	s.cfg = DefaultConfig(s.geo)
}

func (s *Store) Geometry() Geometry { return s.geo }

// Config returns a copy of the RAM record.
func (s *Store) Config() Config { return s.cfg }

// SetFilename validates an 11-byte 8.3 name. A disallowed extension is
// replaced with BIN.
func (s *Store) SetFilename(name []byte) error {
	n, err := NormalizeFilename(name)
	if err != nil {
		return err
	}
	s.cfg.Name = n
	return nil
}

// SetFileSize accepts sizes up to the data region capacity.
func (s *Store) SetFileSize(size uint32) error {
	if size > s.geo.DataSize() {
		return &RangeError{Op: "set file size", Length: size, Limit: s.geo.DataSize()}
	}
	s.cfg.FileSize = size
	return nil
}

func (s *Store) SetFileVisible(visible bool) {
	s.cfg.Visible = visible
}

// SetEncodingWindow requires start <= end.
func (s *Store) SetEncodingWindow(start, end uint32) error {
	if start > end {
		return &RangeError{Op: "set encoding window", Offset: start, Limit: end}
	}
	s.cfg.EncStart = start
	s.cfg.EncEnd = end
	return nil
}

// WriteConfig persists the RAM record when it differs from the flash copy.
// It reports whether flash was modified. An erase failure skips the
// program step.
func (s *Store) WriteConfig() (bool, error) {
	want := s.cfg.Encode()
	var have [ConfigSize]byte
	if err := s.flash.ReadAt(have[:], s.geo.ConfigAddr()); err != nil {
		return false, err
	}
	if bytes.Equal(want[:], have[:]) {
		return false, nil
	}
	if err := s.flash.EraseSector(s.geo.ConfigAddr()); err != nil {
		return true, err
	}
	if err := s.flash.Program(s.geo.ConfigAddr(), want[:]); err != nil {
		return true, err
	}
	return true, nil
}

// EraseConfig erases the config sector and, on success, restores the
// defaults.
func (s *Store) EraseConfig() error {
	if err := s.flash.EraseSector(s.geo.ConfigAddr()); err != nil {
		return err
	}
	s.reset()
	return nil
}

func (s *Store) checkRange(op string, off uint32, n int) error {
	if uint64(off)+uint64(n) > uint64(s.geo.DataSize()) {
		return &RangeError{Op: op, Offset: off, Length: uint32(n), Limit: s.geo.DataSize()}
	}
	return nil
}

// Write programs data at a data region offset and verifies it.
func (s *Store) Write(off uint32, data []byte) error {
	if err := s.checkRange("write", off, len(data)); err != nil {
		return err
	}
	addr := s.geo.DataStart() + off
	if err := s.flash.Program(addr, data); err != nil {
		return err
	}
	back := make([]byte, len(data))
	if err := s.flash.ReadAt(back, addr); err != nil {
		return err
	}
	if !bytes.Equal(back, data) {
		return ErrVerify
	}
	return nil
}

// Read fills p from a data region offset.
func (s *Store) Read(off uint32, p []byte) error {
	if err := s.checkRange("read", off, len(p)); err != nil {
		return err
	}
	return s.flash.ReadAt(p, s.geo.DataStart()+off)
}

// EraseSector erases the data sector starting at off.
func (s *Store) EraseSector(off uint32) error {
	if off%s.geo.SectorSize != 0 {
		return &RangeError{Op: "erase sector", Offset: off, Length: s.geo.SectorSize, Limit: s.geo.DataSize()}
	}
	if err := s.checkRange("erase sector", off, int(s.geo.SectorSize)); err != nil {
		return err
	}
	return s.flash.EraseSector(s.geo.DataStart() + off)
}

// ValidEraseRange reports whether [start, end] names whole sectors
// inside the data region. end is the offset of the last sector erased.
func (s *Store) ValidEraseRange(start, end uint32) bool {
	sec := s.geo.SectorSize
	return start%sec == 0 && end%sec == 0 && start <= end && end < s.geo.DataSize()
}

// EraseRange erases every sector from start through end inclusive,
// stopping at the first failure.
func (s *Store) EraseRange(start, end uint32) error {
	if !s.ValidEraseRange(start, end) {
		return &RangeError{Op: "erase range", Offset: start, Length: spanOf(start, end), Limit: s.geo.DataSize()}
	}
	for off := start; off <= end; off += s.geo.SectorSize {
		if err := s.flash.EraseSector(s.geo.DataStart() + off); err != nil {
			return err
		}
	}
	return nil
}

// EraseAll erases the config sector and then every data sector.
func (s *Store) EraseAll() error {
	if err := s.EraseConfig(); err != nil {
		return err
	}
	return s.EraseRange(0, s.geo.DataSize()-s.geo.SectorSize)
}

func spanOf(start, end uint32) uint32 {
	if end < start {
		return 0
	}
	return end - start
}
