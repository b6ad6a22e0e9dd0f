package storage

import "encoding/binary"

// ConfigKey marks a valid record ("kvld" read as a little endian word).
const ConfigKey uint32 = 0x6b766c64

// ConfigSize is the persisted record length.
const ConfigSize = 4 + FilenameSize + 1 + 4 + 4 + 4

// FilenameSize is an 8.3 name without the dot, space padded.
const FilenameSize = 11

// DefaultFilename is the name used until one is configured.
const DefaultFilename = "DATA    BIN"

// Config describes the virtual file.
type Config struct {
	Key      uint32
	Name     [FilenameSize]byte
	Visible  bool
	FileSize uint32 // bytes
	EncStart uint32
	EncEnd   uint32
}

// DefaultConfig returns the compiled-in record for g.
func DefaultConfig(g Geometry) Config {
	c := Config{
		Key:      ConfigKey,
		FileSize: g.DataSize() - g.SectorSize,
	}
	copy(c.Name[:], DefaultFilename)
	return c
}

// Encode renders the persisted little endian layout.
func (c *Config) Encode() [ConfigSize]byte {
	var b [ConfigSize]byte
	binary.LittleEndian.PutUint32(b[0:], c.Key)
	copy(b[4:15], c.Name[:])
	if c.Visible {
		b[15] = 1
	}
	binary.LittleEndian.PutUint32(b[16:], c.FileSize)
	binary.LittleEndian.PutUint32(b[20:], c.EncStart)
	binary.LittleEndian.PutUint32(b[24:], c.EncEnd)
	return b
}

// DecodeConfig parses a persisted record. ok is false when the key does
// not match, which is the case for erased flash.
func DecodeConfig(b []byte) (c Config, ok bool) {
	if len(b) < ConfigSize {
		return c, false
	}
	c.Key = binary.LittleEndian.Uint32(b[0:])
	if c.Key != ConfigKey {
		return Config{}, false
	}
	copy(c.Name[:], b[4:15])
	c.Visible = b[15] != 0
	c.FileSize = binary.LittleEndian.Uint32(b[16:])
	c.EncStart = binary.LittleEndian.Uint32(b[20:])
	c.EncEnd = binary.LittleEndian.Uint32(b[24:])
	return c, true
}

// DisplayName renders the record name as NAME.EXT without padding.
func (c *Config) DisplayName() string {
	base := trimSpaces(c.Name[:8])
	ext := trimSpaces(c.Name[8:])
	if ext == "" {
		return base
	}
	return base + "." + ext
}

func trimSpaces(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == ' ' {
		n--
	}
	return string(b[:n])
}

var allowedExtensions = [...]string{"BIN", "TXT", "CSV", "HTM", "WAV"}

// ValidFilename reports whether name is a legal FAT short name.
func ValidFilename(name []byte) bool {
	if len(name) != FilenameSize {
		return false
	}
	switch name[0] {
	case 0x00, 0xE5, ' ':
		return false
	}
	for _, c := range name {
		if c < 0x20 || c == 0x7F {
			return false
		}
		switch c {
		case '"', '*', '+', ',', '.', '/', ':', ';', '<', '=', '>', '?', '[', '\\', ']', '|':
			return false
		}
	}
	return true
}

// ExtensionAllowed reports whether the extension of an 11-byte name is
// one the virtual file may carry.
func ExtensionAllowed(name []byte) bool {
	if len(name) != FilenameSize {
		return false
	}
	ext := string(name[8:])
	for _, a := range allowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// NormalizeFilename validates name and replaces a disallowed extension
// with BIN.
func NormalizeFilename(name []byte) ([FilenameSize]byte, error) {
	var out [FilenameSize]byte
	if !ValidFilename(name) {
		return out, ErrInvalidFilename
	}
	copy(out[:], name)
	if !ExtensionAllowed(name) {
		copy(out[8:], "BIN")
	}
	return out, nil
}
