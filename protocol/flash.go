package protocol

// FlashCmdID selects a FLASH channel sub-command.
type FlashCmdID uint8

const (
	FlashCfgFileName    FlashCmdID = 0x01
	FlashCfgFileSize    FlashCmdID = 0x02
	FlashCfgFileVisible FlashCmdID = 0x03
	FlashCfgWrite       FlashCmdID = 0x04
	FlashCfgErase       FlashCmdID = 0x05
	FlashStorageSize    FlashCmdID = 0x06
	FlashSectorSize     FlashCmdID = 0x07
	FlashRemountMSD     FlashCmdID = 0x08
	FlashCfgEncWindow   FlashCmdID = 0x09
	FlashDataRead       FlashCmdID = 0x0A
	FlashDataWrite      FlashCmdID = 0x0B
	FlashDataErase      FlashCmdID = 0x0C
	FlashError          FlashCmdID = 0x20
)

// FlashHeaderSize is the size of the flash record minus its payload
// capacity: cmdId + 3 address bytes + 4 length bytes.
const FlashHeaderSize = DataLength - PayloadMax

// FilenameSize is the length of an 8.3 name without the dot.
const FilenameSize = 11

// Request sizes that select the set form of a get/set config command.
const (
	FileNameSetSize  = 1 + FilenameSize
	FileSizeSetSize  = 1 + 4
	VisibleSetSize   = 1 + 1
	EncWindowSetSize = 1 + 8
	FlashGetSize     = 1
)

// Addr24 decodes an address triplet sent most significant byte first
// (addr2, addr1, addr0).
func Addr24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// PutAddr24 encodes an address triplet.
func PutAddr24(b []byte, addr uint32) {
	b[0] = byte(addr >> 16)
	b[1] = byte(addr >> 8)
	b[2] = byte(addr)
}

// BigEndian32 decodes a byte-reversed 32-bit field.
func BigEndian32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// PutBigEndian32 encodes a byte-reversed 32-bit field.
func PutBigEndian32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// FlashData is the decoded header of a DataRead or DataWrite record.
type FlashData struct {
	Cmd     FlashCmdID
	Address uint32
	Length  uint32
}

// DecodeFlashData reads the fixed header; frame must hold at least
// FlashHeaderSize bytes.
func DecodeFlashData(frame []byte) (FlashData, bool) {
	if len(frame) < FlashHeaderSize {
		return FlashData{}, false
	}
	return FlashData{
		Cmd:     FlashCmdID(frame[0]),
		Address: Addr24(frame[1:4]),
		Length:  BigEndian32(frame[4:8]),
	}, true
}

// Header renders the 8-byte record header.
func (d FlashData) Header() []byte {
	h := make([]byte, FlashHeaderSize)
	h[0] = byte(d.Cmd)
	PutAddr24(h[1:4], d.Address)
	PutBigEndian32(h[4:8], d.Length)
	return h
}

// FlashErase is the decoded DataErase record. Byte 4 is padding.
type FlashErase struct {
	Start uint32
	End   uint32
}

// DecodeFlashErase decodes sAddr2..0, pad, eAddr2..0.
func DecodeFlashErase(frame []byte) (FlashErase, bool) {
	if len(frame) < 8 {
		return FlashErase{}, false
	}
	return FlashErase{
		Start: Addr24(frame[1:4]),
		End:   Addr24(frame[5:8]),
	}, true
}

// Encode renders a DataErase record.
func (e FlashErase) Encode() []byte {
	b := make([]byte, 8)
	b[0] = byte(FlashDataErase)
	PutAddr24(b[1:4], e.Start)
	PutAddr24(b[5:8], e.End)
	return b
}
