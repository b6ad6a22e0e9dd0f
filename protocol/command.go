package protocol

import "errors"

var (
	ErrShortCommand = errors.New("command shorter than its layout")
	ErrPropertySize = errors.New("property data larger than record")
)

// Command is the decoded form of a COMMS record. Only the fields belonging
// to the layout selected by ID are meaningful.
type Command struct {
	ID       CmdID
	Property PropertyID
	Size     uint8
	Data     [PropertyMax]byte
	Error    ErrorCode
}

// Value returns the property payload of a read response or write request.
func (c *Command) Value() []byte {
	n := int(c.Size)
	if n > PropertyMax {
		n = PropertyMax
	}
	return c.Data[:n]
}

// Encode renders the record in its fixed 11-byte wire form. Unused bytes
// are zero.
func (c *Command) Encode() []byte {
	out := make([]byte, CommandSize)
	out[0] = byte(c.ID)
	switch c.ID {
	case CmdReadRequest, CmdWriteResponse:
		out[1] = byte(c.Property)
	case CmdReadResponse, CmdWriteRequest:
		out[1] = byte(c.Property)
		out[2] = c.Size
		copy(out[3:], c.Value())
	case CmdErrorResponse:
		out[1] = byte(c.Error)
	}
	return out
}

// DecodeCommand parses a COMMS record. The received byte count is
// authoritative: a frame shorter than the layout for its ID is rejected.
func DecodeCommand(frame []byte) (Command, error) {
	var c Command
	if len(frame) == 0 {
		return c, ErrShortCommand
	}
	c.ID = CmdID(frame[0])
	switch c.ID {
	case CmdReadRequest, CmdWriteResponse:
		if len(frame) < 2 {
			return c, ErrShortCommand
		}
		c.Property = PropertyID(frame[1])
	case CmdReadResponse, CmdWriteRequest:
		if len(frame) < 3 {
			return c, ErrShortCommand
		}
		c.Property = PropertyID(frame[1])
		c.Size = frame[2]
		if int(c.Size) > PropertyMax {
			return c, ErrPropertySize
		}
		if len(frame) < 3+int(c.Size) {
			return c, ErrShortCommand
		}
		copy(c.Data[:], frame[3:3+int(c.Size)])
	case CmdErrorResponse:
		if len(frame) < 2 {
			return c, ErrShortCommand
		}
		c.Error = ErrorCode(frame[1])
	}
	return c, nil
}

// ReadRequest builds a ReadRequest record.
func ReadRequest(prop PropertyID) []byte {
	c := Command{ID: CmdReadRequest, Property: prop}
	return c.Encode()[:2]
}

// WriteRequest builds a WriteRequest record carrying value.
func WriteRequest(prop PropertyID, value []byte) []byte {
	c := Command{ID: CmdWriteRequest, Property: prop, Size: uint8(len(value))}
	copy(c.Data[:], value)
	return c.Encode()[:3+len(c.Value())]
}

// ReadResponse builds a full-size ReadResponse record.
func ReadResponse(prop PropertyID, value []byte) []byte {
	c := Command{ID: CmdReadResponse, Property: prop, Size: uint8(len(value))}
	copy(c.Data[:], value)
	return c.Encode()
}

// WriteResponse builds a full-size WriteResponse record.
func WriteResponse(prop PropertyID) []byte {
	c := Command{ID: CmdWriteResponse, Property: prop}
	return c.Encode()
}

// ErrorResponse builds a full-size ErrorResponse record.
func ErrorResponse(code ErrorCode) []byte {
	c := Command{ID: CmdErrorResponse, Error: code}
	return c.Encode()
}

// PutUint16 stores v little endian, the byte order of every multi-byte
// property value.
func PutUint16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

// PutUint32 stores v little endian.
func PutUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// Uint16 loads a little endian value.
func Uint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

// Uint32 loads a little endian value.
func Uint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
