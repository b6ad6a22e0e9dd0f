package protocol

import "errors"

var (
	ErrInvalidVLQ = errors.New("invalid VLQ encoding")
	ErrTruncated  = errors.New("message truncated")
)

// Message fields are variable length quantities: 7 bit groups, most
// significant first, with the high bit set on every group but the last.
// Byte strings are a VLQ length followed by the bytes.

// PutVLQ appends v to b
func PutVLQ(b *FrameBuffer, v uint32) {
	var tmp [5]byte
	i := len(tmp) - 1
	tmp[i] = byte(v & 0x7F)
	for v >>= 7; v != 0; v >>= 7 {
		i--
		tmp[i] = byte(v&0x7F) | 0x80
	}
	b.Write(tmp[i:])
}

// PutString appends a length prefixed byte string to b
func PutString(b *FrameBuffer, p []byte) {
	PutVLQ(b, uint32(len(p)))
	b.Write(p)
}

// Reader decodes the fields of a message payload. The first error sticks:
// later calls return zero values and Err reports it.
type Reader struct {
	data []byte
	err  error
}

func NewReader(payload []byte) *Reader {
	return &Reader{data: payload}
}

// VLQ decodes the next integer field
func (r *Reader) VLQ() uint32 {
	if r.err != nil {
		return 0
	}
	var v uint32
	for i := 0; ; i++ {
		if i == len(r.data) {
			r.fail(ErrTruncated)
			return 0
		}
		c := r.data[i]
		// Reject a leading zero group and anything past 32 bits
		if (i == 0 && c == 0x80) || v > 0x1FFFFFF {
			r.fail(ErrInvalidVLQ)
			return 0
		}
		v = v<<7 | uint32(c&0x7F)
		if c&0x80 == 0 {
			r.data = r.data[i+1:]
			return v
		}
	}
}

// String decodes the next byte string. The result aliases the payload.
func (r *Reader) String() []byte {
	n := r.VLQ()
	if r.err != nil {
		return nil
	}
	if uint32(len(r.data)) < n {
		r.fail(ErrTruncated)
		return nil
	}
	s := r.data[:n]
	r.data = r.data[n:]
	return s
}

// Len is the number of undecoded bytes
func (r *Reader) Len() int { return len(r.data) }

func (r *Reader) Err() error { return r.err }

func (r *Reader) fail(err error) {
	r.err = err
	r.data = nil
}
