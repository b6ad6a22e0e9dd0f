package protocol

// FrameBuffer accumulates one outgoing bridge frame in a fixed array.
// Writes past the capacity are dropped and remembered as an overflow.
type FrameBuffer struct {
	buf      [FrameMax]byte
	n        int
	overflow bool
}

// Write appends p. It never fails; check Overflow after building a frame.
func (b *FrameBuffer) Write(p []byte) (int, error) {
	n := copy(b.buf[b.n:], p)
	b.n += n
	if n < len(p) {
		b.overflow = true
	}
	return len(p), nil
}

func (b *FrameBuffer) WriteByte(c byte) error {
	if b.n == len(b.buf) {
		b.overflow = true
		return nil
	}
	b.buf[b.n] = c
	b.n++
	return nil
}

func (b *FrameBuffer) Len() int       { return b.n }
func (b *FrameBuffer) Bytes() []byte  { return b.buf[:b.n] }
func (b *FrameBuffer) Overflow() bool { return b.overflow }

// Reset empties the buffer for the next frame
func (b *FrameBuffer) Reset() {
	b.n = 0
	b.overflow = false
}
