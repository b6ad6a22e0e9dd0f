// Package bridge carries I2C transactions over a serial link so a host
// tool can drive an interface chip, real or simulated, from a PC.
package bridge

import (
	"bytes"
	"io"

	"mbif/protocol"
)

// Message is one decoded bridge frame
type Message struct {
	Sequence uint8
	Payload  []byte
}

// frameReader splits a byte stream into frames. After a bad frame it
// drops input up to the next sync byte.
type frameReader struct {
	r       io.Reader
	buf     []byte
	chunk   []byte
	synced  bool
	err     error
	resyncs int
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{
		r:      r,
		buf:    make([]byte, 0, 2*protocol.FrameMax),
		chunk:  make([]byte, 256),
		synced: true,
	}
}

// next blocks until a whole frame is available or the reader fails
func (f *frameReader) next() (Message, error) {
	for {
		if msg, ok := f.parse(); ok {
			return msg, nil
		}
		if f.err != nil {
			return Message{}, f.err
		}
		n, err := f.r.Read(f.chunk)
		f.buf = append(f.buf, f.chunk[:n]...)
		f.err = err
	}
}

func (f *frameReader) parse() (Message, bool) {
	for len(f.buf) > 0 {
		if !f.synced {
			i := bytes.IndexByte(f.buf, protocol.FrameSync)
			if i < 0 {
				f.buf = f.buf[:0]
				return Message{}, false
			}
			f.consume(i + 1)
			f.synced = true
			continue
		}

		seq, payload, n, err := protocol.DecodeFrame(f.buf)
		switch err {
		case nil:
			msg := Message{Sequence: seq, Payload: append([]byte(nil), payload...)}
			f.consume(n)
			return msg, true
		case protocol.ErrFrameIncomplete:
			return Message{}, false
		default:
			f.synced = false
			f.resyncs++
		}
	}
	return Message{}, false
}

func (f *frameReader) consume(n int) {
	f.buf = append(f.buf[:0], f.buf[n:]...)
}

// frameWriter encodes frames into a reused buffer
type frameWriter struct {
	w   io.Writer
	buf protocol.FrameBuffer
}

func newFrameWriter(w io.Writer) *frameWriter {
	return &frameWriter{w: w}
}

func (f *frameWriter) write(seq uint8, body func(b *protocol.FrameBuffer)) error {
	f.buf.Reset()
	if err := protocol.EncodeFrame(&f.buf, seq, body); err != nil {
		return err
	}
	_, err := f.w.Write(f.buf.Bytes())
	return err
}
