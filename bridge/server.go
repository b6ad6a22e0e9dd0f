package bridge

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"

	"tinygo.org/x/drivers"

	"mbif/protocol"
)

// ServerStats counts bridge traffic
type ServerStats struct {
	Frames  int
	Resyncs int
	Errors  int // Malformed or unknown requests
}

// Server answers bridge requests by running them on an I2C bus
type Server struct {
	rw   io.ReadWriter
	bus  drivers.I2C
	line func() bool
	log  *log.Logger

	mu    sync.Mutex
	stats ServerStats
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithLine reports the interface chip's interrupt line to clients
func WithLine(asserted func() bool) ServerOption {
	return func(s *Server) {
		s.line = asserted
	}
}

// WithLogger logs malformed requests and bus failures
func WithLogger(l *log.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

func NewServer(rw io.ReadWriter, bus drivers.I2C, opts ...ServerOption) *Server {
	s := &Server{rw: rw, bus: bus}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns a snapshot of the traffic counters
func (s *Server) Stats() ServerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

// Serve handles requests until the stream ends or ctx is done. When the
// stream is an io.Closer it is closed on cancellation to unblock reads.
func (s *Server) Serve(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	if c, ok := s.rw.(io.Closer); ok {
		go func() {
			select {
			case <-ctx.Done():
				c.Close()
			case <-stop:
			}
		}()
	}

	fr := newFrameReader(s.rw)
	fw := newFrameWriter(s.rw)
	for {
		msg, err := fr.next()
		s.mu.Lock()
		s.stats.Resyncs = fr.resyncs
		s.mu.Unlock()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := s.handle(fw, msg); err != nil {
			return err
		}
	}
}

func (s *Server) handle(fw *frameWriter, msg Message) error {
	s.mu.Lock()
	s.stats.Frames++
	s.mu.Unlock()

	r := protocol.NewReader(msg.Payload)
	id := r.VLQ()
	if err := r.Err(); err != nil {
		s.countError()
		s.logf("bridge: seq %d: %v", msg.Sequence, err)
		return nil
	}

	switch id {
	case protocol.MsgI2CTx:
		status, data := s.transfer(msg.Sequence, r)
		return fw.write(msg.Sequence, func(b *protocol.FrameBuffer) {
			protocol.PutVLQ(b, protocol.MsgI2CTxResponse)
			protocol.PutVLQ(b, status)
			protocol.PutString(b, data)
		})

	case protocol.MsgLine:
		var asserted uint32
		if s.line != nil && s.line() {
			asserted = 1
		}
		return fw.write(msg.Sequence, func(b *protocol.FrameBuffer) {
			protocol.PutVLQ(b, protocol.MsgLineResponse)
			protocol.PutVLQ(b, asserted)
		})
	}

	s.countError()
	s.logf("bridge: unknown message %d", id)
	return fw.write(msg.Sequence, func(b *protocol.FrameBuffer) {
		protocol.PutVLQ(b, protocol.MsgUnknown)
		protocol.PutVLQ(b, id)
	})
}

// transfer decodes and runs one i2c_tx request
func (s *Server) transfer(seq uint8, req *protocol.Reader) (uint32, []byte) {
	addr := req.VLQ()
	w := req.String()
	readLen := req.VLQ()
	if req.Err() != nil || addr > 0x7F || len(w) > protocol.DataLength || readLen > protocol.DataLength {
		s.countError()
		return protocol.TxStatusError, nil
	}

	r := make([]byte, readLen)
	if err := s.bus.Tx(uint16(addr), w, r); err != nil {
		if errors.Is(err, protocol.ErrNack) {
			return protocol.TxStatusNack, nil
		}
		s.logf("bridge: seq %d: tx 0x%02x: %v", seq, addr, err)
		return protocol.TxStatusError, nil
	}
	return protocol.TxStatusOK, r
}

func (s *Server) countError() {
	s.mu.Lock()
	s.stats.Errors++
	s.mu.Unlock()
}
