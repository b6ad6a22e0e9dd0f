package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"mbif/protocol"
)

var (
	ErrTimeout     = errors.New("bridge: response timeout")
	ErrClosed      = errors.New("bridge: connection closed")
	ErrTooLong     = errors.New("bridge: transfer exceeds buffer size")
	ErrRemote      = errors.New("bridge: transfer failed on the remote bus")
	ErrUnsupported = errors.New("bridge: message not supported by server")
)

var _ drivers.I2C = (*Client)(nil)

// Client forwards I2C transactions to a bridge Server. It implements
// drivers.I2C.
type Client struct {
	rw      io.ReadWriter
	fw      *frameWriter
	timeout time.Duration

	mu  sync.Mutex // one request in flight
	seq uint8

	frames chan Message
	done   chan struct{}
	err    error // set before done is closed
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithTimeout bounds the wait for each response
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient starts reading responses from rw
func NewClient(rw io.ReadWriter, opts ...ClientOption) *Client {
	c := &Client{
		rw:      rw,
		fw:      newFrameWriter(rw),
		timeout: time.Second,
		frames:  make(chan Message, 16),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	fr := newFrameReader(c.rw)
	for {
		msg, err := fr.next()
		if err != nil {
			c.err = err
			close(c.done)
			return
		}
		select {
		case c.frames <- msg:
		default:
			// Nobody is waiting; drop the oldest
			select {
			case <-c.frames:
			default:
			}
			c.frames <- msg
		}
	}
}

// request sends one message and waits for the response carrying the
// same sequence number
func (c *Client) request(body func(b *protocol.FrameBuffer), want uint32) (*protocol.Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return nil, c.closedErr()
	default:
	}

	seq := c.seq
	c.seq++
	if err := c.fw.write(seq, body); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	for {
		select {
		case msg := <-c.frames:
			if msg.Sequence != seq {
				continue
			}
			r := protocol.NewReader(msg.Payload)
			id := r.VLQ()
			if err := r.Err(); err != nil {
				return nil, err
			}
			if id == protocol.MsgUnknown {
				return nil, ErrUnsupported
			}
			if id != want {
				return nil, fmt.Errorf("bridge: got message %d, want %d", id, want)
			}
			return r, nil
		case <-timer.C:
			return nil, ErrTimeout
		case <-c.done:
			return nil, c.closedErr()
		}
	}
}

func (c *Client) closedErr() error {
	if c.err == nil || errors.Is(c.err, io.EOF) {
		return ErrClosed
	}
	return fmt.Errorf("%w: %v", ErrClosed, c.err)
}

// Tx runs a write then read transaction on the remote bus
func (c *Client) Tx(addr uint16, w, r []byte) error {
	if len(w) > protocol.DataLength || len(r) > protocol.DataLength {
		return ErrTooLong
	}
	rsp, err := c.request(func(b *protocol.FrameBuffer) {
		protocol.PutVLQ(b, protocol.MsgI2CTx)
		protocol.PutVLQ(b, uint32(addr))
		protocol.PutString(b, w)
		protocol.PutVLQ(b, uint32(len(r)))
	}, protocol.MsgI2CTxResponse)
	if err != nil {
		return err
	}

	status := rsp.VLQ()
	data := rsp.String()
	if err := rsp.Err(); err != nil {
		return err
	}
	switch status {
	case protocol.TxStatusOK:
		n := copy(r, data)
		clear(r[n:])
		return nil
	case protocol.TxStatusNack:
		return protocol.ErrNack
	}
	return ErrRemote
}

// LineAsserted reports the interface chip's interrupt line
func (c *Client) LineAsserted() (bool, error) {
	rsp, err := c.request(func(b *protocol.FrameBuffer) {
		protocol.PutVLQ(b, protocol.MsgLine)
	}, protocol.MsgLineResponse)
	if err != nil {
		return false, err
	}
	asserted := rsp.VLQ()
	return asserted != 0, rsp.Err()
}

// WaitLine polls the interrupt line until it is asserted or ctx is done
func (c *Client) WaitLine(ctx context.Context, poll time.Duration) error {
	for {
		asserted, err := c.LineAsserted()
		if err != nil {
			return err
		}
		if asserted {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Close closes the underlying stream when it is an io.Closer
func (c *Client) Close() error {
	if cl, ok := c.rw.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
