package serial

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// NativePort wraps the tarm/serial implementation. A read that times out
// without data is retried, so the port reads like a blocking stream.
type NativePort struct {
	port   *serial.Port
	cfg    *Config
	closed chan struct{}
}

// Open opens a native serial port
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	serialConfig := &serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	}

	port, err := serial.OpenPort(serialConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	return &NativePort{
		port:   port,
		cfg:    cfg,
		closed: make(chan struct{}),
	}, nil
}

// Read reads data from the serial port
func (p *NativePort) Read(b []byte) (int, error) {
	for {
		n, err := p.port.Read(b)
		// tarm/serial reports a timeout as io.EOF with no data
		if n > 0 || p.cfg.ReadTimeout == 0 || err != io.EOF {
			return n, err
		}
		select {
		case <-p.closed:
			return 0, err
		default:
		}
	}
}

// Write writes data to the serial port
func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// Close closes the serial port
func (p *NativePort) Close() error {
	select {
	case <-p.closed:
		return nil
	default:
		close(p.closed)
	}
	return p.port.Close()
}

// Flush discards buffered input
func (p *NativePort) Flush() error {
	return p.port.Flush()
}
