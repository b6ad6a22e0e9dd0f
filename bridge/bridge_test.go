package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"mbif/client"
	"mbif/core"
	"mbif/protocol"
	"mbif/sim"
	"mbif/storage"
)

func encode(t *testing.T, seq uint8, body func(*protocol.FrameBuffer)) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := newFrameWriter(&buf).write(seq, body); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func vlqBody(vals ...uint32) func(*protocol.FrameBuffer) {
	return func(b *protocol.FrameBuffer) {
		for _, v := range vals {
			protocol.PutVLQ(b, v)
		}
	}
}

func TestFrameReaderResync(t *testing.T) {
	good1 := encode(t, 1, vlqBody(7))
	good2 := encode(t, 2, vlqBody(8, 9))
	bad := append([]byte(nil), good1...)
	bad[3] ^= 0xFF // corrupt payload, CRC now wrong

	var stream []byte
	stream = append(stream, 0x00, 0x05, 0x33) // junk
	stream = append(stream, bad...)
	stream = append(stream, good1...)
	stream = append(stream, good2...)

	fr := newFrameReader(bytes.NewReader(stream))
	var seqs []uint8
	for {
		msg, err := fr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		seqs = append(seqs, msg.Sequence)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Errorf("sequences = %v, want [1 2]", seqs)
	}
	if fr.resyncs == 0 {
		t.Error("no resync counted")
	}
}

func TestFrameReaderSplitReads(t *testing.T) {
	frame := encode(t, 5, vlqBody(1, 2, 3))
	fr := newFrameReader(&oneByteReader{data: frame})
	msg, err := fr.next()
	if err != nil {
		t.Fatal(err)
	}
	r := protocol.NewReader(msg.Payload)
	for _, want := range []uint32{1, 2, 3} {
		if got := r.VLQ(); got != want || r.Err() != nil {
			t.Fatalf("field = %d, %v, want %d", got, r.Err(), want)
		}
	}
}

type oneByteReader struct {
	data []byte
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

type linkedSim struct {
	dev    *sim.Device
	client *Client
	server *Server
	cancel context.CancelFunc
	served chan error
}

func newLinkedSim(t *testing.T) *linkedSim {
	t.Helper()
	dev, err := sim.New(sim.Config{
		Geometry: storage.Geometry{Base: 0x10000, Size: 0x10000, SectorSize: 0x1000},
		BoardID:  0x9904,
		Monitor:  &core.StaticPowerMonitor{Source: core.PowerSourceUSB},
		USB:      core.USBConnected,
	})
	if err != nil {
		t.Fatal(err)
	}

	a, b := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	l := &linkedSim{
		dev:    dev,
		server: NewServer(a, dev.Bus, WithLine(dev.Line.Asserted)),
		client: NewClient(b, WithTimeout(2*time.Second)),
		cancel: cancel,
		served: make(chan error, 1),
	}
	go func() { l.served <- l.server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.served
		l.client.Close()
		dev.Close()
	})
	return l
}

func TestClientOverBridge(t *testing.T) {
	l := newLinkedSim(t)
	dev := client.New(l.client)

	v, err := dev.BoardVersion()
	if err != nil || v != 0x9904 {
		t.Fatalf("BoardVersion = %#x, %v", v, err)
	}

	data := bytes.Repeat([]byte{0xC3}, 1500)
	if err := dev.WriteData(0, data); err != nil {
		t.Fatal(err)
	}
	got, err := dev.ReadData(0, len(data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("data differs after bridge round trip")
	}
	if l.server.Stats().Frames == 0 {
		t.Error("server counted no frames")
	}
}

func TestBridgeNack(t *testing.T) {
	l := newLinkedSim(t)
	if err := l.client.Tx(0x42, []byte{1}, nil); !errors.Is(err, protocol.ErrNack) {
		t.Errorf("Tx(0x42) = %v, want ErrNack", err)
	}
	if err := l.client.Tx(uint16(protocol.AddrComms), make([]byte, protocol.DataLength+1), nil); err != ErrTooLong {
		t.Errorf("oversized = %v, want ErrTooLong", err)
	}
}

func TestBridgeLine(t *testing.T) {
	l := newLinkedSim(t)

	asserted, err := l.client.LineAsserted()
	if err != nil || asserted {
		t.Fatalf("LineAsserted = %v, %v", asserted, err)
	}
	l.dev.Bus.UserEvent(protocol.UserEventWakeFromResetButton)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.client.WaitLine(ctx, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	kind, err := client.New(l.client).ReadUserEvent()
	if err != nil || kind != protocol.UserEventWakeFromResetButton {
		t.Errorf("ReadUserEvent = %d, %v", kind, err)
	}
}

func TestUnknownMessage(t *testing.T) {
	l := newLinkedSim(t)
	_, err := l.client.request(vlqBody(99), protocol.MsgI2CTxResponse)
	if err != ErrUnsupported {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
	if l.server.Stats().Errors != 1 {
		t.Errorf("server errors = %d", l.server.Stats().Errors)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	l := newLinkedSim(t)
	l.cancel()
	select {
	case err := <-l.served:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v", err)
		}
		l.served <- err
	case <-time.After(time.Second):
		t.Fatal("Serve did not stop")
	}
	if err := l.client.Tx(uint16(protocol.AddrComms), []byte{0x10, 0x01}, nil); err == nil {
		t.Error("Tx succeeded on a closed link")
	}
}
