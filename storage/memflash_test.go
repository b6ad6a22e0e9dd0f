package storage

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestMemFlashProgramANDs(t *testing.T) {
	m := NewMemFlash(testGeometry)
	base := testGeometry.Base

	if err := m.Program(base, []byte{0xF0}); err != nil {
		t.Fatal(err)
	}
	if err := m.Program(base, []byte{0x3C}); err != nil {
		t.Fatal(err)
	}
	if got := m.Bytes()[0]; got != 0x30 {
		t.Errorf("byte = %#x, want 0x30", got)
	}

	if err := m.EraseSector(base); err != nil {
		t.Fatal(err)
	}
	if got := m.Bytes()[0]; got != 0xFF {
		t.Errorf("after erase = %#x, want 0xff", got)
	}
	if m.Erases != 1 || m.Programs != 2 {
		t.Errorf("counters erases=%d programs=%d", m.Erases, m.Programs)
	}
}

func TestMemFlashStrict(t *testing.T) {
	m := NewMemFlash(testGeometry)
	m.Strict = true
	if err := m.Program(testGeometry.Base, []byte{0x00}); err != nil {
		t.Fatal(err)
	}
	if err := m.Program(testGeometry.Base, []byte{0x00}); !errors.Is(err, ErrNotErased) {
		t.Errorf("reprogram err = %v, want ErrNotErased", err)
	}
}

func TestMemFlashBoundsAndAlignment(t *testing.T) {
	m := NewMemFlash(testGeometry)

	if err := m.ReadAt(make([]byte, 1), testGeometry.Base-1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("read below base = %v", err)
	}
	if err := m.EraseSector(testGeometry.Base + 1); !errors.Is(err, ErrUnaligned) {
		t.Errorf("unaligned erase = %v", err)
	}

	m.SetProgramAlign(4)
	if err := m.Program(testGeometry.Base, []byte{1, 2}); !errors.Is(err, ErrUnaligned) {
		t.Errorf("short program = %v, want ErrUnaligned", err)
	}
	if err := m.Program(testGeometry.Base+4, []byte{1, 2, 3, 4}); err != nil {
		t.Errorf("aligned program = %v", err)
	}
}

func TestMemFlashHexRoundTrip(t *testing.T) {
	m := NewMemFlash(testGeometry)
	payload := []byte("hello flash")
	addr := testGeometry.DataStart() + 0x20
	if err := m.Program(addr, payload); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := m.DumpHex(&buf); err != nil {
		t.Fatalf("DumpHex: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(buf.String()), ":00000001FF") {
		t.Errorf("missing EOF record:\n%s", buf.String())
	}

	other := NewMemFlash(testGeometry)
	if err := other.LoadHex(&buf); err != nil {
		t.Fatalf("LoadHex: %v", err)
	}
	if !bytes.Equal(other.Bytes(), m.Bytes()) {
		t.Error("reloaded image differs")
	}
	if other.Programs != 0 {
		t.Error("LoadHex counted as a program")
	}
}

func TestMemFlashLoadHexOutsideRegion(t *testing.T) {
	m := NewMemFlash(testGeometry)
	// One data byte at address 0x0000, below the region base
	img := ":0100000055AA\n:00000001FF\n"
	if err := m.LoadHex(strings.NewReader(img)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("LoadHex = %v, want ErrOutOfRange", err)
	}
}
