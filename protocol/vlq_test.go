package protocol

import (
	"bytes"
	"testing"
)

func TestVLQEncoding(t *testing.T) {
	tests := []struct {
		v    uint32
		want []byte
	}{
		{0, []byte{0x00}},
		{0x7F, []byte{0x7F}},
		{0x80, []byte{0x81, 0x00}},
		{0x3FFF, []byte{0xFF, 0x7F}},
		{0x4000, []byte{0x81, 0x80, 0x00}},
		{0xFFFFFFFF, []byte{0x8F, 0xFF, 0xFF, 0xFF, 0x7F}},
	}
	for _, tt := range tests {
		var b FrameBuffer
		PutVLQ(&b, tt.v)
		if !bytes.Equal(b.Bytes(), tt.want) {
			t.Errorf("PutVLQ(%#x) = % X, want % X", tt.v, b.Bytes(), tt.want)
		}
		r := NewReader(b.Bytes())
		if got := r.VLQ(); got != tt.v || r.Err() != nil || r.Len() != 0 {
			t.Errorf("VLQ(% X) = %#x, %v, %d left", tt.want, got, r.Err(), r.Len())
		}
	}
}

func TestReaderFields(t *testing.T) {
	var b FrameBuffer
	PutVLQ(&b, 1)
	PutString(&b, []byte("hello"))
	PutString(&b, nil)
	PutVLQ(&b, 300)

	r := NewReader(b.Bytes())
	if r.VLQ() != 1 {
		t.Error("first field")
	}
	if s := r.String(); string(s) != "hello" {
		t.Errorf("String = %q", s)
	}
	if s := r.String(); len(s) != 0 {
		t.Errorf("empty String = %q", s)
	}
	if r.VLQ() != 300 || r.Err() != nil {
		t.Errorf("last field, err %v", r.Err())
	}
}

func TestReaderErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"unterminated", []byte{0x81}, ErrTruncated},
		{"leading zero group", []byte{0x80, 0x01}, ErrInvalidVLQ},
		{"too wide", []byte{0x9F, 0xFF, 0xFF, 0xFF, 0x7F}, ErrInvalidVLQ},
	}
	for _, tt := range tests {
		r := NewReader(tt.data)
		if v := r.VLQ(); v != 0 || r.Err() != tt.want {
			t.Errorf("%s: VLQ = %d, %v, want %v", tt.name, v, r.Err(), tt.want)
		}
		// Errors stick
		if r.VLQ() != 0 || r.Err() != tt.want {
			t.Errorf("%s: error did not stick", tt.name)
		}
	}

	r := NewReader([]byte{0x05, 'a', 'b'})
	if s := r.String(); s != nil || r.Err() != ErrTruncated {
		t.Errorf("short string = %q, %v", s, r.Err())
	}
}
