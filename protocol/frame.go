package protocol

import "errors"

// Bridge frame layout:
//
//	len(2, big endian) seq(1) payload crc16(2, big endian) sync(1)
//
// len counts the whole frame. The CRC covers len, seq and payload.
const (
	FrameHeaderSize  = 3
	FrameTrailerSize = 3
	FrameMin         = FrameHeaderSize + FrameTrailerSize
	FrameMax         = DataLength + 64
	FrameSync        = 0x7E
)

var (
	ErrFrameIncomplete = errors.New("frame incomplete")
	ErrFrameLength     = errors.New("frame length out of range")
	ErrFrameSync       = errors.New("frame missing trailing sync byte")
	ErrFrameCRC        = errors.New("frame CRC mismatch")
)

// EncodeFrame appends one frame to b. body writes the payload.
func EncodeFrame(b *FrameBuffer, seq uint8, body func(b *FrameBuffer)) error {
	start := b.Len()

	// Length is patched once the payload size is known
	b.Write([]byte{0, 0, seq})
	if body != nil {
		body(b)
	}

	total := b.Len() - start + FrameTrailerSize
	if b.Overflow() || total > FrameMax {
		return ErrFrameLength
	}
	frame := b.Bytes()[start:]
	frame[0] = byte(total >> 8)
	frame[1] = byte(total)

	crc := CRC16(frame)
	b.Write([]byte{byte(crc >> 8), byte(crc), FrameSync})
	if b.Overflow() {
		return ErrFrameLength
	}
	return nil
}

// FrameLength returns the total length announced by a frame header.
func FrameLength(header []byte) (int, error) {
	if len(header) < 2 {
		return 0, ErrFrameIncomplete
	}
	n := int(header[0])<<8 | int(header[1])
	if n < FrameMin || n > FrameMax {
		return 0, ErrFrameLength
	}
	return n, nil
}

// DecodeFrame validates the frame at the start of data and returns its
// sequence number, its payload (aliasing data) and the bytes consumed.
func DecodeFrame(data []byte) (seq uint8, payload []byte, n int, err error) {
	n, err = FrameLength(data)
	if err != nil {
		return 0, nil, 0, err
	}
	if len(data) < n {
		return 0, nil, 0, ErrFrameIncomplete
	}
	if data[n-1] != FrameSync {
		return 0, nil, 0, ErrFrameSync
	}
	want := uint16(data[n-3])<<8 | uint16(data[n-2])
	if CRC16(data[:n-FrameTrailerSize]) != want {
		return 0, nil, 0, ErrFrameCRC
	}
	return data[2], data[FrameHeaderSize : n-FrameTrailerSize], n, nil
}

// ErrNack reports an I2C transfer whose address was not acknowledged.
var ErrNack = errors.New("i2c: address not acknowledged")

// Bridge message IDs, the first VLQ of a frame payload
const (
	MsgUnknown       uint32 = 0 // unknown_message id=%u
	MsgI2CTx         uint32 = 1 // i2c_tx addr=%u write=%*s read_len=%u
	MsgI2CTxResponse uint32 = 2 // i2c_tx_response status=%u data=%*s
	MsgLine          uint32 = 3 // i2c_line
	MsgLineResponse  uint32 = 4 // i2c_line_response asserted=%c
)

// i2c_tx_response status values
const (
	TxStatusOK    uint32 = 0
	TxStatusNack  uint32 = 1
	TxStatusError uint32 = 2
)
