package core

import "mbif/protocol"

// Channel is the logical endpoint selected by the matched slave address.
type Channel uint8

const (
	ChannelNone Channel = iota
	ChannelComms
	ChannelHID
	ChannelFlash

	channelCount
)

// ChannelForAddress maps a 7-bit address to its channel.
func ChannelForAddress(addr uint8) Channel {
	switch addr {
	case protocol.AddrComms:
		return ChannelComms
	case protocol.AddrHID:
		return ChannelHID
	case protocol.AddrFlash:
		return ChannelFlash
	}
	return ChannelNone
}

func (c Channel) String() string {
	switch c {
	case ChannelComms:
		return "comms"
	case ChannelHID:
		return "hid"
	case ChannelFlash:
		return "flash"
	}
	return "none"
}

// I2CHandler is the command set behind one channel. Both methods run in
// task context from I2CEngine.Drain, never from the interrupt.
type I2CHandler interface {
	// HandleWrite receives the bytes the host wrote. The slice is only
	// valid for the duration of the call.
	HandleWrite(rx []byte)

	// HandleRead is told that the host consumed a response. tx holds its
	// leading bytes as transmitted, at most one COMMS record.
	HandleRead(tx []byte)
}

// InterruptLine is the combined sensor interrupt used to tell the host a
// response is ready.
type InterruptLine interface {
	Assert()
	Release()
}

type nopLine struct{}

func (nopLine) Assert()  {}
func (nopLine) Release() {}
