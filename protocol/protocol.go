// Package protocol implements the wire formats spoken over the interface
// chip's I2C slave addresses and over the serial I2C bridge.
package protocol

// Version represents the mbif firmware version
const Version = "0.3.0"

// 7-bit I2C slave addresses
const (
	AddrComms uint8 = 0x70
	AddrHID   uint8 = 0x71
	AddrFlash uint8 = 0x72
)

// I2CProtocolVersion is reported by the I2CProtocolVersion property
const I2CProtocolVersion uint16 = 0x02

// Buffer sizing
const (
	PayloadMax  = 1024                // Largest flash data payload
	DataLength  = PayloadMax + 8      // RX/TX buffer capacity
	PropertyMax = 8                   // Largest property value
	CommandSize = 1 + 2 + PropertyMax // Full COMMS record: cmdId + largest union member
)

// CmdID selects the layout of a COMMS record.
type CmdID uint8

const (
	CmdNop           CmdID = 0x00
	CmdReadRequest   CmdID = 0x10
	CmdReadResponse  CmdID = 0x11
	CmdWriteRequest  CmdID = 0x12
	CmdWriteResponse CmdID = 0x13
	CmdErrorResponse CmdID = 0x20
)

// PropertyID identifies a device property on the COMMS channel.
type PropertyID uint8

const (
	PropBoardVersion       PropertyID = 0x01
	PropI2CProtocolVersion PropertyID = 0x02
	PropDAPLinkVersion     PropertyID = 0x03
	PropPowerState         PropertyID = 0x04
	PropPowerConsumption   PropertyID = 0x05
	PropUSBEnumeration     PropertyID = 0x06
	PropPowerMode          PropertyID = 0x07
	PropPowerLedSleepState PropertyID = 0x08
	PropUserEvent          PropertyID = 0x09
	PropAutomaticSleep     PropertyID = 0x0A
)

// UserEvent values carried by the UserEvent property
const (
	UserEventWakeFromResetButton  uint8 = 0x01
	UserEventWakeFromWakeOnEdge   uint8 = 0x02
	UserEventResetButtonLongPress uint8 = 0x03
)

// ErrorCode is carried by an ErrorResponse record.
type ErrorCode uint8

const (
	ErrSuccess           ErrorCode = 0x30
	ErrIncompleteCommand ErrorCode = 0x31
	ErrUnknownCommand    ErrorCode = 0x32
	ErrCommandDisallowed ErrorCode = 0x33
	ErrUnknownProperty   ErrorCode = 0x34
	ErrWrongPropertySize ErrorCode = 0x35
	ErrReadDisallowed    ErrorCode = 0x36
	ErrWriteDisallowed   ErrorCode = 0x37
	ErrWriteFail         ErrorCode = 0x38
	ErrBusy              ErrorCode = 0x39
)

// BusySentinel is what a host reads while no response is ready.
var BusySentinel = [2]byte{byte(CmdErrorResponse), byte(ErrBusy)}

func (c ErrorCode) String() string {
	switch c {
	case ErrSuccess:
		return "success"
	case ErrIncompleteCommand:
		return "incomplete command"
	case ErrUnknownCommand:
		return "unknown command"
	case ErrCommandDisallowed:
		return "command disallowed"
	case ErrUnknownProperty:
		return "unknown property"
	case ErrWrongPropertySize:
		return "wrong property size"
	case ErrReadDisallowed:
		return "read disallowed"
	case ErrWriteDisallowed:
		return "write disallowed"
	case ErrWriteFail:
		return "write fail"
	case ErrBusy:
		return "busy"
	}
	return "error 0x" + hex8(uint8(c))
}

func hex8(v uint8) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[v>>4], digits[v&0x0F]})
}
