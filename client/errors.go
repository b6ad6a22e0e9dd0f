package client

import (
	"errors"
	"fmt"

	"mbif/protocol"
)

// ErrBusy is returned when the device kept answering with the busy
// sentinel for every retry.
var ErrBusy = errors.New("device busy")

// ProtocolError is an ErrorResponse returned on the COMMS channel.
type ProtocolError struct {
	Property protocol.PropertyID
	Code     protocol.ErrorCode
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("property 0x%02X: %s (0x%02X)", uint8(e.Property), e.Code, uint8(e.Code))
}

// FlashError is a failed FLASH channel command.
type FlashError struct {
	Cmd protocol.FlashCmdID
}

func (e *FlashError) Error() string {
	return fmt.Sprintf("flash command 0x%02X failed", uint8(e.Cmd))
}

// ResponseError is a response that does not match its request.
type ResponseError struct {
	Want []byte
	Got  []byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("unexpected response % x (want prefix % x)", e.Got, e.Want)
}
