package core

import "mbif/protocol"

// CommsHandler serves property reads and writes on the COMMS channel
type CommsHandler struct {
	engine *I2CEngine
	board  *Board
	props  *PropertyTable
}

// NewCommsHandler registers a handler for the COMMS channel on e
func NewCommsHandler(e *I2CEngine, b *Board, props *PropertyTable) *CommsHandler {
	if props == nil {
		props = BoardProperties(b)
	}
	h := &CommsHandler{engine: e, board: b, props: props}
	e.mustRegister(ChannelComms, h)
	return h
}

// Process builds the response to one request. ok is false for a NOP,
// which is never answered.
func (h *CommsHandler) Process(rx []byte) (rsp []byte, ok bool) {
	if len(rx) == 0 || protocol.CmdID(rx[0]) == protocol.CmdNop {
		return nil, false
	}

	switch id := protocol.CmdID(rx[0]); id {
	case protocol.CmdReadRequest, protocol.CmdWriteRequest:
		cmd, err := protocol.DecodeCommand(rx)
		switch err {
		case nil:
		case protocol.ErrPropertySize:
			return protocol.ErrorResponse(protocol.ErrWrongPropertySize), true
		default:
			return protocol.ErrorResponse(protocol.ErrIncompleteCommand), true
		}
		if id == protocol.CmdReadRequest {
			return h.props.read(cmd.Property), true
		}
		return h.props.write(cmd.Property, cmd.Value()), true

	case protocol.CmdReadResponse, protocol.CmdWriteResponse, protocol.CmdErrorResponse:
		return protocol.ErrorResponse(protocol.ErrCommandDisallowed), true
	}
	return protocol.ErrorResponse(protocol.ErrUnknownCommand), true
}

func (h *CommsHandler) HandleWrite(rx []byte) {
	rsp, ok := h.Process(rx)
	if !ok {
		return
	}
	if rsp[0] == byte(protocol.CmdErrorResponse) {
		DebugPrintln("[COMMS] cmd 0x" + hex8(rx[0]) + ": " + protocol.ErrorCode(rsp[1]).String())
	}
	h.engine.Respond(rsp)
}

// HandleRead runs once the host has read a response. Reading the
// acknowledgement of a PowerMode write starts the shutdown.
func (h *CommsHandler) HandleRead(tx []byte) {
	if len(tx) >= 2 &&
		protocol.CmdID(tx[0]) == protocol.CmdWriteResponse &&
		protocol.PropertyID(tx[1]) == protocol.PropPowerMode {
		h.board.RequestShutdown()
		DebugPrintln("[COMMS] shutdown requested, mode " + h.board.Mode.String())
	}
	h.engine.ReleaseInterrupt()
}
