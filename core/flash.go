package core

import (
	"mbif/protocol"
	"mbif/storage"
)

// FlashHandler serves the FLASH channel: data region access and the
// virtual file configuration, layered over a storage.Store
type FlashHandler struct {
	engine   *I2CEngine
	store    *storage.Store
	commands *CommandRegistry
	remount  bool
}

// NewFlashHandler registers a handler for the FLASH channel on e
func NewFlashHandler(e *I2CEngine, store *storage.Store) *FlashHandler {
	h := &FlashHandler{
		engine:   e,
		store:    store,
		commands: NewCommandRegistry(),
	}
	h.registerCommands()
	e.mustRegister(ChannelFlash, h)
	return h
}

func (h *FlashHandler) registerCommands() {
	r := h.commands
	r.Register(uint8(protocol.FlashCfgFileName), "cfg_file_name", h.handleFileName)
	r.Register(uint8(protocol.FlashCfgFileSize), "cfg_file_size", h.handleFileSize)
	r.Register(uint8(protocol.FlashCfgFileVisible), "cfg_file_visible", h.handleFileVisible)
	r.Register(uint8(protocol.FlashCfgWrite), "cfg_write", h.handleCfgWrite)
	r.Register(uint8(protocol.FlashCfgErase), "cfg_erase", h.handleCfgErase)
	r.Register(uint8(protocol.FlashStorageSize), "storage_size", h.handleStorageSize)
	r.Register(uint8(protocol.FlashSectorSize), "sector_size", h.handleSectorSize)
	r.Register(uint8(protocol.FlashRemountMSD), "remount_msd", h.handleRemount)
	r.Register(uint8(protocol.FlashCfgEncWindow), "cfg_enc_window", h.handleEncWindow)
	r.Register(uint8(protocol.FlashDataRead), "data_read", h.handleDataRead)
	r.Register(uint8(protocol.FlashDataWrite), "data_write", h.handleDataWrite)
	r.Register(uint8(protocol.FlashDataErase), "data_erase", h.handleDataErase)
}

// Commands exposes the sub-command registry
func (h *FlashHandler) Commands() *CommandRegistry {
	return h.commands
}

// Process builds the response to one request. Every request is
// answered; failures collapse to the single FlashError byte.
func (h *FlashHandler) Process(rx []byte) []byte {
	rsp, err := h.commands.Dispatch(rx)
	if err != nil {
		return flashError()
	}
	return rsp
}

func (h *FlashHandler) HandleWrite(rx []byte) {
	rsp := h.Process(rx)
	if rsp[0] == byte(protocol.FlashError) && len(rx) > 0 {
		DebugPrintln("[FLASH] cmd 0x" + hex8(rx[0]) + " failed")
	}
	h.engine.Respond(rsp)
}

func (h *FlashHandler) HandleRead(tx []byte) {
	h.engine.ReleaseInterrupt()
}

// TakeRemount reports and clears a pending remount request
func (h *FlashHandler) TakeRemount() bool {
	r := h.remount
	h.remount = false
	return r
}

func flashError() []byte {
	return []byte{byte(protocol.FlashError)}
}

func (h *FlashHandler) handleFileName(req []byte) []byte {
	switch len(req) {
	case protocol.FlashGetSize:
	case protocol.FileNameSetSize:
		if err := h.store.SetFilename(req[1:]); err != nil {
			return flashError()
		}
	default:
		return flashError()
	}
	cfg := h.store.Config()
	return append([]byte{req[0]}, cfg.Name[:]...)
}

func (h *FlashHandler) handleFileSize(req []byte) []byte {
	switch len(req) {
	case protocol.FlashGetSize:
	case protocol.FileSizeSetSize:
		if err := h.store.SetFileSize(protocol.BigEndian32(req[1:5])); err != nil {
			return flashError()
		}
	default:
		return flashError()
	}
	rsp := make([]byte, 5)
	rsp[0] = req[0]
	protocol.PutBigEndian32(rsp[1:], h.store.Config().FileSize)
	return rsp
}

func (h *FlashHandler) handleFileVisible(req []byte) []byte {
	switch len(req) {
	case protocol.FlashGetSize:
	case protocol.VisibleSetSize:
		h.store.SetFileVisible(req[1] != 0)
	default:
		return flashError()
	}
	return append([]byte{req[0]}, boolByte(h.store.Config().Visible)...)
}

func (h *FlashHandler) handleEncWindow(req []byte) []byte {
	switch len(req) {
	case protocol.FlashGetSize:
	case protocol.EncWindowSetSize:
		start := protocol.BigEndian32(req[1:5])
		end := protocol.BigEndian32(req[5:9])
		if err := h.store.SetEncodingWindow(start, end); err != nil {
			return flashError()
		}
	default:
		return flashError()
	}
	cfg := h.store.Config()
	rsp := make([]byte, 9)
	rsp[0] = req[0]
	protocol.PutBigEndian32(rsp[1:5], cfg.EncStart)
	protocol.PutBigEndian32(rsp[5:9], cfg.EncEnd)
	return rsp
}

func (h *FlashHandler) handleCfgWrite(req []byte) []byte {
	written, err := h.store.WriteConfig()
	if err != nil {
		DebugPrintln("[FLASH] config write: " + err.Error())
		return flashError()
	}
	if written {
		DebugPrintln("[FLASH] config persisted")
	}
	return []byte{req[0]}
}

func (h *FlashHandler) handleCfgErase(req []byte) []byte {
	if err := h.store.EraseConfig(); err != nil {
		DebugPrintln("[FLASH] config erase: " + err.Error())
		return flashError()
	}
	return []byte{req[0]}
}

func (h *FlashHandler) handleStorageSize(req []byte) []byte {
	kb := h.store.Geometry().DataSize() / 1024
	return []byte{req[0], byte(kb)}
}

func (h *FlashHandler) handleSectorSize(req []byte) []byte {
	sec := h.store.Geometry().SectorSize
	return []byte{req[0], byte(sec >> 8), byte(sec)}
}

func (h *FlashHandler) handleRemount(req []byte) []byte {
	h.remount = true
	return []byte{req[0]}
}

// handleDataWrite programs the payload and answers with the header
// followed by a readback of the written range
func (h *FlashHandler) handleDataWrite(req []byte) []byte {
	d, ok := protocol.DecodeFlashData(req)
	if !ok || uint64(len(req)) != uint64(d.Length)+protocol.FlashHeaderSize {
		return flashError()
	}
	payload := req[protocol.FlashHeaderSize:]
	if err := h.store.Write(d.Address, payload); err != nil {
		DebugPrintln("[FLASH] write 0x" + hex24(d.Address) + ": " + err.Error())
		return flashError()
	}
	return h.readBack(d)
}

// handleDataRead answers with the header followed by the requested range
func (h *FlashHandler) handleDataRead(req []byte) []byte {
	d, ok := protocol.DecodeFlashData(req)
	if !ok || d.Length > protocol.PayloadMax {
		return flashError()
	}
	return h.readBack(d)
}

func (h *FlashHandler) readBack(d protocol.FlashData) []byte {
	rsp := make([]byte, protocol.FlashHeaderSize+int(d.Length))
	copy(rsp, d.Header())
	if err := h.store.Read(d.Address, rsp[protocol.FlashHeaderSize:]); err != nil {
		return flashError()
	}
	return rsp
}

// handleDataErase erases whole sectors from start through end. The
// reply is the single command byte, or FlashError.
func (h *FlashHandler) handleDataErase(req []byte) []byte {
	e, ok := protocol.DecodeFlashErase(req)
	if !ok {
		return flashError()
	}
	if err := h.store.EraseRange(e.Start, e.End); err != nil {
		DebugPrintln("[FLASH] erase 0x" + hex24(e.Start) + "-0x" + hex24(e.End) + ": " + err.Error())
		return flashError()
	}
	return []byte{req[0]}
}
