package client

import (
	"bytes"

	"mbif/protocol"
)

// flashCmd sends a FLASH channel request and checks the echoed command
// byte of an n byte response.
func (d *Device) flashCmd(req []byte, n int) ([]byte, error) {
	rsp, err := d.exchange(protocol.AddrFlash, req, n)
	if err != nil {
		return nil, err
	}
	cmd := protocol.FlashCmdID(req[0])
	if rsp[0] == byte(protocol.FlashError) {
		return nil, &FlashError{Cmd: cmd}
	}
	if rsp[0] != req[0] {
		return nil, &ResponseError{Want: req[:1], Got: rsp}
	}
	return rsp[:n], nil
}

// FileName reads the 8.3 name of the virtual file, padded to 11 bytes.
func (d *Device) FileName() (string, error) {
	rsp, err := d.flashCmd([]byte{byte(protocol.FlashCfgFileName)}, protocol.FileNameSetSize)
	if err != nil {
		return "", err
	}
	return string(rsp[1:]), nil
}

// SetFileName sets the virtual file name. name is the 11 byte padded
// form, e.g. "DATA    BIN". The device may coerce the extension; the
// stored name is returned.
func (d *Device) SetFileName(name string) (string, error) {
	if len(name) != protocol.FilenameSize {
		return "", &FlashError{Cmd: protocol.FlashCfgFileName}
	}
	req := append([]byte{byte(protocol.FlashCfgFileName)}, name...)
	rsp, err := d.flashCmd(req, protocol.FileNameSetSize)
	if err != nil {
		return "", err
	}
	return string(rsp[1:]), nil
}

// FileSize reads the virtual file size in bytes.
func (d *Device) FileSize() (uint32, error) {
	rsp, err := d.flashCmd([]byte{byte(protocol.FlashCfgFileSize)}, protocol.FileSizeSetSize)
	if err != nil {
		return 0, err
	}
	return protocol.BigEndian32(rsp[1:5]), nil
}

func (d *Device) SetFileSize(size uint32) error {
	req := make([]byte, protocol.FileSizeSetSize)
	req[0] = byte(protocol.FlashCfgFileSize)
	protocol.PutBigEndian32(req[1:], size)
	_, err := d.flashCmd(req, protocol.FileSizeSetSize)
	return err
}

// FileVisible reads whether the file shows on the USB drive.
func (d *Device) FileVisible() (bool, error) {
	rsp, err := d.flashCmd([]byte{byte(protocol.FlashCfgFileVisible)}, protocol.VisibleSetSize)
	if err != nil {
		return false, err
	}
	return rsp[1] != 0, nil
}

func (d *Device) SetFileVisible(visible bool) error {
	req := append([]byte{byte(protocol.FlashCfgFileVisible)}, boolValue(visible)...)
	_, err := d.flashCmd(req, protocol.VisibleSetSize)
	return err
}

// EncodingWindow reads the data range shown as hex text.
func (d *Device) EncodingWindow() (start, end uint32, err error) {
	rsp, err := d.flashCmd([]byte{byte(protocol.FlashCfgEncWindow)}, protocol.EncWindowSetSize)
	if err != nil {
		return 0, 0, err
	}
	return protocol.BigEndian32(rsp[1:5]), protocol.BigEndian32(rsp[5:9]), nil
}

func (d *Device) SetEncodingWindow(start, end uint32) error {
	req := make([]byte, protocol.EncWindowSetSize)
	req[0] = byte(protocol.FlashCfgEncWindow)
	protocol.PutBigEndian32(req[1:5], start)
	protocol.PutBigEndian32(req[5:9], end)
	_, err := d.flashCmd(req, protocol.EncWindowSetSize)
	return err
}

// WriteConfig persists the file configuration.
func (d *Device) WriteConfig() error {
	_, err := d.flashCmd([]byte{byte(protocol.FlashCfgWrite)}, 1)
	return err
}

// EraseConfig restores the default file configuration.
func (d *Device) EraseConfig() error {
	_, err := d.flashCmd([]byte{byte(protocol.FlashCfgErase)}, 1)
	return err
}

// StorageSize reads the data region size in bytes.
func (d *Device) StorageSize() (uint32, error) {
	rsp, err := d.flashCmd([]byte{byte(protocol.FlashStorageSize)}, 2)
	if err != nil {
		return 0, err
	}
	return uint32(rsp[1]) * 1024, nil
}

// SectorSize reads the erase granularity in bytes.
func (d *Device) SectorSize() (uint32, error) {
	rsp, err := d.flashCmd([]byte{byte(protocol.FlashSectorSize)}, 3)
	if err != nil {
		return 0, err
	}
	return uint32(rsp[1])<<8 | uint32(rsp[2]), nil
}

// Remount re-presents the USB drive so the host sees the new file.
func (d *Device) Remount() error {
	_, err := d.flashCmd([]byte{byte(protocol.FlashRemountMSD)}, 1)
	return err
}

// ReadData reads n bytes from a data region offset, in chunks of at most
// PayloadMax.
func (d *Device) ReadData(addr uint32, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		chunk := n - len(out)
		if chunk > protocol.PayloadMax {
			chunk = protocol.PayloadMax
		}
		hdr := protocol.FlashData{Cmd: protocol.FlashDataRead, Address: addr, Length: uint32(chunk)}.Header()
		rsp, err := d.flashCmd(hdr, protocol.FlashHeaderSize+chunk)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(rsp[:protocol.FlashHeaderSize], hdr) {
			return nil, &ResponseError{Want: hdr, Got: rsp[:protocol.FlashHeaderSize]}
		}
		out = append(out, rsp[protocol.FlashHeaderSize:]...)
		addr += uint32(chunk)
	}
	return out, nil
}

// WriteData programs data at a data region offset. The target range
// must be erased. Each chunk is verified against the readback the
// device returns.
func (d *Device) WriteData(addr uint32, data []byte) error {
	for len(data) > 0 {
		chunk := len(data)
		if chunk > protocol.PayloadMax {
			chunk = protocol.PayloadMax
		}
		hdr := protocol.FlashData{Cmd: protocol.FlashDataWrite, Address: addr, Length: uint32(chunk)}.Header()
		req := append(hdr, data[:chunk]...)
		rsp, err := d.flashCmd(req, len(req))
		if err != nil {
			return err
		}
		if !bytes.Equal(rsp, req) {
			return &ResponseError{Want: req, Got: rsp}
		}
		data = data[chunk:]
		addr += uint32(chunk)
	}
	return nil
}

// EraseData erases every sector from start through end. Both are sector
// aligned data region offsets; the sector at end is erased too.
func (d *Device) EraseData(start, end uint32) error {
	_, err := d.flashCmd(protocol.FlashErase{Start: start, End: end}.Encode(), 1)
	return err
}
