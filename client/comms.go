package client

import (
	"mbif/protocol"
)

// ReadProperty reads one property value.
func (d *Device) ReadProperty(prop protocol.PropertyID) ([]byte, error) {
	rsp, err := d.exchange(protocol.AddrComms, protocol.ReadRequest(prop), protocol.CommandSize)
	if err != nil {
		return nil, err
	}
	cmd, err := decodeComms(prop, rsp)
	if err != nil {
		return nil, err
	}
	if cmd.ID != protocol.CmdReadResponse || cmd.Property != prop {
		return nil, &ResponseError{Want: []byte{byte(protocol.CmdReadResponse), byte(prop)}, Got: rsp}
	}
	return append([]byte(nil), cmd.Value()...), nil
}

// WriteProperty writes one property value.
func (d *Device) WriteProperty(prop protocol.PropertyID, value []byte) error {
	rsp, err := d.exchange(protocol.AddrComms, protocol.WriteRequest(prop, value), protocol.CommandSize)
	if err != nil {
		return err
	}
	cmd, err := decodeComms(prop, rsp)
	if err != nil {
		return err
	}
	if cmd.ID != protocol.CmdWriteResponse || cmd.Property != prop {
		return &ResponseError{Want: []byte{byte(protocol.CmdWriteResponse), byte(prop)}, Got: rsp}
	}
	return nil
}

func decodeComms(prop protocol.PropertyID, rsp []byte) (protocol.Command, error) {
	cmd, err := protocol.DecodeCommand(rsp)
	if err != nil {
		return cmd, err
	}
	if cmd.ID == protocol.CmdErrorResponse {
		return cmd, &ProtocolError{Property: prop, Code: cmd.Error}
	}
	return cmd, nil
}

func (d *Device) readSized(prop protocol.PropertyID, n int) ([]byte, error) {
	v, err := d.ReadProperty(prop)
	if err != nil {
		return nil, err
	}
	if len(v) != n {
		return nil, &ProtocolError{Property: prop, Code: protocol.ErrWrongPropertySize}
	}
	return v, nil
}

// BoardVersion reads the board ID, e.g. 0x9904.
func (d *Device) BoardVersion() (uint16, error) {
	v, err := d.readSized(protocol.PropBoardVersion, 2)
	if err != nil {
		return 0, err
	}
	return protocol.Uint16(v), nil
}

// ProtocolVersion reads the I2C protocol version.
func (d *Device) ProtocolVersion() (uint16, error) {
	v, err := d.readSized(protocol.PropI2CProtocolVersion, 2)
	if err != nil {
		return 0, err
	}
	return protocol.Uint16(v), nil
}

// DAPLinkVersion reads the interface firmware version.
func (d *Device) DAPLinkVersion() (uint16, error) {
	v, err := d.readSized(protocol.PropDAPLinkVersion, 2)
	if err != nil {
		return 0, err
	}
	return protocol.Uint16(v), nil
}

// PowerState reads the power source bitmap: 1 USB, 2 battery.
func (d *Device) PowerState() (uint8, error) {
	v, err := d.readSized(protocol.PropPowerState, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// PowerConsumption reads the battery and input voltages in microvolts.
func (d *Device) PowerConsumption() (vbat, vin uint32, err error) {
	v, err := d.readSized(protocol.PropPowerConsumption, 8)
	if err != nil {
		return 0, 0, err
	}
	return protocol.Uint32(v[0:4]), protocol.Uint32(v[4:8]), nil
}

// USBState reads the USB enumeration state.
func (d *Device) USBState() (uint8, error) {
	v, err := d.readSized(protocol.PropUSBEnumeration, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// SetPowerMode asks the interface chip to enter a low power mode once
// the acknowledgement has been read.
func (d *Device) SetPowerMode(mode uint8) error {
	return d.WriteProperty(protocol.PropPowerMode, []byte{mode})
}

func (d *Device) readBool(prop protocol.PropertyID) (bool, error) {
	v, err := d.readSized(prop, 1)
	if err != nil {
		return false, err
	}
	return v[0] != 0, nil
}

func boolValue(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}

// LEDSleepState reads whether the power LED stays lit during sleep.
func (d *Device) LEDSleepState() (bool, error) {
	return d.readBool(protocol.PropPowerLedSleepState)
}

func (d *Device) SetLEDSleepState(on bool) error {
	return d.WriteProperty(protocol.PropPowerLedSleepState, boolValue(on))
}

// AutomaticSleep reads whether the chip sleeps on its own when idle.
func (d *Device) AutomaticSleep() (bool, error) {
	return d.readBool(protocol.PropAutomaticSleep)
}

func (d *Device) SetAutomaticSleep(on bool) error {
	return d.WriteProperty(protocol.PropAutomaticSleep, boolValue(on))
}

// ReadUserEvent collects a device initiated UserEvent after the
// interrupt line was asserted without a pending request.
func (d *Device) ReadUserEvent() (uint8, error) {
	rsp, err := d.read(protocol.AddrComms, protocol.CommandSize)
	if err != nil {
		return 0, err
	}
	cmd, err := decodeComms(protocol.PropUserEvent, rsp)
	if err != nil {
		return 0, err
	}
	if cmd.ID != protocol.CmdReadResponse || cmd.Property != protocol.PropUserEvent || cmd.Size != 1 {
		return 0, &ResponseError{Want: []byte{byte(protocol.CmdReadResponse), byte(protocol.PropUserEvent), 1}, Got: rsp}
	}
	return cmd.Data[0], nil
}
