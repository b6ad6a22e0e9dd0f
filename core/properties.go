package core

import "mbif/protocol"

// Property is one entry of the COMMS property table. A nil Read or Write
// makes that direction disallowed.
type Property struct {
	ID    protocol.PropertyID
	Name  string
	Size  int // Width of a write; reads report their own size
	Read  func() []byte
	Write func(v []byte) protocol.ErrorCode
}

// PropertyTable is the set of properties a CommsHandler serves
type PropertyTable struct {
	props map[protocol.PropertyID]*Property
}

func NewPropertyTable() *PropertyTable {
	return &PropertyTable{props: make(map[protocol.PropertyID]*Property)}
}

// Add installs p, replacing any property with the same ID
func (t *PropertyTable) Add(p *Property) {
	t.props[p.ID] = p
}

func (t *PropertyTable) Get(id protocol.PropertyID) (*Property, bool) {
	p, ok := t.props[id]
	return p, ok
}

// read answers a ReadRequest
func (t *PropertyTable) read(id protocol.PropertyID) []byte {
	p, ok := t.props[id]
	if !ok {
		return protocol.ErrorResponse(protocol.ErrUnknownProperty)
	}
	if p.Read == nil {
		return protocol.ErrorResponse(protocol.ErrReadDisallowed)
	}
	return protocol.ReadResponse(id, p.Read())
}

// write answers a WriteRequest
func (t *PropertyTable) write(id protocol.PropertyID, v []byte) []byte {
	p, ok := t.props[id]
	if !ok {
		return protocol.ErrorResponse(protocol.ErrUnknownProperty)
	}
	if p.Write == nil {
		return protocol.ErrorResponse(protocol.ErrWriteDisallowed)
	}
	if len(v) != p.Size {
		return protocol.ErrorResponse(protocol.ErrWrongPropertySize)
	}
	if code := p.Write(v); code != protocol.ErrSuccess {
		return protocol.ErrorResponse(code)
	}
	return protocol.WriteResponse(id)
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	protocol.PutUint16(b, v)
	return b
}

func boolByte(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// BoardProperties builds the standard property set over b
func BoardProperties(b *Board) *PropertyTable {
	t := NewPropertyTable()

	t.Add(&Property{
		ID:   protocol.PropBoardVersion,
		Name: "board_version",
		Read: func() []byte { return u16(b.ID) },
	})
	t.Add(&Property{
		ID:   protocol.PropI2CProtocolVersion,
		Name: "i2c_protocol_version",
		Read: func() []byte { return u16(protocol.I2CProtocolVersion) },
	})
	t.Add(&Property{
		ID:   protocol.PropDAPLinkVersion,
		Name: "daplink_version",
		Read: func() []byte { return u16(b.DAPLinkVersion) },
	})
	t.Add(&Property{
		ID:   protocol.PropPowerState,
		Name: "power_state",
		Read: func() []byte { return []byte{byte(b.Monitor.PowerSource())} },
	})
	t.Add(&Property{
		ID:   protocol.PropPowerConsumption,
		Name: "power_consumption",
		Read: func() []byte {
			v := make([]byte, 8)
			protocol.PutUint32(v[0:], b.Monitor.VBatMicrovolts())
			protocol.PutUint32(v[4:], b.Monitor.VInMicrovolts())
			return v
		},
	})
	t.Add(&Property{
		ID:   protocol.PropUSBEnumeration,
		Name: "usb_enumeration_state",
		Read: func() []byte { return []byte{byte(b.USB)} },
	})
	t.Add(&Property{
		ID:   protocol.PropPowerMode,
		Name: "power_mode",
		Size: 1,
		Write: func(v []byte) protocol.ErrorCode {
			switch m := PowerMode(v[0]); m {
			case PowerModeSleep, PowerModeDown:
				b.Mode = m
				return protocol.ErrSuccess
			}
			return protocol.ErrWriteFail
		},
	})
	t.Add(&Property{
		ID:   protocol.PropPowerLedSleepState,
		Name: "power_led_sleep_state",
		Size: 1,
		Read: func() []byte { return boolByte(b.LEDSleepOn) },
		Write: func(v []byte) protocol.ErrorCode {
			b.LEDSleepOn = v[0] != 0
			return protocol.ErrSuccess
		},
	})
	// Device initiated; see Task.PostUserEvent
	t.Add(&Property{
		ID:   protocol.PropUserEvent,
		Name: "user_event",
	})
	t.Add(&Property{
		ID:   protocol.PropAutomaticSleep,
		Name: "automatic_sleep",
		Size: 1,
		Read: func() []byte { return boolByte(b.AutomaticSleep) },
		Write: func(v []byte) protocol.ErrorCode {
			b.AutomaticSleep = v[0] != 0
			return protocol.ErrSuccess
		},
	})
	return t
}
