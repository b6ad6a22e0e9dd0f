//go:build rp2040

package main

import (
	"machine"

	"mbif/core"
	"mbif/protocol"
)

// I2C target pins. Both controllers sit on the same physical bus, one per
// address, since the RP2040 controller matches a single address.
const (
	i2cFrequency = 400 * machine.KHz
	sdaComms     = machine.GPIO4
	sclComms     = machine.GPIO5
	sdaFlash     = machine.GPIO6
	sclFlash     = machine.GPIO7
)

// RPI2CTarget feeds one machine.I2C controller in target mode into the
// shared engine.
type RPI2CTarget struct {
	bus    *machine.I2C
	addr   uint8
	engine *core.I2CEngine
	buf    [protocol.DataLength]byte
}

// NewRPI2CTarget configures bus as a target listening on addr
func NewRPI2CTarget(bus *machine.I2C, sda, scl machine.Pin, addr uint8, engine *core.I2CEngine) (*RPI2CTarget, error) {
	err := bus.Configure(machine.I2CConfig{
		Frequency: i2cFrequency,
		SDA:       sda,
		SCL:       scl,
		Mode:      machine.I2CModeTarget,
	})
	if err != nil {
		return nil, err
	}
	if err := bus.Listen(uint16(addr)); err != nil {
		return nil, err
	}
	return &RPI2CTarget{bus: bus, addr: addr, engine: engine}, nil
}

// Serve handles transfers forever. Each event is handed to the engine as
// one whole transfer, so the targets sharing the engine cannot interleave.
func (t *RPI2CTarget) Serve() {
	for {
		evt, n, err := t.bus.WaitForEvent(t.buf[:])
		if err != nil {
			t.engine.Fault()
			continue
		}

		switch evt {
		case machine.I2CReceive:
			t.engine.Receive(t.addr<<1, t.buf[:n])

		case machine.I2CRequest:
			t.engine.Transmit(t.addr<<1|1, t.reply)

		case machine.I2CFinish:
		}
	}
}

func (t *RPI2CTarget) reply(tx []byte) (int, error) {
	if err := t.bus.Reply(tx); err != nil {
		return 0, err
	}
	return len(tx), nil
}
