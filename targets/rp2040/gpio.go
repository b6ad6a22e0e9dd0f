//go:build rp2040

package main

import (
	"errors"
	"machine"

	"mbif/core"
)

const (
	// Combined interrupt to the target MCU, open drain style, active low
	combinedIntPin core.GPIOPin = 22
	// Reset/wake button, active low
	wakeButtonPin core.GPIOPin = 21
	// Power LED
	powerLEDPin core.GPIOPin = 25

	maxGPIO = 29
)

var errPinNotConfigured = errors.New("pin not configured")

// RPGPIODriver implements core.GPIODriver on RP2040 GPIO0-GPIO29
type RPGPIODriver struct {
	pins map[core.GPIOPin]machine.Pin
}

func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{pins: make(map[core.GPIOPin]machine.Pin)}
}

func (d *RPGPIODriver) configure(pin core.GPIOPin, mode machine.PinMode) error {
	if pin > maxGPIO {
		return errors.New("no such GPIO")
	}
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: mode})
	d.pins[pin] = p
	return nil
}

func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinOutput)
}

func (d *RPGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinInputPullup)
}

func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	p, ok := d.pins[pin]
	if !ok {
		return errPinNotConfigured
	}
	p.Set(value)
	return nil
}

func (d *RPGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	p, ok := d.pins[pin]
	if !ok {
		return false, errPinNotConfigured
	}
	return p.Get(), nil
}
