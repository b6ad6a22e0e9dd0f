//go:build rp2040

package main

import (
	"errors"
	"machine"

	"mbif/core"
)

var errADCChannel = errors.New("unsupported ADC channel")

var adcPins = [...]machine.Pin{machine.ADC0, machine.ADC1, machine.ADC2, machine.ADC3}

// RPADCDriver implements core.ADCDriver on the four external RP2040
// channels. Only the main task samples, so no locking is needed.
type RPADCDriver struct {
	channels [len(adcPins)]*machine.ADC
}

// NewRPADCDriver powers up the converter
func NewRPADCDriver() *RPADCDriver {
	machine.InitADC()
	return &RPADCDriver{}
}

func (d *RPADCDriver) ConfigureChannel(ch core.ADCChannelID) error {
	if int(ch) >= len(adcPins) {
		return errADCChannel
	}
	if d.channels[ch] != nil {
		return nil
	}
	adc := &machine.ADC{Pin: adcPins[ch]}
	if err := adc.Configure(machine.ADCConfig{}); err != nil {
		return err
	}
	d.channels[ch] = adc
	return nil
}

// ReadRaw samples ch. machine.ADC.Get already scales to 16 bits.
func (d *RPADCDriver) ReadRaw(ch core.ADCChannelID) (core.ADCValue, error) {
	if err := d.ConfigureChannel(ch); err != nil {
		return 0, err
	}
	return core.ADCValue(d.channels[ch].Get()), nil
}
