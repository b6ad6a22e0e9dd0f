//go:build rp2040

package main

import (
	"machine"
	"time"

	"mbif/core"
	"mbif/protocol"
)

const (
	// VBAT and VIN sense through 2:1 dividers on ADC0 and ADC1
	vbatChannel = 0
	vinChannel  = 1
	adcRefUV    = 3300000

	sleepPoll = 10 * time.Millisecond
)

func newPowerMonitor(adc core.ADCDriver) *core.ADCPowerMonitor {
	return &core.ADCPowerMonitor{
		ADC:           adc,
		VBat:          core.Divider{Channel: vbatChannel, RefUV: adcRefUV, Num: 2, Den: 1},
		VIn:           core.Divider{Channel: vinChannel, RefUV: adcRefUV, Num: 2, Den: 1},
		VBatPresentUV: 1800000,
		VInPresentUV:  4000000,
	}
}

// RPPower emulates the interface chip's low power modes. Sleep idles
// until the bus or the wake button needs attention; power down idles
// until the button is pressed and then resets the chip.
type RPPower struct {
	engine *core.I2CEngine
	board  *core.Board
	button core.GPIOPin
	led    core.GPIOPin

	// onWake posts the user event for a button wake
	onWake func(kind uint8)
}

func (p *RPPower) pressed() bool {
	v, err := core.MustGPIO().GetPin(p.button)
	return err == nil && !v
}

func (p *RPPower) setLED(on bool) {
	core.MustGPIO().SetPin(p.led, on)
}

func (p *RPPower) Enter(mode core.PowerMode) error {
	switch mode {
	case core.PowerModeSleep:
		p.setLED(p.board.LEDSleepOn)
		defer p.setLED(true)
		for {
			if p.pressed() {
				p.onWake(protocol.UserEventWakeFromResetButton)
				return nil
			}
			if !p.engine.CanSleep() {
				return nil
			}
			time.Sleep(sleepPoll)
		}

	case core.PowerModeDown:
		p.setLED(false)
		for !p.pressed() {
			time.Sleep(sleepPoll)
		}
		resetChip()
	}
	return nil
}

// resetChip restarts through the watchdog
func resetChip() {
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
	machine.Watchdog.Start()
	for {
		time.Sleep(time.Millisecond)
	}
}
