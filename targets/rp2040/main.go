//go:build rp2040

package main

import (
	"context"
	"machine"
	"time"

	"mbif/core"
	"mbif/protocol"
	"mbif/storage"
)

const (
	boardID        = 0x9904
	daplinkVersion = 0x0100

	// 128 KiB at the end of the flash data area
	storageSize = 0x20000
)

// logRemounter stands in for the mass storage remount, which this chip
// does not have
type logRemounter struct{}

func (logRemounter) Remount(cfg storage.Config) error {
	core.DebugPrintln("[MSD] remount " + cfg.DisplayName())
	return nil
}

func main() {
	// Clear any watchdog left running by a power-down reset
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	machine.Serial.Configure(machine.UARTConfig{})
	core.SetDebugWriter(func(s string) {
		machine.Serial.Write([]byte(s))
		machine.Serial.Write([]byte("\r\n"))
	})
	core.SetDebugEnabled(true)
	core.InitAsyncDebug()

	gpio := NewRPGPIODriver()
	core.SetGPIODriver(gpio)
	if err := gpio.ConfigureInputPullUp(wakeButtonPin); err != nil {
		halt("button: " + err.Error())
	}
	if err := gpio.ConfigureOutput(powerLEDPin); err != nil {
		halt("led: " + err.Error())
	}
	gpio.SetPin(powerLEDPin, true)

	monitor := newPowerMonitor(NewRPADCDriver())
	if err := monitor.Configure(); err != nil {
		halt("adc: " + err.Error())
	}

	flash := NewRPFlash()
	geo, err := flash.Geometry(storageSize)
	if err != nil {
		halt("flash geometry: " + err.Error())
	}
	store, err := storage.New(flash, geo)
	if err != nil {
		halt("storage: " + err.Error())
	}
	if found, err := store.Init(); err != nil {
		core.DebugPrintln("[MAIN] config read: " + err.Error())
	} else if !found {
		core.DebugPrintln("[MAIN] no stored config, using defaults")
	}

	line, err := core.NewGPIOLine(combinedIntPin)
	if err != nil {
		halt("combined int: " + err.Error())
	}
	engine := core.NewI2CEngine(core.WithInterruptLine(line))

	board := core.NewBoard(boardID, daplinkVersion, monitor)
	if monitor.VInMicrovolts() >= monitor.VInPresentUV {
		board.SetUSBState(core.USBConnected)
	}
	core.NewCommsHandler(engine, board, nil)
	flashHandler := core.NewFlashHandler(engine, store)

	power := &RPPower{
		engine: engine,
		board:  board,
		button: wakeButtonPin,
		led:    powerLEDPin,
	}
	task := core.NewTask(engine, board, flashHandler, store, logRemounter{}, power)
	power.onWake = task.PostUserEvent

	comms, err := NewRPI2CTarget(machine.I2C0, sdaComms, sclComms, protocol.AddrComms, engine)
	if err != nil {
		halt("i2c0: " + err.Error())
	}
	flashTarget, err := NewRPI2CTarget(machine.I2C1, sdaFlash, sclFlash, protocol.AddrFlash, engine)
	if err != nil {
		halt("i2c1: " + err.Error())
	}
	go comms.Serve()
	go flashTarget.Serve()

	core.DebugPrintln("[MAIN] interface chip ready")

	task.Run(context.Background())
}

// halt reports a fatal start-up error and stops
func halt(msg string) {
	core.DebugPrintln("[MAIN] " + msg)
	for {
		time.Sleep(time.Second)
	}
}
