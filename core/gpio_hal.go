package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInputPullUp configures a pin as a digital input with pull-up resistor
	ConfigureInputPullUp(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// GetPin reads the current pin state
	GetPin(pin GPIOPin) (bool, error)
}

// Global singleton used by core code.
var gpioDriver GPIODriver

// SetGPIODriver is called by target-specific code to register its driver.
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// MustGPIO returns the configured driver or panics if missing.
func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("GPIO driver not configured")
	}
	return gpioDriver
}

// GPIOLine drives the combined interrupt through the registered GPIO
// driver. The line is active low: asserting pulls the pin down, releasing
// lets the pull-up win.
type GPIOLine struct {
	Pin GPIOPin
}

// NewGPIOLine configures pin as an output and releases it.
func NewGPIOLine(pin GPIOPin) (*GPIOLine, error) {
	if err := MustGPIO().ConfigureOutput(pin); err != nil {
		return nil, err
	}
	l := &GPIOLine{Pin: pin}
	l.Release()
	return l, nil
}

func (l *GPIOLine) Assert() {
	if err := MustGPIO().SetPin(l.Pin, false); err != nil {
		DebugAsync("[I2C] assert combined int: " + err.Error())
	}
}

func (l *GPIOLine) Release() {
	if err := MustGPIO().SetPin(l.Pin, true); err != nil {
		DebugAsync("[I2C] release combined int: " + err.Error())
	}
}

// Asserted reads the line back.
func (l *GPIOLine) Asserted() bool {
	v, err := MustGPIO().GetPin(l.Pin)
	return err == nil && !v
}
