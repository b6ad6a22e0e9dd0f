package core

// ADCChannelID identifies an analog input
type ADCChannelID uint8

// ADCValue is a sample scaled to 16 bits whatever the converter width
type ADCValue uint16

// ADCDriver samples analog inputs. Targets implement it over their
// converter.
type ADCDriver interface {
	ConfigureChannel(ch ADCChannelID) error
	ReadRaw(ch ADCChannelID) (ADCValue, error)
}

// Divider describes a resistor divider in front of an ADC channel
type Divider struct {
	Channel ADCChannelID
	RefUV   uint32 // ADC full scale in microvolts
	Num     uint32 // Rail voltage = ADC voltage * Num / Den
	Den     uint32
}

// microvolts converts a 16-bit reading to the voltage before the divider
func (d Divider) microvolts(v ADCValue) uint32 {
	denom := d.Den
	if denom == 0 {
		denom = 1
	}
	uv := uint64(v) * uint64(d.RefUV) / 0xFFFF
	return uint32(uv * uint64(d.Num) / uint64(denom))
}

// ADCPowerMonitor samples the battery and USB input rails. A rail counts
// as present above its threshold.
type ADCPowerMonitor struct {
	ADC  ADCDriver
	VBat Divider
	VIn  Divider

	VBatPresentUV uint32
	VInPresentUV  uint32
}

// Configure sets up both ADC channels
func (m *ADCPowerMonitor) Configure() error {
	if err := m.ADC.ConfigureChannel(m.VBat.Channel); err != nil {
		return err
	}
	return m.ADC.ConfigureChannel(m.VIn.Channel)
}

func (m *ADCPowerMonitor) sample(d Divider) uint32 {
	v, err := m.ADC.ReadRaw(d.Channel)
	if err != nil {
		DebugAsync("[PWR] adc read: " + err.Error())
		return 0
	}
	return d.microvolts(v)
}

func (m *ADCPowerMonitor) VBatMicrovolts() uint32 { return m.sample(m.VBat) }
func (m *ADCPowerMonitor) VInMicrovolts() uint32  { return m.sample(m.VIn) }

func (m *ADCPowerMonitor) PowerSource() PowerSource {
	bat := m.VBatMicrovolts() >= m.VBatPresentUV
	usb := m.VInMicrovolts() >= m.VInPresentUV
	switch {
	case bat && usb:
		return PowerSourceBoth
	case usb:
		return PowerSourceUSB
	case bat:
		return PowerSourceBattery
	}
	return PowerSourceNone
}
