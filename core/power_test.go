package core

import (
	"errors"
	"testing"
)

type fakeADC struct {
	values     map[ADCChannelID]ADCValue
	configured []ADCChannelID
	fail       bool
}

func (f *fakeADC) ConfigureChannel(ch ADCChannelID) error {
	f.configured = append(f.configured, ch)
	return nil
}

func (f *fakeADC) ReadRaw(ch ADCChannelID) (ADCValue, error) {
	if f.fail {
		return 0, errors.New("adc fault")
	}
	return f.values[ch], nil
}

func newADCMonitor(adc *fakeADC) *ADCPowerMonitor {
	return &ADCPowerMonitor{
		ADC:           adc,
		VBat:          Divider{Channel: 0, RefUV: 3300000, Num: 2, Den: 1},
		VIn:           Divider{Channel: 1, RefUV: 3300000, Num: 2, Den: 1},
		VBatPresentUV: 1800000,
		VInPresentUV:  4000000,
	}
}

func TestADCPowerMonitorScaling(t *testing.T) {
	adc := &fakeADC{values: map[ADCChannelID]ADCValue{0: 0xFFFF, 1: 0x8000}}
	m := newADCMonitor(adc)
	if err := m.Configure(); err != nil {
		t.Fatal(err)
	}
	if len(adc.configured) != 2 {
		t.Errorf("configured %v", adc.configured)
	}
	if got := m.VBatMicrovolts(); got != 6600000 {
		t.Errorf("VBat = %d, want 6600000", got)
	}
	// Half scale through a 2:1 divider is the full reference
	if got := m.VInMicrovolts(); got < 3299000 || got > 3301000 {
		t.Errorf("VIn = %d, want about 3300000", got)
	}
}

func TestADCPowerMonitorSource(t *testing.T) {
	tests := []struct {
		name     string
		bat, vin ADCValue
		want     PowerSource
	}{
		{"none", 0, 0, PowerSourceNone},
		{"battery", 0x8000, 0, PowerSourceBattery},
		{"usb", 0, 0xFFFF, PowerSourceUSB},
		{"both", 0x8000, 0xFFFF, PowerSourceBoth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newADCMonitor(&fakeADC{values: map[ADCChannelID]ADCValue{0: tt.bat, 1: tt.vin}})
			if got := m.PowerSource(); got != tt.want {
				t.Errorf("PowerSource = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestADCPowerMonitorReadError(t *testing.T) {
	m := newADCMonitor(&fakeADC{fail: true})
	if m.VBatMicrovolts() != 0 || m.PowerSource() != PowerSourceNone {
		t.Error("failed read not reported as zero")
	}
}
