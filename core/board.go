package core

// PowerSource is reported by the PowerState property
type PowerSource uint8

const (
	PowerSourceNone    PowerSource = 0
	PowerSourceUSB     PowerSource = 1
	PowerSourceBattery PowerSource = 2
	PowerSourceBoth    PowerSource = 3
)

// USBState is reported by the USBEnumerationState property
type USBState uint8

const (
	USBDisconnected USBState = iota
	USBConnecting
	USBConnected
	USBCheckConnected
	USBCheckDisconnected
	USBDisconnecting
)

// PowerMode is the low power state the host may request
type PowerMode uint8

const (
	PowerModeRunning PowerMode = 1
	PowerModeSleep   PowerMode = 2
	PowerModeDown    PowerMode = 3
)

func (m PowerMode) String() string {
	switch m {
	case PowerModeRunning:
		return "running"
	case PowerModeSleep:
		return "sleep"
	case PowerModeDown:
		return "down"
	}
	return "mode " + itoa(int(m))
}

// ShutdownState tracks a pending transition to low power
type ShutdownState uint8

const (
	ShutdownWaiting ShutdownState = iota
	ShutdownRequested
)

// PowerMonitor samples the supply rails
type PowerMonitor interface {
	PowerSource() PowerSource
	VBatMicrovolts() uint32
	VInMicrovolts() uint32
}

// StaticPowerMonitor reports fixed readings. Targets without a monitor
// and tests use it.
type StaticPowerMonitor struct {
	Source PowerSource
	VBat   uint32
	VIn    uint32
}

func (m *StaticPowerMonitor) PowerSource() PowerSource { return m.Source }
func (m *StaticPowerMonitor) VBatMicrovolts() uint32   { return m.VBat }
func (m *StaticPowerMonitor) VInMicrovolts() uint32    { return m.VIn }

// Board holds the interface chip state exposed as COMMS properties. It
// is owned by the task context.
type Board struct {
	ID             uint16 // Board ID, e.g. 0x9904
	DAPLinkVersion uint16
	Monitor        PowerMonitor

	USB            USBState
	USBHostActive  bool // Host traffic seen since the cable was attached
	Mode           PowerMode
	LEDSleepOn     bool // Power LED stays lit while asleep
	AutomaticSleep bool
	Shutdown       ShutdownState
}

// NewBoard returns a board in its reset state
func NewBoard(id, daplinkVersion uint16, mon PowerMonitor) *Board {
	if mon == nil {
		mon = &StaticPowerMonitor{}
	}
	return &Board{
		ID:             id,
		DAPLinkVersion: daplinkVersion,
		Monitor:        mon,
		Mode:           PowerModeDown,
		LEDSleepOn:     true,
		AutomaticSleep: true,
	}
}

// RequestShutdown marks that the host acknowledged a power mode change
func (b *Board) RequestShutdown() {
	b.Shutdown = ShutdownRequested
}

// SetUSBState records USB enumeration progress. Detaching the cable
// forgets host activity.
func (b *Board) SetUSBState(s USBState) {
	b.USB = s
	if s == USBDisconnected {
		b.USBHostActive = false
	}
}

// usbAbsent reports that no USB host can keep the chip awake
func (b *Board) usbAbsent() bool {
	return b.USB == USBDisconnected && !b.USBHostActive
}
