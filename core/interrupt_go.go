//go:build !tinygo

package core

// irqState stands in for the saved interrupt mask on hosted builds
type irqState struct{}

// Hosted builds have no interrupts to mask. Callers that share the engine
// between goroutines hold their own lock, as sim.Bus does.
func disableInterrupts() irqState { return irqState{} }

func restoreInterrupts(irqState) {}
