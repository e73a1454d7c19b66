//go:build tinygo

package core

import "runtime/interrupt"

type irqState = interrupt.State

// disableInterrupts masks both the PWM and the break interrupt. Only the
// scheduler's timer list is guarded this way; the fault path never waits
// on it.
func disableInterrupts() irqState {
	return interrupt.Disable()
}

func restoreInterrupts(state irqState) {
	interrupt.Restore(state)
}
