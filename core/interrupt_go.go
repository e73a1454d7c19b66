//go:build !tinygo

package core

// On the host every context runs on the caller's goroutine (see sim), so
// the scheduler needs no masking.
type irqState struct{}

func disableInterrupts() irqState { return irqState{} }

func restoreInterrupts(irqState) {}
