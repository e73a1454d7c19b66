//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"gosine/core"
)

// RP2040 timer peripheral: a free-running 64-bit microsecond counter.
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x24
	timerTIMERAWL = timerBase + 0x28
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// sysClockHz is the default TinyGo system clock; the PWM slices run from
// it with an integer divider of 1.
const sysClockHz = 125000000

// InitClock sets the tick rates the core converts with.
func InitClock() {
	core.SetClocks(1000000, sysClockHz/pwmClockDiv)
	core.RegisterConstant("MCU", "rp2040")
}

// GetHardwareTime returns the low word of the microsecond counter. The
// raw registers have no read latching, so they are safe from any context.
func GetHardwareTime() uint32 {
	return timerRAWL.Get()
}

func GetHardwareUptime() uint64 {
	for {
		hi := timerRAWH.Get()
		lo := timerRAWL.Get()
		if timerRAWH.Get() == hi {
			return uint64(hi)<<32 | uint64(lo)
		}
	}
}

// UpdateSystemTime copies hardware time into the core clock.
func UpdateSystemTime() {
	core.SetTime(GetHardwareTime())
}
