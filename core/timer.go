package core

import "sync/atomic"

var (
	// TimerFreq is the system timer rate in Hz that GetTime counts in.
	// Targets set it before TimerInit.
	TimerFreq uint32 = 1000000

	// PWMClockFreq is the PWM counter input clock in Hz.
	PWMClockFreq uint32 = 72000000
)

var (
	// Written by the PWM interrupt on targets and by the sim driver on the
	// host; read from every context.
	systemTicks atomic.Uint32
	bootTime    uint32
)

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return systemTicks.Load()
}

// SetTime sets the current system time (for testing/hardware integration)
func SetTime(ticks uint32) {
	systemTicks.Store(ticks)
}

// SetClocks records the system timer and PWM clock rates.
func SetClocks(timerHz, pwmHz uint32) {
	if timerHz != 0 {
		TimerFreq = timerHz
	}
	if pwmHz != 0 {
		PWMClockFreq = pwmHz
	}
}

// Uptime returns ticks since TimerInit, modulo 2^32.
func Uptime() uint32 {
	return GetTime() - bootTime
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * uint64(TimerFreq) / 1000000)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / uint64(TimerFreq))
}

// TimerInit marks boot time. Targets call it after SetClocks.
func TimerInit() {
	bootTime = GetTime()
}

// ProcessTimers runs due scheduler timers. Called from the main loop,
// which is the lowest-priority context.
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}
