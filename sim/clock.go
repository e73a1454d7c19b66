package sim

import "gosine/core"

// Clock maps PWM periods onto the core's system timer. It also serves
// as the inverter's cycle clock, so a stall injected with Stall is seen
// as time passing inside the next control cycle.
type Clock struct {
	pwmTicks uint64
	stall    uint64 // PWM ticks to spend in the next cycle
	reads    int    // Now calls since the last Advance
}

// Advance moves time forward by one PWM period of periodTicks PWM clock
// ticks and returns the period length in seconds.
func (c *Clock) Advance(periodTicks uint32) float64 {
	c.pwmTicks += uint64(periodTicks)
	c.reads = 0
	c.sync()
	return float64(periodTicks) / float64(core.PWMClockFreq)
}

// Stall makes the next control cycle take pwmTicks PWM clock ticks.
func (c *Clock) Stall(pwmTicks uint32) {
	c.stall = uint64(pwmTicks)
}

// Now returns system timer ticks. The first read of a cycle marks its
// start; a pending stall elapses before the second.
func (c *Clock) Now() uint32 {
	if c.reads > 0 && c.stall > 0 {
		c.pwmTicks += c.stall
		c.stall = 0
		c.sync()
	}
	c.reads++
	return c.ticks()
}

func (c *Clock) ticks() uint32 {
	return uint32(c.pwmTicks * uint64(core.TimerFreq) / uint64(core.PWMClockFreq))
}

func (c *Clock) sync() {
	core.SetTime(c.ticks())
}

// Seconds is the simulated time since start.
func (c *Clock) Seconds() float64 {
	return float64(c.pwmTicks) / float64(core.PWMClockFreq)
}
