package core

import "gosine/errcode"

const (
	// pwmfrq 0..4 selects 11..15 compare digits.
	minPWMDigits = 11
	maxPWMFrq    = 4
)

// PWMDigits maps the pwmfrq parameter to compare resolution. At a 72 MHz
// timer clock, center-aligned, 11 digits is 17.6 kHz and 15 is 1.1 kHz.
func PWMDigits(pwmfrq uint8) uint8 {
	return minPWMDigits + min(pwmfrq, maxPWMFrq)
}

// DeadTimeTicks decodes a break-and-dead-time generator code into timer
// ticks. Codes above 127 select coarser steps.
func DeadTimeTicks(dtg uint8) uint16 {
	v := uint16(dtg)
	switch {
	case dtg&0x80 == 0:
		return v & 0x7F
	case dtg&0xC0 == 0x80:
		return (64 + v&0x3F) * 2
	case dtg&0xE0 == 0xC0:
		return (32 + v&0x1F) * 8
	}
	return (32 + v&0x1F) * 16
}

// TimerHandle describes the configured PWM timer.
type TimerHandle struct {
	Digits      uint8
	Top         uint16 // compare value for 100% duty
	PeriodTicks uint32 // PWM clock ticks per period (up and down)
	BudgetTicks uint32 // system timer ticks per period
	DeadTime    uint8
	DeadTicks   uint16
	Polarity    Polarity
}

// Frequency returns the PWM frequency in Hz.
func (h TimerHandle) Frequency() uint32 {
	if h.PeriodTicks == 0 {
		return 0
	}
	return PWMClockFreq / h.PeriodTicks
}

// TimerConfigurator applies dead time, polarity and period to the stage,
// touching the hardware only when the requested record differs from the
// last one applied.
type TimerConfigurator struct {
	stage  PowerStage
	handle TimerHandle
	valid  bool
}

func NewTimerConfigurator(stage PowerStage) *TimerConfigurator {
	return &TimerConfigurator{stage: stage}
}

// Configure is idempotent for an unchanged request.
func (c *TimerConfigurator) Configure(dtp DeadTimeAndPolarity, digits uint8) (TimerHandle, error) {
	if digits < minPWMDigits || digits > minPWMDigits+maxPWMFrq {
		return c.handle, &errcode.E{C: errcode.InvalidParams, Op: "timer_config", Msg: "digits " + utoa(uint32(digits))}
	}
	if dtp.Polarity > ActiveLow {
		return c.handle, &errcode.E{C: errcode.InvalidParams, Op: "timer_config", Msg: "polarity"}
	}
	periodChanged := !c.valid || c.handle.Digits != digits
	dtChanged := !c.valid || c.handle.DeadTime != dtp.DeadTime || c.handle.Polarity != dtp.Polarity
	if !periodChanged && !dtChanged {
		return c.handle, nil
	}

	c.stage.DisableOutput()
	h := c.handle
	if periodChanged {
		top := uint16(1) << digits
		if err := c.stage.ConfigurePeriod(top); err != nil {
			c.valid = false
			return h, &errcode.E{C: errcode.Error, Op: "timer_config", Msg: "period", Err: err}
		}
		h.Digits = digits
		h.Top = top
		h.PeriodTicks = 2 * uint32(top)
		h.BudgetTicks = uint32(uint64(h.PeriodTicks) * uint64(TimerFreq) / uint64(PWMClockFreq))
	}
	if dtChanged {
		ticks := DeadTimeTicks(dtp.DeadTime)
		if err := c.stage.ConfigureDeadTimeAndPolarity(ticks, dtp.Polarity); err != nil {
			c.valid = false
			return h, &errcode.E{C: errcode.Error, Op: "timer_config", Msg: "dead time", Err: err}
		}
		h.DeadTime = dtp.DeadTime
		h.DeadTicks = ticks
		h.Polarity = dtp.Polarity
	}
	c.handle = h
	c.valid = true
	RecordTiming(EvtTimerConfig, digits, GetTime(), uint32(h.DeadTicks), uint32(h.Polarity))
	return h, nil
}

// Handle returns the last applied configuration.
func (c *TimerConfigurator) Handle() (TimerHandle, bool) {
	return c.handle, c.valid
}
