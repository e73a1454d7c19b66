package core

import (
	"sync/atomic"

	"gosine/x/mathx"
)

// Direction of electrical rotation.
type Direction int8

const (
	Reverse Direction = -1
	Neutral Direction = 0
	Forward Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "fwd"
	case Reverse:
		return "rev"
	}
	return "neutral"
}

// FrequencyLimits bounds the commanded frequency; read from Parameters
// every cycle.
type FrequencyLimits struct {
	Min, Max     Fixed // Hz, magnitudes
	DirChangeRPM Fixed
	PolePairs    int32
}

// LimitsFrom snapshots the frequency limits out of p.
func LimitsFrom(p Parameters) FrequencyLimits {
	return FrequencyLimits{
		Min:          p.FrequencyMin(),
		Max:          p.FrequencyMax(),
		DirChangeRPM: p.DirChangeRPM(),
		PolePairs:    p.PolePairs(),
	}
}

// HeatLimits bounds AC heat by its own ceiling with no floor, and lets
// the direction follow the command at any speed.
func HeatLimits(p Parameters) FrequencyLimits {
	return FrequencyLimits{
		Max:          p.HeatFrequency(),
		DirChangeRPM: Fixed(1<<31 - 1),
		PolePairs:    p.PolePairs(),
	}
}

// ClampFrequency applies the silent floor/ceiling: |f| <= Max, a non-zero
// |f| below Min is raised to Min with its sign kept. Zero stays zero.
func ClampFrequency(f Fixed, lim FrequencyLimits) Fixed {
	if f == 0 {
		return 0
	}
	mag := mathx.Clamp(mathx.Abs(f), lim.Min, lim.Max)
	if f < 0 {
		return -mag
	}
	return mag
}

// AngleIntegrator owns the electrical angle. Advance and SetRotor run in
// the PWM context only; Angle, Frequency and Direction may be read from
// anywhere.
type AngleIntegrator struct {
	phase uint32 // Q16.16 slip phase
	rem   int64  // sub-digit remainder carried between periods
	rotor Angle

	out  uint32 // atomic: published angle
	freq int32  // atomic: last applied frequency (Fixed)
	dir  int32  // atomic: Direction
}

// Advance integrates one period of the commanded frequency. It returns
// the frequency actually applied after clamping and direction policy.
func (a *AngleIntegrator) Advance(cmd Fixed, periodTicks uint32, lim FrequencyLimits) Fixed {
	f := a.applyDirection(ClampFrequency(cmd, lim), lim)

	if f != 0 && periodTicks != 0 {
		// 2^32 Q16.16 units per revolution; f carries FracBits.
		num := int64(f)*int64(periodTicks)<<(32-FracBits) + a.rem
		tf := int64(PWMClockFreq)
		inc := num / tf
		a.rem = num - inc*tf
		a.phase += uint32(inc)
	}

	atomic.StoreInt32(&a.freq, int32(f))
	a.publish()
	return f
}

// applyDirection implements the direction-change policy. Below the
// threshold the command's sign is taken at once. At or above it a command
// against the latched direction yields zero for this period.
func (a *AngleIntegrator) applyDirection(f Fixed, lim FrequencyLimits) Fixed {
	cur := Direction(atomic.LoadInt32(&a.dir))
	want := Neutral
	switch {
	case f > 0:
		want = Forward
	case f < 0:
		want = Reverse
	}

	if want == Neutral {
		atomic.StoreInt32(&a.dir, int32(Neutral))
		return 0
	}
	if cur != Neutral && want != cur && CommandRPM(f, lim.PolePairs) >= lim.DirChangeRPM {
		return 0
	}
	atomic.StoreInt32(&a.dir, int32(want))
	return f
}

// CommandRPM converts an electrical frequency to mechanical rpm.
func CommandRPM(f Fixed, polePairs int32) Fixed {
	if polePairs <= 0 {
		polePairs = 1
	}
	return Fixed(int64(mathx.Abs(f)) * 60 / int64(polePairs))
}

// SetRotor sets the rotor electrical angle added to the integrated slip.
func (a *AngleIntegrator) SetRotor(r Angle) {
	a.rotor = r
	a.publish()
}

// Reset zeroes slip phase, rotor offset and direction.
func (a *AngleIntegrator) Reset() {
	a.phase = 0
	a.rem = 0
	a.rotor = 0
	atomic.StoreInt32(&a.freq, 0)
	atomic.StoreInt32(&a.dir, int32(Neutral))
	a.publish()
}

func (a *AngleIntegrator) publish() {
	atomic.StoreUint32(&a.out, uint32(Angle(a.phase>>16)+a.rotor))
}

// Angle returns the synthesized electrical angle. Stale by at most one
// period when read outside the PWM context.
func (a *AngleIntegrator) Angle() Angle {
	return Angle(atomic.LoadUint32(&a.out))
}

func (a *AngleIntegrator) Frequency() Fixed {
	return Fixed(atomic.LoadInt32(&a.freq))
}

func (a *AngleIntegrator) Direction() Direction {
	return Direction(atomic.LoadInt32(&a.dir))
}
