package core

import "gosine/x/mathx"

const (
	// SineMaxAmp is the amplitude at which the offset-compensated sine
	// just reaches full modulation (2/sqrt(3) over the plain sine limit).
	SineMaxAmp = 37813

	// DutyZero is the 16-bit duty that centers a phase (50%).
	DutyZero = 32768
	dutyBits = 16
	dutyMax  = 1<<dutyBits - 1
)

// SynthConfig is refreshed from Parameters by the PWM context before
// each Compute.
type SynthConfig struct {
	Digits    uint8  // compare resolution, top = 1 << Digits
	MinPulse  uint16 // duties closer than this to either rail snap to it
	ChargeMax uint16 // duty cap in boost/buck, 16-bit domain
	HeatMax   uint16 // amplitude cap in AC heat, amplitude digits
}

// Top returns the compare value for 100% duty.
func (c SynthConfig) Top() uint16 {
	return uint16(1) << c.Digits
}

// waveform is one variant of the closed set of output shapes. Each
// variant maps (angle, amplitude) to compares for a given config.
type waveform interface {
	compute(cfg SynthConfig, a Angle, amp uint16) PhaseCompareSet
}

type (
	offWave  struct{}
	sineWave struct{ offset bool }
	dcWave   struct{ lowSide bool }
)

var waveforms = [...]waveform{
	ModeOff:       offWave{},
	ModeRun:       sineWave{offset: true},
	ModeManualRun: sineWave{offset: true},
	ModeBoost:     dcWave{lowSide: true},
	ModeBuck:      dcWave{lowSide: false},
	ModeSine:      sineWave{offset: true},
	ModeACHeat:    sineWave{offset: false},
}

// Synthesizer turns (angle, amplitude, mode) into phase compares. Compute
// is pure: identical inputs and config give identical output.
type Synthesizer struct {
	cfg SynthConfig
}

func NewSynthesizer(cfg SynthConfig) *Synthesizer {
	return &Synthesizer{cfg: cfg}
}

func (s *Synthesizer) Configure(cfg SynthConfig) {
	s.cfg = cfg
}

func (s *Synthesizer) Config() SynthConfig {
	return s.cfg
}

// Compute dispatches on mode. Unknown modes yield the disabled set.
func (s *Synthesizer) Compute(a Angle, amp uint16, mode OperatingMode) PhaseCompareSet {
	if int(mode) >= len(waveforms) || waveforms[mode] == nil {
		return DisabledCompares
	}
	return waveforms[mode].compute(s.cfg, a, amp)
}

func (offWave) compute(SynthConfig, Angle, uint16) PhaseCompareSet {
	return DisabledCompares
}

func (w sineWave) compute(cfg SynthConfig, a Angle, amp uint16) PhaseCompareSet {
	amp = min(amp, SineMaxAmp)
	if !w.offset {
		amp = min(amp, cfg.HeatMax)
	}
	sine := [3]int32{
		scaleAmplitude(amp, SineLookup(a)),
		scaleAmplitude(amp, SineLookup(a+PhaseShift120)),
		scaleAmplitude(amp, SineLookup(a+PhaseShift240)),
	}
	var ofs int32
	if w.offset {
		ofs = svpwmOffset(sine[0], sine[1], sine[2])
	}
	out := PhaseCompareSet{Legs: LegsAll}
	for i, v := range sine {
		duty := minPulse(mathx.Clamp(v-ofs+DutyZero, 0, dutyMax), cfg.MinPulse)
		out.Compare[i] = quantize(duty, cfg.Digits)
	}
	return out
}

func (w dcWave) compute(cfg SynthConfig, _ Angle, amp uint16) PhaseCompareSet {
	duty := min(int32(int64(min(amp, SineMaxAmp))*dutyMax/SineMaxAmp), int32(cfg.ChargeMax))
	c := quantize(duty, cfg.Digits)
	if w.lowSide {
		c = cfg.Top() - c
	}
	return PhaseCompareSet{Compare: [3]uint16{c, 0, 0}, Legs: LegU}
}

// scaleAmplitude multiplies a Q15 sine sample by an amplitude in digits.
func scaleAmplitude(amp uint16, sin int32) int32 {
	return (int32(amp) * sin) >> 15
}

// svpwmOffset is the common-mode term (min+max)/2 that flattens the phase
// voltages into the space-vector envelope.
func svpwmOffset(a, b, c int32) int32 {
	return (mathx.Min3(a, b, c) + mathx.Max3(a, b, c)) >> 1
}

// minPulse snaps duties too close to either rail onto the rail.
func minPulse(duty int32, pulse uint16) int32 {
	p := int32(pulse)
	switch {
	case duty < p:
		return 0
	case duty > dutyMax-p:
		return dutyMax
	}
	return duty
}

// quantize shifts a 16-bit duty down to compare digits, rounding to
// nearest and saturating at top.
func quantize(duty int32, digits uint8) uint16 {
	if digits >= dutyBits {
		return mathx.SaturateU16(duty)
	}
	top := int32(1) << digits
	c := mathx.RoundShift(duty, uint(dutyBits-digits))
	return uint16(mathx.Clamp(c, 0, top))
}
