package core

import (
	"sync/atomic"

	"gosine/errcode"
)

// ADCChannel identifies a logical ADC channel understood by the target.
type ADCChannel uint8

// ADCDriver is the abstract ADC interface the current sampler uses.
type ADCDriver interface {
	// ConfigureChannel puts the channel's pin in analog mode.
	ConfigureChannel(ch ADCChannel) error

	// ReadRaw returns one sample scaled to 16 bits.
	ReadRaw(ch ADCChannel) (uint16, error)
}

// CurrentSamplerConfig selects the two measured phases. Gain is in ADC
// digits per amp.
type CurrentSamplerConfig struct {
	ADC      ADCDriver
	Channels [2]ADCChannel
	Gain     [2]Fixed
}

// CurrentSampler converts two phase-current channels to amps and feeds
// them to the inverter's overcurrent check. The third phase is derived.
type CurrentSampler struct {
	inv    *Inverter
	adc    ADCDriver
	ch     [2]ADCChannel
	gain   [2]Fixed
	offset [2]int32

	last [2]int32 // atomic Fixed
}

func NewCurrentSampler(inv *Inverter, cfg CurrentSamplerConfig) (*CurrentSampler, error) {
	if cfg.ADC == nil || cfg.Gain[0] == 0 || cfg.Gain[1] == 0 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "current_sampler", Msg: "adc and non-zero gains required"}
	}
	for _, ch := range cfg.Channels {
		if err := cfg.ADC.ConfigureChannel(ch); err != nil {
			return nil, errcode.Wrap(errcode.SensorUnavailable, "current_sampler", "configure channel", err)
		}
	}
	s := &CurrentSampler{inv: inv, adc: cfg.ADC, ch: cfg.Channels, gain: cfg.Gain}
	// Mid-scale until calibrated.
	s.offset = [2]int32{1 << 15, 1 << 15}
	return s, nil
}

// Calibrate averages n samples per channel as the zero-current offset.
// The bridge must be Off.
func (s *CurrentSampler) Calibrate(n int) error {
	if s.inv.Opmode() != ModeOff {
		return &errcode.E{C: errcode.Busy, Op: "current_calibrate", Msg: "bridge running"}
	}
	if n <= 0 {
		return errcode.InvalidParams
	}
	var sum [2]int64
	for i := 0; i < n; i++ {
		for j, ch := range s.ch {
			v, err := s.adc.ReadRaw(ch)
			if err != nil {
				return errcode.Wrap(errcode.SensorUnavailable, "current_calibrate", "read", err)
			}
			sum[j] += int64(v)
		}
	}
	for j := range sum {
		s.offset[j] = int32(sum[j] / int64(n))
	}
	DebugAsync("[INV] current offsets " + itoa(int(s.offset[0])) + " " + itoa(int(s.offset[1])))
	return nil
}

// Sample reads both channels and reports them. Called from the ADC
// completion context.
func (s *CurrentSampler) Sample() error {
	var il [2]Fixed
	for j, ch := range s.ch {
		v, err := s.adc.ReadRaw(ch)
		if err != nil {
			return errcode.Wrap(errcode.SensorUnavailable, "current_sample", "read", err)
		}
		il[j] = s.toAmps(j, v)
		atomic.StoreInt32(&s.last[j], int32(il[j]))
	}
	s.inv.ReportCurrents(il[0], il[1])
	return nil
}

func (s *CurrentSampler) toAmps(j int, raw uint16) Fixed {
	d := int64(int32(raw) - s.offset[j])
	return Fixed(d << (2 * FracBits) / int64(s.gain[j]))
}

// Last returns the most recent phase currents in amps.
func (s *CurrentSampler) Last() (Fixed, Fixed) {
	return Fixed(atomic.LoadInt32(&s.last[0])), Fixed(atomic.LoadInt32(&s.last[1]))
}
