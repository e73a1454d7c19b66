package core

import (
	"errors"
	"testing"

	"gosine/errcode"
)

type fakeADC struct {
	raw        map[ADCChannel]uint16
	configured []ADCChannel
	fail       error
}

func (a *fakeADC) ConfigureChannel(ch ADCChannel) error {
	a.configured = append(a.configured, ch)
	return nil
}

func (a *fakeADC) ReadRaw(ch ADCChannel) (uint16, error) {
	if a.fail != nil {
		return 0, a.fail
	}
	return a.raw[ch], nil
}

func newTestSampler(t *testing.T, inv *Inverter) (*CurrentSampler, *fakeADC) {
	t.Helper()
	adc := &fakeADC{raw: map[ADCChannel]uint16{3: 32768, 4: 32768}}
	s, err := NewCurrentSampler(inv, CurrentSamplerConfig{
		ADC:      adc,
		Channels: [2]ADCChannel{3, 4},
		Gain:     [2]Fixed{FixedFromInt(100), FixedFromInt(100)},
	})
	if err != nil {
		t.Fatal(err)
	}
	return s, adc
}

func TestCurrentSamplerConvertsAndReports(t *testing.T) {
	inv, _ := newTestInverter(defaultParams(), nil)
	s, adc := newTestSampler(t, inv)
	if len(adc.configured) != 2 {
		t.Fatalf("configured %v", adc.configured)
	}

	adc.raw[3] = 32768 + 2500 // 25 A
	adc.raw[4] = 32768 - 1000 // -10 A
	if err := s.Sample(); err != nil {
		t.Fatal(err)
	}
	il1, il2 := s.Last()
	if il1 != FixedFromInt(25) || il2 != FixedFromInt(-10) {
		t.Errorf("currents %v %v", il1, il2)
	}
	if inv.Status().PeakCurrent != FixedFromInt(25) {
		t.Errorf("peak %v", inv.Status().PeakCurrent)
	}

	adc.raw[3] = 32768 + 15000
	s.Sample()
	if inv.Cause() != FaultOvercurrent {
		t.Errorf("150 A did not trip, cause %v", inv.Cause())
	}
}

func TestCurrentSamplerCalibrate(t *testing.T) {
	inv, _ := newTestInverter(defaultParams(), nil)
	s, adc := newTestSampler(t, inv)
	adc.raw[3] = 33000
	adc.raw[4] = 32000
	if err := s.Calibrate(8); err != nil {
		t.Fatal(err)
	}
	s.Sample()
	if il1, il2 := s.Last(); il1 != 0 || il2 != 0 {
		t.Errorf("after calibration %v %v", il1, il2)
	}

	inv.SetOpmode(ModeSine)
	inv.PeriodElapsed()
	if err := s.Calibrate(8); errcode.Of(err) != errcode.Busy {
		t.Errorf("calibrate while running = %v", err)
	}
}

func TestCurrentSamplerErrors(t *testing.T) {
	inv, _ := newTestInverter(defaultParams(), nil)
	if _, err := NewCurrentSampler(inv, CurrentSamplerConfig{ADC: &fakeADC{}}); errcode.Of(err) != errcode.InvalidParams {
		t.Errorf("zero gain accepted: %v", err)
	}
	s, adc := newTestSampler(t, inv)
	adc.fail = errors.New("conversion timeout")
	if err := s.Sample(); errcode.Of(err) != errcode.SensorUnavailable {
		t.Errorf("Sample = %v", err)
	}
}
