package core

import "testing"

func testLimits() FrequencyLimits {
	return LimitsFrom(defaultParams())
}

// periodTicks at pwmfrq 0: center-aligned 2^11 top.
const testPeriod = 2 << 11

func TestAdvanceStaysInRangeAndWrapsWithSign(t *testing.T) {
	lim := testLimits()
	for _, f := range []Fixed{FixedFromInt(200), FixedFromInt(-200), FixedFromInt(3), FixedFromFloat(-0.5)} {
		var a AngleIntegrator
		prev := a.Angle()
		wrapped := false
		for i := 0; i < 200000; i++ {
			a.Advance(f, testPeriod, lim)
			cur := a.Angle()
			d := uint16(cur - prev)
			if f > 0 && d >= 32768 {
				t.Fatalf("f=%v: step %d went backwards (%d -> %d)", f, i, prev, cur)
			}
			if f < 0 && d != 0 && d < 32768 {
				t.Fatalf("f=%v: step %d went forwards (%d -> %d)", f, i, prev, cur)
			}
			if (f > 0 && cur < prev) || (f < 0 && cur > prev) {
				wrapped = true
			}
			prev = cur
		}
		if !wrapped {
			t.Errorf("f=%v never wrapped", f)
		}
	}
}

func TestAdvanceCarriesRemainder(t *testing.T) {
	// 140625 periods of 4096 ticks at 72 MHz is exactly 8 s, so 50 Hz
	// lands on 400 whole revolutions.
	for _, f := range []Fixed{FixedFromInt(50), FixedFromInt(-50)} {
		var a AngleIntegrator
		for i := 0; i < 140625; i++ {
			a.Advance(f, testPeriod, testLimits())
		}
		if a.Angle() != 0 || a.phase != 0 {
			t.Errorf("f=%v: drifted to angle %d (phase %#x)", f, a.Angle(), a.phase)
		}
	}
}

func TestClampFrequency(t *testing.T) {
	lim := testLimits()
	tests := []struct {
		name string
		in   Fixed
		want Fixed
	}{
		{"zero stays neutral", 0, 0},
		{"in range", FixedFromInt(50), FixedFromInt(50)},
		{"above max", FixedFromInt(500), FixedFromInt(200)},
		{"below -max", FixedFromInt(-500), FixedFromInt(-200)},
		{"below min raised", FixedFromFloat(0.25), FixedFromInt(1)},
		{"negative below min keeps sign", FixedFromFloat(-0.25), FixedFromInt(-1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClampFrequency(tc.in, lim); got != tc.want {
				t.Errorf("ClampFrequency(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestDirectionChangePolicy(t *testing.T) {
	lim := testLimits() // 100 rpm at 2 pole pairs is 3.33 Hz
	var a AngleIntegrator

	if got := a.Advance(FixedFromInt(20), testPeriod, lim); got != FixedFromInt(20) || a.Direction() != Forward {
		t.Fatalf("forward start: f=%v dir=%v", got, a.Direction())
	}

	// Fast reversal request is held at zero.
	if got := a.Advance(FixedFromInt(-20), testPeriod, lim); got != 0 {
		t.Errorf("fast reversal applied %v, want 0", got)
	}
	if a.Direction() != Forward {
		t.Errorf("direction flipped to %v above threshold", a.Direction())
	}

	// Below the threshold the command's sign is taken at once.
	if got := a.Advance(FixedFromInt(-2), testPeriod, lim); got != FixedFromInt(-2) || a.Direction() != Reverse {
		t.Errorf("slow reversal: f=%v dir=%v", got, a.Direction())
	}

	a.Advance(0, testPeriod, lim)
	if a.Direction() != Neutral || a.Frequency() != 0 {
		t.Errorf("zero command: dir=%v f=%v", a.Direction(), a.Frequency())
	}
	// From neutral any speed may start in either direction.
	if got := a.Advance(FixedFromInt(-20), testPeriod, lim); got != FixedFromInt(-20) {
		t.Errorf("start from neutral applied %v", got)
	}
}

func TestRotorOffset(t *testing.T) {
	var a AngleIntegrator
	a.SetRotor(1000)
	if a.Angle() != 1000 {
		t.Errorf("angle %d, want rotor 1000", a.Angle())
	}
	a.SetRotor(65000)
	a.Advance(FixedFromInt(200), testPeriod, testLimits())
	if a.Angle() < 65000 && a.Angle() > 2000 {
		t.Errorf("angle %d did not wrap from rotor offset", a.Angle())
	}
	a.Reset()
	if a.Angle() != 0 || a.Direction() != Neutral {
		t.Error("Reset left state behind")
	}
}
