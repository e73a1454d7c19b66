package core

// Fixed is a signed fixed-point number with FracBits fractional bits.
// It carries frequencies (Hz), amplitudes (%), voltages and currents
// across the control path.
type Fixed int32

const (
	FracBits = 5
	FixedOne = Fixed(1 << FracBits)
)

// FixedFromInt converts a whole number.
func FixedFromInt(v int32) Fixed {
	return Fixed(v << FracBits)
}

// FixedFromFloat converts with round-to-nearest. Host-side and tests only.
func FixedFromFloat(v float64) Fixed {
	if v < 0 {
		return Fixed(v*float64(FixedOne) - 0.5)
	}
	return Fixed(v*float64(FixedOne) + 0.5)
}

// Int is an arithmetic shift: it floors, so -1.5 gives -2.
func (f Fixed) Int() int32 {
	return int32(f) >> FracBits
}

// Round returns the nearest whole number, halves away from zero.
func (f Fixed) Round() int32 {
	if f < 0 {
		return -int32((-f + FixedOne/2) >> FracBits)
	}
	return int32((f + FixedOne/2) >> FracBits)
}

func (f Fixed) Float() float64 {
	return float64(f) / float64(FixedOne)
}

// Mul multiplies two fixed-point values.
func (f Fixed) Mul(g Fixed) Fixed {
	return Fixed((int64(f) * int64(g)) >> FracBits)
}

// Div divides; division by zero saturates toward the sign of f.
func (f Fixed) Div(g Fixed) Fixed {
	if g == 0 {
		switch {
		case f > 0:
			return Fixed(0x7FFFFFFF)
		case f < 0:
			return Fixed(-0x7FFFFFFF)
		}
		return 0
	}
	return Fixed((int64(f) << FracBits) / int64(g))
}

// String formats as a decimal with two fractional digits without fmt.
func (f Fixed) String() string {
	v := int64(f)
	neg := v < 0
	if neg {
		v = -v
	}
	whole := v >> FracBits
	frac := ((v & (int64(FixedOne) - 1)) * 100) >> FracBits
	s := utoa(uint32(whole)) + "."
	if frac < 10 {
		s += "0"
	}
	s += utoa(uint32(frac))
	if neg {
		return "-" + s
	}
	return s
}
