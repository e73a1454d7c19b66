package mathx

import "golang.org/x/exp/constraints"

// RoundShift divides v by 2^shift rounding half away from zero.
// shift == 0 returns v unchanged.
func RoundShift[T constraints.Integer](v T, shift uint) T {
	if shift == 0 {
		return v
	}
	half := T(1) << (shift - 1)
	if v < 0 {
		return -((-v + half) >> shift)
	}
	return (v + half) >> shift
}

// SaturateU16 narrows v into [0, 65535].
func SaturateU16[T constraints.Signed](v T) uint16 {
	if v < 0 {
		return 0
	}
	if int64(v) > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}
