package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Abs for signed integers. The most negative value saturates instead of
// wrapping back to itself.
func Abs[T constraints.Signed](x T) T {
	if x >= 0 {
		return x
	}
	if -x < 0 {
		return ^x
	}
	return -x
}

// Min3 and Max3 pick the extreme of three values.
func Min3[T constraints.Ordered](a, b, c T) T {
	return min(a, b, c)
}

func Max3[T constraints.Ordered](a, b, c T) T {
	return max(a, b, c)
}
