package core

import (
	"math"
	"testing"
)

func TestSineLookupMatchesMath(t *testing.T) {
	for a := 0; a < 65536; a += 37 {
		want := math.Sin(2*math.Pi*float64(a)/65536) * sinTabMax
		got := float64(SineLookup(Angle(a)))
		// Linear interpolation over 256 segments stays within a few LSB.
		if math.Abs(got-want) > 8 {
			t.Fatalf("SineLookup(%d) = %v, want ~%v", a, got, want)
		}
	}
}

func TestSineLookupKeyPoints(t *testing.T) {
	tests := []struct {
		a    Angle
		want int32
	}{
		{0, 0},
		{16384, 32767},
		{32768, 0},
		{49152, -32767},
	}
	for _, tc := range tests {
		if got := SineLookup(tc.a); got != tc.want {
			t.Errorf("SineLookup(%d) = %d, want %d", tc.a, got, tc.want)
		}
	}
}
