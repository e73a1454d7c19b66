package core

import "math"

// Angle is an electrical angle where 65536 units span one revolution.
type Angle uint16

const (
	// PhaseShift120 is one third of a revolution in angle units.
	PhaseShift120 Angle = 65536 / 3
	PhaseShift240 Angle = 2 * (65536 / 3)
)

const (
	sinTabBits    = 8
	sinTabEntries = 1 << sinTabBits
	sinInterpBits = 16 - sinTabBits
	sinTabMax     = 32767
)

// sinTab holds one revolution plus a guard entry for interpolation.
var sinTab [sinTabEntries + 1]int16

func init() {
	for i := range sinTab {
		v := math.Sin(2 * math.Pi * float64(i) / sinTabEntries)
		sinTab[i] = int16(math.Round(v * sinTabMax))
	}
}

// SineLookup returns sin(angle) scaled to +/-32767 with linear
// interpolation between table entries.
func SineLookup(a Angle) int32 {
	idx := uint32(a) >> sinInterpBits
	frac := int32(uint32(a) & (1<<sinInterpBits - 1))
	lo := int32(sinTab[idx])
	hi := int32(sinTab[idx+1])
	return lo + ((hi-lo)*frac)>>sinInterpBits
}
