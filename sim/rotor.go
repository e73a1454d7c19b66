package sim

import (
	"math"
	"sync/atomic"

	"gosine/core"
)

// Rotor is a constant-speed encoder.
type Rotor struct {
	freq  uint64 // atomic float64 bits, electrical Hz
	phase float64
	angle uint32 // atomic core.Angle
}

var _ core.RotorSensor = (*Rotor)(nil)

// SetFrequency sets the electrical rotor frequency in Hz.
func (r *Rotor) SetFrequency(hz float64) {
	atomic.StoreUint64(&r.freq, math.Float64bits(hz))
}

func (r *Rotor) Frequency() float64 {
	return math.Float64frombits(atomic.LoadUint64(&r.freq))
}

// Step advances the rotor by dt seconds.
func (r *Rotor) Step(dt float64) {
	r.phase += r.Frequency() * dt
	r.phase -= math.Floor(r.phase)
	atomic.StoreUint32(&r.angle, uint32(core.Angle(r.phase*65536)))
}

func (r *Rotor) RotorAngle() core.Angle {
	return core.Angle(atomic.LoadUint32(&r.angle))
}
