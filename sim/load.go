package sim

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"gosine/core"
)

// LoadConfig describes a star-connected RL load and the current sensor
// in front of it.
type LoadConfig struct {
	R     float64 // ohm per phase
	L     float64 // H per phase
	Gain  float64 // ADC digits per amp
	Noise float64 // peak measurement noise, A
	Seed  int64
}

func (c *LoadConfig) applyDefaults() {
	if c.R == 0 {
		c.R = 10
	}
	if c.L == 0 {
		c.L = 20e-3
	}
	if c.Gain == 0 {
		c.Gain = 4.7
	}
}

// Load integrates phase currents from the bridge duties. It also serves
// as the current sensor ADC.
type Load struct {
	cfg   LoadConfig
	noise opensimplex.Noise
	i     [3]float64
	t     float64
}

var _ core.ADCDriver = (*Load)(nil)

func NewLoad(cfg LoadConfig) *Load {
	cfg.applyDefaults()
	return &Load{cfg: cfg, noise: opensimplex.New(cfg.Seed)}
}

// Step advances the load by dt seconds with the given leg duties and
// DC-link voltage.
func (l *Load) Step(duty [3]float64, on bool, udc, dt float64) {
	l.t += dt
	var v [3]float64
	if on {
		driven, sum := 0, 0.0
		for k, d := range duty {
			if d < 0 {
				continue
			}
			v[k] = d * udc
			sum += v[k]
			driven++
		}
		if driven < 2 {
			on = false
		} else {
			n := sum / float64(driven)
			for k, d := range duty {
				if d >= 0 {
					v[k] -= n
				}
			}
		}
	}
	decay := math.Exp(-l.cfg.R / l.cfg.L * dt)
	var mean float64
	for k := range l.i {
		if on {
			target := v[k] / l.cfg.R
			l.i[k] = target + (l.i[k]-target)*decay
		} else {
			l.i[k] *= decay
		}
		mean += l.i[k]
	}
	mean /= 3
	for k := range l.i {
		l.i[k] -= mean
	}
}

// Currents returns the true phase currents in amps.
func (l *Load) Currents() [3]float64 {
	return l.i
}

// DCCurrent estimates the DC-side current drawn through the duties.
func (l *Load) DCCurrent(duty [3]float64) float64 {
	var idc float64
	for k, d := range duty {
		if d > 0 {
			idc += d * l.i[k]
		}
	}
	return idc
}

func (l *Load) measured(k int) float64 {
	n := 0.0
	if l.cfg.Noise != 0 {
		n = l.cfg.Noise * l.noise.Eval2(l.t*2000, float64(k)*10)
	}
	return l.i[k] + n
}

func (l *Load) ConfigureChannel(ch core.ADCChannel) error {
	return nil
}

// ReadRaw reports phase ch (0..2) as a 16-bit reading centered at
// mid-scale.
func (l *Load) ReadRaw(ch core.ADCChannel) (uint16, error) {
	raw := 32768 + math.Round(l.measured(int(ch)%3)*l.cfg.Gain)
	return uint16(math.Max(0, math.Min(65535, raw))), nil
}
