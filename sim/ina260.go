package sim

import (
	"errors"
	"math"
	"sync"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/ina260"
)

var errNack = errors.New("i2c: nack")

// PowerMonitor is a virtual INA260 on a drivers.I2C bus.
type PowerMonitor struct {
	mu   sync.Mutex
	regs map[uint8]uint16
	fail bool
}

var _ drivers.I2C = (*PowerMonitor)(nil)

func NewPowerMonitor() *PowerMonitor {
	return &PowerMonitor{regs: map[uint8]uint16{
		ina260.REG_CONFIG:  0x6127,
		ina260.REG_MANF_ID: ina260.MANF_ID,
		ina260.REG_DIE_ID:  ina260.DEVICE_ID,
	}}
}

// Set loads the conversion registers from volts and amps at the device
// pins.
func (p *PowerMonitor) Set(volts, amps float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regs[ina260.REG_BUSVOLTAGE] = lsb1250(volts)
	p.regs[ina260.REG_CURRENT] = lsb1250(amps)
}

// SetFailing makes every transfer NACK.
func (p *PowerMonitor) SetFailing(fail bool) {
	p.mu.Lock()
	p.fail = fail
	p.mu.Unlock()
}

func lsb1250(v float64) uint16 {
	n := math.Round(v / 1.25e-3)
	return uint16(int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, n))))
}

func (p *PowerMonitor) Tx(addr uint16, w, r []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail || addr != ina260.Address || len(w) == 0 {
		return errNack
	}
	reg := w[0]
	if len(w) == 3 {
		p.regs[reg] = uint16(w[1])<<8 | uint16(w[2])
	}
	if len(r) >= 2 {
		v := p.regs[reg]
		r[0], r[1] = byte(v>>8), byte(v)
	}
	return nil
}
