// Package dclink samples the DC-link through an INA260 power monitor
// behind a resistive divider.
package dclink

import (
	"strconv"
	"sync/atomic"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/ina260"

	"gosine/core"
	"gosine/errcode"
)

// trackingBus remembers the last bus error; the ina260 driver drops them.
type trackingBus struct {
	bus drivers.I2C
	err error
}

func (b *trackingBus) Tx(addr uint16, w, r []byte) error {
	err := b.bus.Tx(addr, w, r)
	if err != nil {
		b.err = err
	}
	return err
}

func (b *trackingBus) take() error {
	err := b.err
	b.err = nil
	return err
}

type Config struct {
	// Divider is the input divider ratio; the monitor sees Udc/Divider.
	Divider core.Fixed
	// MaxAge is how long a sample stays valid, in system ticks. Zero
	// keeps samples valid until the next failed read.
	MaxAge uint32
	// Address overrides the default 0x40.
	Address uint16
}

// Monitor implements core.DCLinkSensor. Sample runs in the scheduler
// context and does the bus traffic; DCLinkVoltage only reads the cache.
type Monitor struct {
	bus    *trackingBus
	dev    ina260.Device
	cfg    Config
	timer  core.Timer
	errors uint32 // atomic

	udc   int32  // atomic Fixed V
	idc   int32  // atomic Fixed A
	stamp uint32 // atomic
	valid uint32 // atomic
}

var _ core.DCLinkSensor = (*Monitor)(nil)

func New(bus drivers.I2C, cfg Config) *Monitor {
	tb := &trackingBus{bus: bus}
	dev := ina260.New(tb)
	if cfg.Address != 0 {
		dev.Address = cfg.Address
	}
	if cfg.Divider <= 0 {
		cfg.Divider = core.FixedOne
	}
	return &Monitor{bus: tb, dev: dev, cfg: cfg}
}

// Configure checks the device identity and starts continuous
// conversions of both channels.
func (m *Monitor) Configure() error {
	if !m.dev.Connected() {
		if err := m.bus.take(); err != nil {
			return errcode.Wrap(errcode.SensorUnavailable, "dclink", "identity check", err)
		}
		return &errcode.E{C: errcode.SensorUnavailable, Op: "dclink", Msg: "no ina260 at " + "0x" + strconv.FormatUint(uint64(m.dev.Address), 16)}
	}
	m.dev.Configure(ina260.Config{
		AverageMode:     ina260.AVGMODE_16,
		VoltConvTime:    ina260.CONVTIME_1100USEC,
		CurrentConvTime: ina260.CONVTIME_1100USEC,
		Mode:            ina260.MODE_CONTINUOUS | ina260.MODE_VOLTAGE | ina260.MODE_CURRENT,
	})
	if err := m.bus.take(); err != nil {
		return errcode.Wrap(errcode.SensorUnavailable, "dclink", "configure", err)
	}
	return nil
}

// SetDivider changes the divider ratio used for later samples.
func (m *Monitor) SetDivider(div core.Fixed) {
	if div > 0 {
		m.cfg.Divider = div
	}
}

// Sample reads voltage and current and refreshes the cache. A failed
// read invalidates it.
func (m *Monitor) Sample() error {
	uv := m.dev.Voltage()
	ua := m.dev.Current()
	if err := m.bus.take(); err != nil {
		atomic.StoreUint32(&m.valid, 0)
		atomic.AddUint32(&m.errors, 1)
		return errcode.Wrap(errcode.SensorUnavailable, "dclink", "sample", err)
	}
	udc := int64(uv) * int64(m.cfg.Divider) / 1000000
	idc := int64(ua) * int64(core.FixedOne) / 1000000
	atomic.StoreInt32(&m.udc, int32(udc))
	atomic.StoreInt32(&m.idc, int32(idc))
	atomic.StoreUint32(&m.stamp, core.GetTime())
	atomic.StoreUint32(&m.valid, 1)
	return nil
}

// Start samples every interval system ticks from the scheduler.
func (m *Monitor) Start(interval uint32) {
	core.Every(&m.timer, interval, func() {
		if err := m.Sample(); err != nil {
			core.DebugAsync("[DCLINK] " + err.Error())
		}
	})
}

// Stop cancels periodic sampling.
func (m *Monitor) Stop() {
	core.CancelTimer(&m.timer)
}

func (m *Monitor) fresh() bool {
	if atomic.LoadUint32(&m.valid) == 0 {
		return false
	}
	return m.cfg.MaxAge == 0 || core.GetTime()-atomic.LoadUint32(&m.stamp) <= m.cfg.MaxAge
}

// DCLinkVoltage returns the cached DC-link voltage.
func (m *Monitor) DCLinkVoltage() (core.Fixed, bool) {
	if !m.fresh() {
		return 0, false
	}
	return core.Fixed(atomic.LoadInt32(&m.udc)), true
}

// DCLinkCurrent returns the cached DC-side current.
func (m *Monitor) DCLinkCurrent() (core.Fixed, bool) {
	if !m.fresh() {
		return 0, false
	}
	return core.Fixed(atomic.LoadInt32(&m.idc)), true
}

// Errors counts failed samples.
func (m *Monitor) Errors() uint32 {
	return atomic.LoadUint32(&m.errors)
}
