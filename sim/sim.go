package sim

import (
	"context"
	"fmt"
	"io"
	"time"

	"gosine/core"
	"gosine/params"
	"gosine/sensors/dclink"
)

// Config sets up a simulated inverter.
type Config struct {
	Params   []byte // JSON parameter file, optional
	Load     LoadConfig
	Udc      float64 // DC-link voltage, V
	DCSample uint32  // DC-link sample interval, µs
	Realtime bool    // pace Run to wall-clock time
}

func (c *Config) applyDefaults() {
	if c.Udc == 0 {
		c.Udc = 300
	}
	if c.DCSample == 0 {
		c.DCSample = 10000
	}
}

// Sim wires the core to simulated hardware. The core keeps its command
// registry, scheduler and clock in package state, so only one Sim should
// be live at a time; Close releases its timers.
type Sim struct {
	Params   *params.Store
	Bridge   *Bridge
	Load     *Load
	Rotor    *Rotor
	Monitor  *PowerMonitor
	DCLink   *dclink.Monitor
	Inverter *core.Inverter
	Currents *core.CurrentSampler

	cfg   Config
	udc   float64
	clock Clock
	link  *Link
}

func New(cfg Config) (*Sim, error) {
	cfg.applyDefaults()
	store := params.New()
	if cfg.Params != nil {
		if err := store.LoadJSON(cfg.Params); err != nil {
			return nil, fmt.Errorf("sim params: %w", err)
		}
	}
	gains := store.CurrentGains()
	if cfg.Load.Gain == 0 {
		cfg.Load.Gain = gains[0].Float()
	}

	core.SetGlobalTransport(nil)
	core.SetTime(0)

	s := &Sim{
		Params:  store,
		Bridge:  NewBridge(),
		Load:    NewLoad(cfg.Load),
		Rotor:   &Rotor{},
		Monitor: NewPowerMonitor(),
		cfg:     cfg,
		udc:     cfg.Udc,
	}
	s.DCLink = dclink.New(s.Monitor, dclink.Config{
		Divider: store.UdcDivider(),
		MaxAge:  core.TimerFromUS(5 * cfg.DCSample),
	})
	if err := s.DCLink.Configure(); err != nil {
		return nil, fmt.Errorf("sim dc-link: %w", err)
	}

	inv, err := core.NewInverter(core.InverterConfig{
		Stage:  s.Bridge,
		Params: store,
		DCLink: s.DCLink,
		Rotor:  s.Rotor,
		Clock:  s.clock.Now,
	})
	if err != nil {
		return nil, err
	}
	if err := inv.Init(); err != nil {
		return nil, fmt.Errorf("sim init: %w", err)
	}
	s.Inverter = inv

	s.Currents, err = core.NewCurrentSampler(inv, core.CurrentSamplerConfig{
		ADC:      s.Load,
		Channels: [2]core.ADCChannel{0, 1},
		Gain:     gains,
	})
	if err != nil {
		return nil, fmt.Errorf("sim current sensor: %w", err)
	}
	if err := s.Currents.Calibrate(16); err != nil {
		return nil, fmt.Errorf("sim calibrate: %w", err)
	}

	core.InitInverterCommands(inv, store)
	s.updateMonitor([3]float64{})
	if err := s.DCLink.Sample(); err != nil {
		return nil, fmt.Errorf("sim dc-link: %w", err)
	}
	s.DCLink.Start(core.TimerFromUS(cfg.DCSample))
	return s, nil
}

// SetUdc changes the simulated DC-link voltage.
func (s *Sim) SetUdc(v float64) {
	s.udc = v
}

func (s *Sim) updateMonitor(duty [3]float64) {
	div := s.Params.UdcDivider().Float()
	s.Monitor.Set(s.udc/div, s.Load.DCCurrent(duty))
}

// Step runs one PWM period: the control cycle, the plant, the current
// sample and any due scheduler work.
func (s *Sim) Step() {
	dt := s.clock.Advance(s.Inverter.Timer().PeriodTicks)
	s.Inverter.PeriodElapsed()

	duty, on := s.Bridge.Duties()
	s.Load.Step(duty, on, s.udc, dt)
	s.Rotor.Step(dt)
	s.updateMonitor(duty)
	s.Currents.Sample()

	core.ProcessTimers()
}

// StallNextCycle makes the next control cycle overrun its period by the
// given number of periods, as a slow interrupt on hardware would.
func (s *Sim) StallNextCycle(periods float64) {
	h := s.Inverter.Timer()
	s.clock.Stall(uint32(periods * float64(h.PeriodTicks)))
}

// Seconds is the simulated time since New.
func (s *Sim) Seconds() float64 {
	return s.clock.Seconds()
}

// Attach serves the command link on rw.
func (s *Sim) Attach(rw io.ReadWriter) *Link {
	s.link = NewLink(rw)
	core.SetGlobalTransport(s.link.Sender())
	return s.link
}

const pollEvery = 16 // periods between link polls

// Run steps the simulation until ctx is done, the link closes or, when
// periods is positive, that many periods have run.
func (s *Sim) Run(ctx context.Context, periods int) error {
	start := time.Now()
	t0 := s.clock.Seconds()
	for i := 0; periods <= 0 || i < periods; i++ {
		s.Step()
		if i%pollEvery != 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.link != nil {
			if err := s.link.Poll(); err != nil {
				return fmt.Errorf("sim link: %w", err)
			}
		}
		if s.cfg.Realtime {
			ahead := time.Duration((s.clock.Seconds()-t0)*float64(time.Second)) - time.Since(start)
			if ahead > time.Millisecond {
				time.Sleep(ahead)
			}
		}
	}
	if s.link != nil {
		return s.link.Poll()
	}
	return nil
}

// Close stops the simulation's scheduler timers and detaches the link.
func (s *Sim) Close() {
	s.DCLink.Stop()
	core.StartStatusReports(nil, 0)
	core.SetGlobalTransport(nil)
}
