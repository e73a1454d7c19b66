package core

import (
	"sync/atomic"

	"gosine/errcode"
	"gosine/x/mathx"
)

// InverterConfig wires an Inverter to its collaborators. Stage and Params
// are required. Faults defaults to the stage's own fault inputs.
//
// Clock times each cycle for the overrun check. It must keep counting in
// system timer ticks while the PWM interrupt runs, so targets pass the
// raw hardware counter rather than GetTime, which only moves when
// something copies the counter in. Nil means GetTime.
type InverterConfig struct {
	Stage  PowerStage
	Params Parameters
	DCLink DCLinkSensor
	Rotor  RotorSensor
	Faults FaultInputs
	Clock  func() uint32
}

// Inverter is the PWM generation core. Three contexts touch it:
//
//   - PWM context: PeriodElapsed, once per timer period.
//   - fault context: FaultSignaled and ReportCurrents, preempting PWM.
//   - scheduler context: setters, ClearTrip and the read accessors.
//
// Only the trip latch, the angle word and single-word commands cross
// contexts.
type Inverter struct {
	stage  PowerStage
	params Parameters
	rotor  RotorSensor
	clock  func() uint32

	trip  *TripMonitor
	modes *ModeMachine
	timer *TimerConfigurator
	synth Synthesizer
	angle AngleIntegrator

	ampnom int32 // atomic Fixed, % of full modulation
	fslip  int32 // atomic Fixed, Hz

	busy   uint32 // atomic, a cycle is running
	cycles uint32 // atomic
	misses uint32 // atomic
	amp    uint32 // atomic, last amplitude digits

	// PWM context only.
	handle   TimerHandle
	outputOn bool
}

func NewInverter(cfg InverterConfig) (*Inverter, error) {
	if cfg.Stage == nil || cfg.Params == nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "new_inverter", Msg: "stage and params required"}
	}
	faults := cfg.Faults
	if faults == nil {
		faults = cfg.Stage
	}
	clock := cfg.Clock
	if clock == nil {
		clock = GetTime
	}
	trip := NewTripMonitor(cfg.Stage, faults)
	return &Inverter{
		stage:  cfg.Stage,
		params: cfg.Params,
		rotor:  cfg.Rotor,
		clock:  clock,
		trip:   trip,
		modes:  NewModeMachine(trip, cfg.Params, cfg.DCLink),
		timer:  NewTimerConfigurator(cfg.Stage),
	}, nil
}

// Init puts the stage in a known safe state and applies the initial timer
// configuration. Call it before enabling the PWM interrupt.
func (inv *Inverter) Init() error {
	inv.stage.DisableOutput()
	inv.stage.SetCompares(DisabledCompares)
	inv.outputOn = false
	return inv.reconfigure()
}

// PeriodElapsed runs one control cycle. A call that arrives while the
// previous cycle is still running, or a cycle that overruns its period,
// trips the bridge with FaultDeadline.
func (inv *Inverter) PeriodElapsed() {
	if !atomic.CompareAndSwapUint32(&inv.busy, 0, 1) {
		inv.deadlineMiss(0)
		return
	}
	start := inv.clock()
	inv.cycle()
	if elapsed := inv.clock() - start; inv.handle.BudgetTicks != 0 && elapsed > inv.handle.BudgetTicks {
		inv.deadlineMiss(elapsed)
	}
	atomic.AddUint32(&inv.cycles, 1)
	atomic.StoreUint32(&inv.busy, 0)
}

func (inv *Inverter) cycle() {
	mode, changed := inv.modes.Step()
	if changed {
		inv.disable()
		if err := inv.reconfigure(); err != nil {
			DebugAsync("[INV] timer config failed: " + err.Error())
			inv.modes.ForceOff()
			mode = ModeOff
		}
	}

	if mode == ModeOff {
		inv.stage.SetCompares(inv.synth.Compute(inv.angle.Angle(), 0, ModeOff))
		atomic.StoreUint32(&inv.amp, 0)
		return
	}

	inv.synth.Configure(inv.synthConfig())
	amp := inv.amplitudeDigits()
	if mode.Rotating() {
		if mode.RotorSynchronous() && inv.rotor != nil {
			inv.angle.SetRotor(inv.rotor.RotorAngle())
		}
		lim := LimitsFrom(inv.params)
		if mode == ModeACHeat {
			lim = HeatLimits(inv.params)
		}
		fslip := Fixed(atomic.LoadInt32(&inv.fslip))
		inv.angle.Advance(fslip, inv.handle.PeriodTicks, lim)
	}
	set := inv.synth.Compute(inv.angle.Angle(), amp, mode)
	atomic.StoreUint32(&inv.amp, uint32(amp))

	if inv.trip.Tripped() {
		return
	}
	inv.stage.SetCompares(set)
	if !inv.outputOn {
		inv.stage.EnableOutput()
		inv.outputOn = true
		// A trip landing between the check and the enable has already
		// run its disable; one landing here has not.
		if inv.trip.Tripped() {
			inv.disable()
		}
	}
}

func (inv *Inverter) disable() {
	inv.stage.DisableOutput()
	inv.stage.SetCompares(DisabledCompares)
	inv.outputOn = false
}

func (inv *Inverter) reconfigure() error {
	dtp := DeadTimeAndPolarity{DeadTime: inv.params.DeadTime(), Polarity: inv.params.Polarity()}
	h, err := inv.timer.Configure(dtp, PWMDigits(inv.params.PwmFrequency()))
	if err != nil {
		return err
	}
	inv.handle = h
	return nil
}

func (inv *Inverter) synthConfig() SynthConfig {
	p := inv.params
	return SynthConfig{
		Digits:    inv.handle.Digits,
		MinPulse:  p.MinPulse(),
		ChargeMax: percentOf(p.ChargeMax(), dutyMax),
		HeatMax:   percentOf(p.HeatMax(), SineMaxAmp),
	}
}

// amplitudeDigits clamps the commanded amplitude to [0, AmplitudeMax]
// and scales it to synthesizer digits.
func (inv *Inverter) amplitudeDigits() uint16 {
	amp := mathx.Clamp(Fixed(atomic.LoadInt32(&inv.ampnom)), 0, inv.params.AmplitudeMax())
	return percentOf(amp, SineMaxAmp)
}

// percentOf returns pct% of full, saturated to [0, full].
func percentOf(pct Fixed, full uint16) uint16 {
	v := int64(mathx.Clamp(pct, 0, FixedFromInt(100))) * int64(full) / int64(FixedFromInt(100))
	return uint16(v)
}

func (inv *Inverter) deadlineMiss(elapsed uint32) {
	atomic.AddUint32(&inv.misses, 1)
	RecordTiming(EvtDeadlineMiss, 0, GetTime(), elapsed, inv.handle.BudgetTicks)
	inv.trip.Trip(FaultDeadline)
}

// FaultSignaled is called from the fault context on a hardware break,
// desaturation or external stop.
func (inv *Inverter) FaultSignaled(kind FaultKind) {
	inv.trip.Trip(kind)
}

// ReportCurrents feeds two measured phase currents to the overcurrent
// check. Called from the ADC completion context.
func (inv *Inverter) ReportCurrents(il1, il2 Fixed) {
	inv.trip.CheckCurrents(il1, il2, inv.params.OvercurrentThreshold())
}

// SetOpmode requests a mode transition applied at the next period.
func (inv *Inverter) SetOpmode(mode OperatingMode) error {
	return inv.modes.Request(mode)
}

// SetAmpnom sets the commanded amplitude in percent. Out-of-range values
// are clamped each cycle.
func (inv *Inverter) SetAmpnom(amp Fixed) {
	atomic.StoreInt32(&inv.ampnom, int32(amp))
}

// SetFslip sets the commanded slip (Sine: stator) frequency in Hz.
func (inv *Inverter) SetFslip(f Fixed) {
	atomic.StoreInt32(&inv.fslip, int32(f))
}

// ClearTrip re-arms the trip latch if no fault is still present. The mode
// stays Off until requested again.
func (inv *Inverter) ClearTrip() error {
	return inv.trip.Clear(inv.params.OvercurrentThreshold())
}

// Timer returns the applied timer configuration. Read it from the PWM
// context only.
func (inv *Inverter) Timer() TimerHandle {
	return inv.handle
}

func (inv *Inverter) Angle() Angle {
	return inv.angle.Angle()
}

func (inv *Inverter) Tripped() bool {
	return inv.trip.Tripped()
}

func (inv *Inverter) Cause() FaultKind {
	return inv.trip.Cause()
}

func (inv *Inverter) TripLatches() uint32 {
	return inv.trip.Latches()
}

func (inv *Inverter) Opmode() OperatingMode {
	return inv.modes.Current()
}

// Status is a telemetry snapshot. Fields are read one at a time and may
// straddle a period boundary.
type Status struct {
	Mode           OperatingMode
	Tripped        bool
	Cause          FaultKind
	Angle          Angle
	Frequency      Fixed // applied, after clamping
	Direction      Direction
	Amplitude      uint16 // synthesizer digits
	PeakCurrent    Fixed
	Cycles         uint32
	DeadlineMisses uint32
}

func (inv *Inverter) Status() Status {
	return Status{
		Mode:           inv.modes.Current(),
		Tripped:        inv.trip.Tripped(),
		Cause:          inv.trip.Cause(),
		Angle:          inv.angle.Angle(),
		Frequency:      inv.angle.Frequency(),
		Direction:      inv.angle.Direction(),
		Amplitude:      uint16(atomic.LoadUint32(&inv.amp)),
		PeakCurrent:    inv.trip.PeakCurrent(),
		Cycles:         atomic.LoadUint32(&inv.cycles),
		DeadlineMisses: atomic.LoadUint32(&inv.misses),
	}
}
