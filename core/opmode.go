package core

import (
	"sync/atomic"

	"gosine/errcode"
)

// OperatingMode selects what the bridge is doing.
type OperatingMode uint8

const (
	ModeOff OperatingMode = iota
	ModeRun
	ModeManualRun
	ModeBoost
	ModeBuck
	ModeSine
	ModeACHeat

	modeCount
)

var modeNames = [modeCount]string{
	ModeOff:       "off",
	ModeRun:       "run",
	ModeManualRun: "manual",
	ModeBoost:     "boost",
	ModeBuck:      "buck",
	ModeSine:      "sine",
	ModeACHeat:    "acheat",
}

func (m OperatingMode) String() string {
	if m.Valid() {
		return modeNames[m]
	}
	return "mode(" + utoa(uint32(m)) + ")"
}

func (m OperatingMode) Valid() bool {
	return m < modeCount
}

// Rotating modes integrate the angle each period. AC heat does so only
// up to its own low ceiling.
func (m OperatingMode) Rotating() bool {
	switch m {
	case ModeRun, ModeManualRun, ModeSine, ModeACHeat:
		return true
	}
	return false
}

// RotorSynchronous modes add the rotor angle to the slip phase.
func (m OperatingMode) RotorSynchronous() bool {
	return m == ModeRun || m == ModeManualRun
}

// ParseMode maps a mode name back to its value.
func ParseMode(name string) (OperatingMode, bool) {
	for i, n := range modeNames {
		if n == name {
			return OperatingMode(i), true
		}
	}
	return ModeOff, false
}

const noPending = 0

// ModeMachine validates mode requests from the scheduler context and
// applies them at the start of a PWM period.
type ModeMachine struct {
	current uint32 // atomic OperatingMode
	pending uint32 // atomic mode+1, noPending when empty

	trip   *TripMonitor
	params Parameters
	dclink DCLinkSensor

	seenTrips uint32 // PWM context only
}

func NewModeMachine(trip *TripMonitor, params Parameters, dclink DCLinkSensor) *ModeMachine {
	return &ModeMachine{trip: trip, params: params, dclink: dclink}
}

// Current returns the mode the PWM context is running.
func (m *ModeMachine) Current() OperatingMode {
	return OperatingMode(atomic.LoadUint32(&m.current))
}

// Request records a transition. Off is always accepted and cannot be
// displaced by a later request before it is applied.
func (m *ModeMachine) Request(mode OperatingMode) error {
	if !mode.Valid() {
		return m.reject(mode, errcode.InvalidMode)
	}
	if mode == ModeOff {
		if m.Current() == ModeOff && atomic.LoadUint32(&m.pending) == noPending {
			return nil
		}
		atomic.StoreUint32(&m.pending, uint32(ModeOff)+1)
		return nil
	}
	if m.trip.Tripped() {
		return m.reject(mode, errcode.TripActive)
	}
	if err := m.precondition(mode); err != nil {
		return m.reject(mode, err)
	}
	for {
		p := atomic.LoadUint32(&m.pending)
		if p == uint32(ModeOff)+1 {
			return m.reject(mode, errcode.Busy)
		}
		if atomic.CompareAndSwapUint32(&m.pending, p, uint32(mode)+1) {
			return nil
		}
	}
}

// Step runs at the start of each PWM period. A set trip latch, or one
// that was set and cleared since the last period, forces Off and discards
// anything pending.
func (m *ModeMachine) Step() (OperatingMode, bool) {
	cur := m.Current()
	next := cur
	if n := m.trip.TripCount(); m.trip.Tripped() || n != m.seenTrips {
		m.seenTrips = n
		atomic.StoreUint32(&m.pending, noPending)
		next = ModeOff
	} else if p := atomic.SwapUint32(&m.pending, noPending); p != noPending {
		next = OperatingMode(p - 1)
		if err := m.precondition(next); err != nil {
			m.reject(next, err)
			next = cur
		}
	}
	if next == cur {
		return cur, false
	}
	m.set(cur, next)
	return next, true
}

// ForceOff drops to Off from the PWM context, e.g. when timer setup fails.
func (m *ModeMachine) ForceOff() {
	if cur := m.Current(); cur != ModeOff {
		m.set(cur, ModeOff)
	}
}

func (m *ModeMachine) set(from, to OperatingMode) {
	atomic.StoreUint32(&m.current, uint32(to))
	RecordTiming(EvtModeChange, uint8(to), GetTime(), uint32(from), 0)
	DebugAsync("[INV] opmode " + from.String() + " -> " + to.String())
}

// precondition checks the DC-link window for the charge modes.
func (m *ModeMachine) precondition(mode OperatingMode) error {
	var hi Fixed
	switch mode {
	case ModeBoost:
		hi = m.params.UdcBoostMax()
	case ModeBuck:
		hi = m.params.UdcBuckMax()
	default:
		return nil
	}
	if m.dclink == nil {
		return &errcode.E{C: errcode.PreconditionFailed, Op: "set_opmode", Msg: "no dc-link sensor"}
	}
	udc, ok := m.dclink.DCLinkVoltage()
	if !ok {
		return &errcode.E{C: errcode.PreconditionFailed, Op: "set_opmode", Msg: "no dc-link sample"}
	}
	if udc < m.params.UdcMin() || udc > hi {
		return &errcode.E{C: errcode.PreconditionFailed, Op: "set_opmode", Msg: "udc " + udc.String() + " outside window"}
	}
	return nil
}

func (m *ModeMachine) reject(mode OperatingMode, err error) error {
	RecordTiming(EvtRejected, uint8(mode), GetTime(), 0, 0)
	DebugAsync("[INV] opmode " + mode.String() + " rejected: " + err.Error())
	return err
}
