package core

import (
	"sync/atomic"

	"gosine/errcode"
	"gosine/x/mathx"
)

// FaultKind names what tripped the bridge.
type FaultKind uint8

const (
	FaultNone FaultKind = iota
	FaultBreak
	FaultDesat
	FaultOvercurrent
	FaultDeadline
	FaultEmergencyStop
)

func (k FaultKind) String() string {
	switch k {
	case FaultNone:
		return "none"
	case FaultBreak:
		return "break"
	case FaultDesat:
		return "desat"
	case FaultOvercurrent:
		return "overcurrent"
	case FaultDeadline:
		return "deadline"
	case FaultEmergencyStop:
		return "estop"
	}
	return "fault(" + utoa(uint32(k)) + ")"
}

// FaultInputs reads the present level of hardware fault signals. Every
// PowerStage satisfies it.
type FaultInputs interface {
	FaultAsserted(kind FaultKind) bool
}

// Hardware fault inputs re-checked before a clear.
var hardwareFaults = [...]FaultKind{FaultBreak, FaultDesat, FaultEmergencyStop}

// TripMonitor holds the write-once trip latch. Trip runs in the fault
// context and takes no locks.
type TripMonitor struct {
	stage  PowerStage
	inputs FaultInputs

	latch uint32 // atomic FaultKind, FaultNone while armed
	trips uint32 // atomic, every Trip call including repeats
	sets  uint32 // atomic, Trip calls that set the latch
	peak  int32  // atomic, last peak |phase current| (Fixed)
}

func NewTripMonitor(stage PowerStage, inputs FaultInputs) *TripMonitor {
	return &TripMonitor{stage: stage, inputs: inputs}
}

// Trip silences the bridge, then latches kind if the latch is armed. It
// reports whether this call set the latch.
func (m *TripMonitor) Trip(kind FaultKind) bool {
	m.stage.DisableOutput()
	m.stage.SetCompares(DisabledCompares)
	atomic.AddUint32(&m.trips, 1)
	if !atomic.CompareAndSwapUint32(&m.latch, uint32(FaultNone), uint32(kind)) {
		return false
	}
	atomic.AddUint32(&m.sets, 1)
	RecordTiming(EvtTrip, uint8(kind), GetTime(), 0, 0)
	DebugAsync("[INV] trip " + kind.String())
	return true
}

// CheckCurrents compares two measured phase currents and the derived
// third against limit, tripping on overcurrent.
func (m *TripMonitor) CheckCurrents(il1, il2, limit Fixed) bool {
	il3 := -(il1 + il2)
	peak := mathx.Max3(mathx.Abs(il1), mathx.Abs(il2), mathx.Abs(il3))
	atomic.StoreInt32(&m.peak, int32(peak))
	if peak > limit {
		m.Trip(FaultOvercurrent)
		return true
	}
	return false
}

// PeakCurrent returns the last peak phase current seen by CheckCurrents.
func (m *TripMonitor) PeakCurrent() Fixed {
	return Fixed(atomic.LoadInt32(&m.peak))
}

func (m *TripMonitor) Tripped() bool {
	return atomic.LoadUint32(&m.latch) != uint32(FaultNone)
}

// Cause returns the first fault latched since the last clear.
func (m *TripMonitor) Cause() FaultKind {
	return FaultKind(atomic.LoadUint32(&m.latch))
}

func (m *TripMonitor) TripCount() uint32 {
	return atomic.LoadUint32(&m.trips)
}

// Latches counts the trips that set the latch. A trip, clear and trip
// again with the same cause moves it twice.
func (m *TripMonitor) Latches() uint32 {
	return atomic.LoadUint32(&m.sets)
}

// Clear re-arms the latch once no fault condition is still present.
func (m *TripMonitor) Clear(limit Fixed) error {
	cause := m.Cause()
	if cause == FaultNone {
		return errcode.NotTripped
	}
	if m.inputs != nil {
		for _, k := range hardwareFaults {
			if m.inputs.FaultAsserted(k) {
				return &errcode.E{C: errcode.FaultAsserted, Op: "clear_trip", Msg: k.String()}
			}
		}
	}
	if m.PeakCurrent() > limit {
		return &errcode.E{C: errcode.FaultAsserted, Op: "clear_trip", Msg: FaultOvercurrent.String()}
	}
	if !atomic.CompareAndSwapUint32(&m.latch, uint32(cause), uint32(FaultNone)) {
		return errcode.Busy
	}
	RecordTiming(EvtTripClear, uint8(cause), GetTime(), 0, 0)
	DebugAsync("[INV] trip cleared (" + cause.String() + ")")
	return nil
}
