package core

import "gosine/protocol"

// statusReporter pushes inverter_status on a scheduler timer and a
// trip_event the first report after each latched trip.
type statusReporter struct {
	timer    Timer
	inv      *Inverter
	interval uint32
	latches  uint32 // trip latches already reported
}

var reporter statusReporter

// StartStatusReports (re)starts periodic status reports every interval
// system ticks. Zero stops them. A trip already latched is reported again
// on the first event.
func StartStatusReports(inv *Inverter, interval uint32) {
	CancelTimer(&reporter.timer)
	reporter.inv = inv
	reporter.interval = interval
	if interval == 0 || inv == nil {
		return
	}
	reporter.latches = inv.TripLatches()
	if inv.Tripped() {
		reporter.latches--
	}
	reporter.timer.WakeTime = GetTime() + interval
	reporter.timer.Handler = reportEvent
	ScheduleTimer(&reporter.timer)
}

func reportEvent(t *Timer) uint8 {
	r := &reporter
	n := r.inv.TripLatches()
	st := r.inv.Status()
	if n != r.latches {
		r.latches = n
		if st.Cause != FaultNone {
			clock := GetTime()
			SendResponse("trip_event", func(output protocol.OutputBuffer) {
				protocol.EncodeVLQUint(output, uint32(st.Cause))
				protocol.EncodeVLQUint(output, clock)
			})
		}
	}
	sendStatus(st)
	return rescheduleAfter(t, r.interval)
}

// Every runs fn from the scheduler every interval ticks.
func Every(t *Timer, interval uint32, fn func()) {
	CancelTimer(t)
	t.WakeTime = GetTime() + interval
	t.Handler = func(t *Timer) uint8 {
		fn()
		return rescheduleAfter(t, interval)
	}
	ScheduleTimer(t)
}

// rescheduleAfter advances WakeTime by interval, skipping missed slots
// rather than firing them back to back.
func rescheduleAfter(t *Timer, interval uint32) uint8 {
	t.WakeTime += interval
	if timerBefore(t.WakeTime, currentTime) {
		t.WakeTime = currentTime + interval
	}
	return SF_RESCHEDULE
}
