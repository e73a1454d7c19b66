package core

// Timer is a scheduler entry run from ProcessTimers. Handler returns
// SF_RESCHEDULE after moving WakeTime forward, or SF_DONE.
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

var (
	timerList   *Timer
	currentTime uint32
)

// timerBefore compares wake times modulo 2^32.
func timerBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// ScheduleTimer adds a timer to the schedule
func ScheduleTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	insertTimer(t)
}

// CancelTimer removes t if it is scheduled.
func CancelTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for p := &timerList; *p != nil; p = &(*p).Next {
		if *p == t {
			*p = t.Next
			t.Next = nil
			return
		}
	}
}

// insertTimer inserts a timer in sorted order by WakeTime
func insertTimer(t *Timer) {
	p := &timerList
	for *p != nil && !timerBefore(t.WakeTime, (*p).WakeTime) {
		p = &(*p).Next
	}
	t.Next = *p
	*p = t
}

// TimerDispatch processes due timers. Handlers run with interrupts
// enabled so the PWM and fault contexts keep preempting them.
func TimerDispatch() {
	for {
		state := disableInterrupts()
		timer := timerList
		if timer == nil || timerBefore(currentTime, timer.WakeTime) {
			restoreInterrupts(state)
			return
		}
		timerList = timer.Next
		timer.Next = nil
		restoreInterrupts(state)

		if timer.Handler(timer) == SF_RESCHEDULE {
			ScheduleTimer(timer)
		}
	}
}

// resetTimers drops every scheduled timer (tests).
func resetTimers() {
	timerList = nil
	currentTime = 0
}
