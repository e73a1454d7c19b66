package core

import "sync/atomic"

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures a control-path event for post-mortem analysis
type TimingEvent struct {
	EventType uint8
	Arg       uint8 // mode, fault kind or pwm digits
	Clock     uint32
	Value1    uint32
	Value2    uint32
}

// Event type codes
const (
	EvtModeChange   = 1 // Arg=new mode, v1=old mode
	EvtTrip         = 2 // Arg=fault kind
	EvtTripClear    = 3 // Arg=cleared fault kind
	EvtDeadlineMiss = 4 // v1=elapsed ticks, v2=budget
	EvtTimerConfig  = 5 // Arg=digits, v1=dead ticks, v2=polarity
	EvtRejected     = 6 // Arg=requested mode
	EvtParamSet     = 7 // Arg=param id, v1=raw value
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled gates DebugPrintln; DebugAsync and the ring ignore it.
	debugEnabled bool = false

	// Written from the PWM and fault contexts; the head is claimed
	// atomically so two contexts never share a slot.
	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint32

	// Async debug output channel
	debugChan chan string
)

var eventNames = [...]string{
	EvtModeChange:   "MODE",
	EvtTrip:         "TRIP!",
	EvtTripClear:    "TRIP_CLEAR",
	EvtDeadlineMiss: "DEADLINE!",
	EvtTimerConfig:  "TIMER_CFG",
	EvtRejected:     "REJECTED",
	EvtParamSet:     "PARAM",
}

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer.
// Never call it from the PWM or fault context.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Returns immediately even if channel is full (drops message)
func DebugAsync(msg string) {
	if debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
	}
}

// RecordTiming captures an event in the ring buffer. Safe from any
// context; never blocks.
func RecordTiming(eventType, arg uint8, clock, value1, value2 uint32) {
	idx := (atomic.AddUint32(&timingRingHead, 1) - 1) % TimingRingSize
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		Arg:       arg,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
}

// TimingEvents returns the ring contents oldest first, skipping empty slots.
func TimingEvents() []TimingEvent {
	out := make([]TimingEvent, 0, TimingRingSize)
	start := atomic.LoadUint32(&timingRingHead)
	for i := uint32(0); i < TimingRingSize; i++ {
		evt := timingRing[(start+i)%TimingRingSize]
		if evt.EventType != 0 {
			out = append(out, evt)
		}
	}
	return out
}

// DumpTimingRing outputs the timing ring buffer (call on shutdown/error)
func DumpTimingRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TIMING] === Timing Ring Dump ===")
	for _, evt := range TimingEvents() {
		name := "UNKNOWN"
		if int(evt.EventType) < len(eventNames) && eventNames[evt.EventType] != "" {
			name = eventNames[evt.EventType]
		}
		debugPrintln("[TIMING] " + name +
			" arg=" + utoa(uint32(evt.Arg)) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[TIMING] === End Dump ===")
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	for i := range timingRing {
		timingRing[i] = TimingEvent{}
	}
	atomic.StoreUint32(&timingRingHead, 0)
}
