package errcode

import "errors"

// Code is a stable error identifier carried over the command link.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

const (
	OK            Code = "ok"
	Busy          Code = "busy"
	InvalidParams Code = "invalid_params"
	Timeout       Code = "timeout"

	// Inverter control path.
	TripActive         Code = "trip_active"
	PreconditionFailed Code = "precondition_failed"
	InvalidMode        Code = "invalid_mode"
	FaultAsserted      Code = "fault_asserted"
	NotTripped         Code = "not_tripped"
	SensorUnavailable  Code = "sensor_unavailable"

	// Parameter store.
	UnknownParam Code = "unknown_param"
	OutOfRange   Code = "out_of_range"

	// Link.
	InvalidPayload Code = "invalid_payload"
	UnknownCommand Code = "unknown_command"

	Error Code = "error" // generic fallback
)

// E keeps an operation name and cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap builds an *E. A nil err with an OK code returns nil.
func Wrap(c Code, op, msg string, err error) error {
	if c == OK && err == nil {
		return nil
	}
	return &E{C: c, Op: op, Msg: msg, Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}
