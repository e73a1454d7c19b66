package core

import "gosine/errcode"

// GPIOPin identifies a hardware GPIO pin number.
type GPIOPin uint32

// GPIODriver is the input side of the target's GPIO HAL.
type GPIODriver interface {
	ConfigureInputPullUp(pin GPIOPin) error
	ReadPin(pin GPIOPin) bool
}

// FaultPin maps one digital input to a fault kind.
type FaultPin struct {
	Kind      FaultKind
	Pin       GPIOPin
	ActiveLow bool
}

// FaultPins reads fault signals wired to plain GPIO inputs. It serves as
// the trip monitor's FaultInputs and can poll the pins from the
// scheduler on boards without a hardware break input.
type FaultPins struct {
	gpio  GPIODriver
	pins  []FaultPin
	timer Timer
}

func NewFaultPins(gpio GPIODriver, pins ...FaultPin) (*FaultPins, error) {
	if gpio == nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "fault_pins", Msg: "gpio driver required"}
	}
	for _, p := range pins {
		if err := gpio.ConfigureInputPullUp(p.Pin); err != nil {
			return nil, errcode.Wrap(errcode.SensorUnavailable, "fault_pins", "pin "+utoa(uint32(p.Pin)), err)
		}
	}
	return &FaultPins{gpio: gpio, pins: pins}, nil
}

func (f *FaultPins) asserted(p FaultPin) bool {
	return f.gpio.ReadPin(p.Pin) != p.ActiveLow
}

// FaultAsserted reports whether any pin of the given kind is active.
func (f *FaultPins) FaultAsserted(kind FaultKind) bool {
	for _, p := range f.pins {
		if p.Kind == kind && f.asserted(p) {
			return true
		}
	}
	return false
}

// Poll trips inv on the first active pin and returns its kind.
func (f *FaultPins) Poll(inv *Inverter) FaultKind {
	for _, p := range f.pins {
		if f.asserted(p) {
			inv.FaultSignaled(p.Kind)
			return p.Kind
		}
	}
	return FaultNone
}

// StartPolling polls the pins every interval system ticks.
func (f *FaultPins) StartPolling(inv *Inverter, interval uint32) {
	Every(&f.timer, interval, func() { f.Poll(inv) })
}
