package core

import "testing"

type fakeGPIO struct {
	levels map[GPIOPin]bool
	pullup map[GPIOPin]bool
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{levels: map[GPIOPin]bool{}, pullup: map[GPIOPin]bool{}}
}

func (g *fakeGPIO) ConfigureInputPullUp(pin GPIOPin) error {
	g.pullup[pin] = true
	g.levels[pin] = true
	return nil
}

func (g *fakeGPIO) ReadPin(pin GPIOPin) bool { return g.levels[pin] }

func TestFaultPinsBlockClear(t *testing.T) {
	gpio := newFakeGPIO()
	pins, err := NewFaultPins(gpio,
		FaultPin{Kind: FaultDesat, Pin: 6, ActiveLow: true},
		FaultPin{Kind: FaultEmergencyStop, Pin: 7, ActiveLow: true},
	)
	if err != nil {
		t.Fatal(err)
	}
	if !gpio.pullup[6] || !gpio.pullup[7] {
		t.Fatal("inputs not configured")
	}

	stage := newMockStage()
	inv, _ := NewInverter(InverterConfig{Stage: stage, Params: defaultParams(), Faults: pins})
	inv.Init()

	if k := pins.Poll(inv); k != FaultNone || inv.Tripped() {
		t.Fatalf("idle pins tripped: %v", k)
	}
	gpio.levels[7] = false
	if k := pins.Poll(inv); k != FaultEmergencyStop || inv.Cause() != FaultEmergencyStop {
		t.Fatalf("poll = %v cause %v", k, inv.Cause())
	}
	if err := inv.ClearTrip(); err == nil {
		t.Fatal("cleared with estop still asserted")
	}
	gpio.levels[7] = true
	if err := inv.ClearTrip(); err != nil {
		t.Fatalf("ClearTrip = %v", err)
	}
}

func TestFaultPinsPolledFromScheduler(t *testing.T) {
	resetTimers()
	SetTime(0)
	defer SetTime(0)
	defer resetTimers()

	gpio := newFakeGPIO()
	pins, _ := NewFaultPins(gpio, FaultPin{Kind: FaultBreak, Pin: 2})
	gpio.levels[2] = false
	inv, _ := newTestInverter(defaultParams(), nil)
	pins.StartPolling(inv, 100)

	ProcessTimers()
	if inv.Tripped() {
		t.Fatal("polled early")
	}
	gpio.levels[2] = true
	SetTime(100)
	ProcessTimers()
	if inv.Cause() != FaultBreak {
		t.Errorf("cause %v", inv.Cause())
	}
}
