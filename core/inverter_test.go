package core

import (
	"testing"

	"gosine/errcode"
)

func TestNewInverterRequiresCollaborators(t *testing.T) {
	if _, err := NewInverter(InverterConfig{Params: defaultParams()}); errcode.Of(err) != errcode.InvalidParams {
		t.Errorf("missing stage: %v", err)
	}
}

func TestInitLeavesStageSafe(t *testing.T) {
	_, stage := newTestInverter(defaultParams(), nil)
	if stage.enabled || stage.compares != DisabledCompares {
		t.Error("Init left outputs live")
	}
	if stage.top != 2048 || stage.deadTicks != 63 {
		t.Errorf("timer top=%d dead=%d", stage.top, stage.deadTicks)
	}
}

func TestSineRunEnablesAfterFirstSynthesis(t *testing.T) {
	inv, stage := newTestInverter(defaultParams(), nil)
	inv.SetAmpnom(FixedFromInt(50))
	inv.SetFslip(FixedFromInt(100))
	if err := inv.SetOpmode(ModeSine); err != nil {
		t.Fatal(err)
	}
	stage.events = nil
	inv.PeriodElapsed()

	if inv.Opmode() != ModeSine || !stage.enabled {
		t.Fatalf("mode=%v enabled=%v", inv.Opmode(), stage.enabled)
	}
	// disable on entry, then compares, then enable.
	want := []string{"disable", "set", "set", "enable"}
	if len(stage.events) != len(want) {
		t.Fatalf("events %v, want %v", stage.events, want)
	}
	for i := range want {
		if stage.events[i] != want[i] {
			t.Fatalf("events %v, want %v", stage.events, want)
		}
	}
	if stage.compares.Legs != LegsAll || stage.compares == DisabledCompares {
		t.Errorf("compares %v", stage.compares)
	}

	// 100 Hz at 17.6 kHz is about 0.37 angle units per period.
	a0 := inv.Angle()
	for i := 0; i < 100; i++ {
		inv.PeriodElapsed()
	}
	if inv.Angle() == a0 {
		t.Error("angle did not advance")
	}
	if stage.enables != 1 {
		t.Errorf("output enabled %d times", stage.enables)
	}
	st := inv.Status()
	if st.Frequency != FixedFromInt(100) || st.Direction != Forward || st.Cycles != 101 {
		t.Errorf("status %+v", st)
	}
	if st.Amplitude != percentOf(FixedFromInt(50), SineMaxAmp) {
		t.Errorf("amplitude digits %d", st.Amplitude)
	}
}

func TestOffIsIdempotent(t *testing.T) {
	inv, stage := newTestInverter(defaultParams(), nil)
	inv.SetAmpnom(FixedFromInt(80))
	inv.SetFslip(FixedFromInt(50))
	for i := 0; i < 50; i++ {
		inv.PeriodElapsed()
		if stage.compares != DisabledCompares || stage.enabled {
			t.Fatalf("period %d in Off: compares %v enabled %v", i, stage.compares, stage.enabled)
		}
	}
	if stage.enables != 0 {
		t.Errorf("Off enabled the output %d times", stage.enables)
	}
	if inv.Angle() != 0 {
		t.Errorf("Off moved the angle to %d", inv.Angle())
	}
}

func TestTripSilencesBeforeNextPeriod(t *testing.T) {
	inv, stage := newTestInverter(defaultParams(), nil)
	inv.SetAmpnom(FixedFromInt(50))
	inv.SetFslip(FixedFromInt(10))
	inv.SetOpmode(ModeSine)
	inv.PeriodElapsed()
	inv.PeriodElapsed()
	enables := stage.enables

	inv.FaultSignaled(FaultDesat)
	// Silenced inside the fault call itself.
	if stage.enabled || stage.compares != DisabledCompares {
		t.Fatalf("fault left enabled=%v compares=%v", stage.enabled, stage.compares)
	}
	if !inv.Tripped() || inv.Cause() != FaultDesat {
		t.Fatalf("tripped=%v cause=%v", inv.Tripped(), inv.Cause())
	}

	for i := 0; i < 5; i++ {
		inv.PeriodElapsed()
		if stage.enabled || stage.compares != DisabledCompares {
			t.Fatalf("period %d after trip: enabled=%v compares=%v", i, stage.enabled, stage.compares)
		}
	}
	if stage.enables != enables {
		t.Error("output re-enabled after trip")
	}
	if inv.Opmode() != ModeOff {
		t.Errorf("mode after trip = %v", inv.Opmode())
	}
}

func TestAmplitudeAboveMaxClamps(t *testing.T) {
	run := func(amp Fixed) PhaseCompareSet {
		p := defaultParams()
		p.ampmax = FixedFromInt(80)
		inv, stage := newTestInverter(p, nil)
		inv.SetAmpnom(amp)
		inv.SetFslip(FixedFromInt(25))
		inv.SetOpmode(ModeSine)
		for i := 0; i < 7; i++ {
			inv.PeriodElapsed()
		}
		return stage.compares
	}
	atMax := run(FixedFromInt(80))
	if over := run(FixedFromInt(80) + 1); over != atMax {
		t.Errorf("AmpMax+1 gave %v, AmpMax gave %v", over, atMax)
	}
	if neg := run(-FixedFromInt(5)); neg != run(0) {
		t.Errorf("negative amplitude gave %v", neg)
	}
}

func TestOvercurrentClearRefusedWhileHigh(t *testing.T) {
	inv, stage := newTestInverter(defaultParams(), nil)
	inv.SetOpmode(ModeSine)
	inv.PeriodElapsed()

	inv.ReportCurrents(FixedFromInt(140), FixedFromInt(-30))
	if !inv.Tripped() || stage.enabled {
		t.Fatal("overcurrent did not trip")
	}
	if err := inv.ClearTrip(); errcode.Of(err) != errcode.FaultAsserted {
		t.Errorf("ClearTrip with current high = %v", err)
	}
	if !inv.Tripped() {
		t.Fatal("refused clear dropped the latch")
	}

	inv.ReportCurrents(FixedFromInt(20), FixedFromInt(-10))
	if err := inv.ClearTrip(); err != nil {
		t.Fatalf("ClearTrip = %v", err)
	}
	inv.PeriodElapsed()
	if inv.Opmode() != ModeOff || stage.enabled {
		t.Error("clear must not restart the bridge by itself")
	}
}

func TestReentrantPeriodIsDeadlineMiss(t *testing.T) {
	inv, stage := newTestInverter(defaultParams(), nil)
	inv.SetAmpnom(FixedFromInt(30))
	inv.SetOpmode(ModeSine)
	inv.PeriodElapsed()

	fired := false
	stage.onSet = func() {
		if !fired {
			fired = true
			inv.PeriodElapsed()
		}
	}
	inv.PeriodElapsed()
	stage.onSet = nil

	if inv.Cause() != FaultDeadline {
		t.Fatalf("cause = %v, want deadline", inv.Cause())
	}
	if stage.enabled {
		t.Error("output left enabled after deadline miss")
	}
	if st := inv.Status(); st.DeadlineMisses != 1 {
		t.Errorf("misses = %d", st.DeadlineMisses)
	}
}

func TestOverrunIsDeadlineMiss(t *testing.T) {
	SetTime(0)
	defer SetTime(0)
	inv, stage := newTestInverter(defaultParams(), nil)
	inv.SetOpmode(ModeSine)
	inv.PeriodElapsed()

	stage.onSet = func() { SetTime(GetTime() + 10000) }
	inv.PeriodElapsed()
	stage.onSet = nil

	if inv.Cause() != FaultDeadline || stage.enabled {
		t.Errorf("cause=%v enabled=%v", inv.Cause(), stage.enabled)
	}
}

func TestOverrunSeenThroughCycleClock(t *testing.T) {
	// The system time is only refreshed outside the cycle on hardware,
	// so it stays frozen here while the cycle clock runs on.
	SetTime(0)
	defer SetTime(0)
	var now uint32
	stage := newMockStage()
	inv, err := NewInverter(InverterConfig{
		Stage:  stage,
		Params: defaultParams(),
		Clock:  func() uint32 { return now },
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := inv.Init(); err != nil {
		t.Fatal(err)
	}
	inv.SetOpmode(ModeSine)
	inv.PeriodElapsed()
	if inv.Tripped() {
		t.Fatalf("tripped on a prompt cycle: %v", inv.Cause())
	}

	stage.onSet = func() { now += 2 * inv.Timer().BudgetTicks }
	inv.PeriodElapsed()
	stage.onSet = nil

	st := inv.Status()
	if st.Cause != FaultDeadline || st.DeadlineMisses != 1 || stage.enabled {
		t.Errorf("cause=%v misses=%d enabled=%v", st.Cause, st.DeadlineMisses, stage.enabled)
	}
	if GetTime() != 0 {
		t.Errorf("system time moved to %d", GetTime())
	}
}

func TestTimerReconfiguredOnlyOnModeChange(t *testing.T) {
	p := defaultParams()
	inv, stage := newTestInverter(p, nil)
	inv.SetOpmode(ModeSine)
	inv.PeriodElapsed()

	p.deadtime = 100
	p.pwmfrq = 2
	for i := 0; i < 3; i++ {
		inv.PeriodElapsed()
	}
	if stage.deadTicks != 63 || stage.top != 2048 {
		t.Fatalf("live param change reached the timer: dead=%d top=%d", stage.deadTicks, stage.top)
	}

	inv.SetOpmode(ModeOff)
	inv.PeriodElapsed()
	if stage.deadTicks != 100 || stage.top != 8192 {
		t.Errorf("after mode change dead=%d top=%d", stage.deadTicks, stage.top)
	}
}

func TestBoostDrivesSingleLeg(t *testing.T) {
	dc := &fakeDCLink{v: FixedFromInt(200), ok: true}
	inv, stage := newTestInverter(defaultParams(), dc)
	inv.SetAmpnom(FixedFromInt(25))
	if err := inv.SetOpmode(ModeBoost); err != nil {
		t.Fatal(err)
	}
	inv.PeriodElapsed()
	if stage.compares.Legs != LegU || stage.compares.Compare[1] != 0 || stage.compares.Compare[2] != 0 {
		t.Errorf("boost compares %v", stage.compares)
	}
	if inv.Angle() != 0 {
		t.Error("boost advanced the angle")
	}
}

func TestACHeatHoldsAngle(t *testing.T) {
	inv, stage := newTestInverter(defaultParams(), nil)
	inv.SetAmpnom(FixedFromInt(20))
	inv.SetFslip(FixedFromInt(150))
	if err := inv.SetOpmode(ModeACHeat); err != nil {
		t.Fatal(err)
	}
	inv.PeriodElapsed()
	if !stage.enabled || stage.compares.Legs != LegsAll {
		t.Fatalf("enabled=%v compares=%v", stage.enabled, stage.compares)
	}
	a0, c0 := inv.Angle(), stage.compares
	for i := 0; i < 20; i++ {
		inv.PeriodElapsed()
	}
	if inv.Angle() != a0 || stage.compares != c0 {
		t.Errorf("field moved: angle %d -> %d, compares %v -> %v", a0, inv.Angle(), c0, stage.compares)
	}
	if st := inv.Status(); st.Frequency != 0 {
		t.Errorf("applied frequency %v, want 0", st.Frequency)
	}
}

func TestACHeatFrequencyCeiling(t *testing.T) {
	p := defaultParams()
	p.heatfrq = FixedFromInt(2)
	inv, _ := newTestInverter(p, nil)
	inv.SetAmpnom(FixedFromInt(20))
	inv.SetFslip(FixedFromInt(150))
	inv.SetOpmode(ModeACHeat)
	for i := 0; i < 3; i++ {
		inv.PeriodElapsed()
	}
	if st := inv.Status(); st.Frequency != FixedFromInt(2) {
		t.Errorf("applied frequency %v, want 2", st.Frequency)
	}

	// The direction follows the command at once, whatever dirchrpm says.
	inv.SetFslip(FixedFromInt(-150))
	inv.PeriodElapsed()
	if st := inv.Status(); st.Frequency != FixedFromInt(-2) || st.Direction != Reverse {
		t.Errorf("reversed: freq %v dir %v", st.Frequency, st.Direction)
	}
}

func TestRunFollowsRotor(t *testing.T) {
	stage := newMockStage()
	rotor := &fakeRotor{a: 12345}
	inv, _ := NewInverter(InverterConfig{Stage: stage, Params: defaultParams(), Rotor: rotor})
	inv.Init()
	inv.SetOpmode(ModeRun)
	inv.PeriodElapsed()
	if inv.Angle() != 12345 {
		t.Errorf("angle %d, want rotor angle with zero slip", inv.Angle())
	}
	rotor.a = 20000
	inv.PeriodElapsed()
	if inv.Angle() != 20000 {
		t.Errorf("angle %d after rotor moved", inv.Angle())
	}
}
