package core

// mockStage records every call the core makes on the power stage.
type mockStage struct {
	top         uint16
	deadTicks   uint16
	pol         Polarity
	periodCalls int
	deadCalls   int
	failPeriod  error

	enabled  bool
	enables  int
	disables int
	compares PhaseCompareSet
	sets     int
	events   []string

	faults map[FaultKind]bool
	onSet  func()
}

var _ PowerStage = (*mockStage)(nil)

func newMockStage() *mockStage {
	return &mockStage{faults: make(map[FaultKind]bool)}
}

func (m *mockStage) ConfigurePeriod(top uint16) error {
	if m.failPeriod != nil {
		return m.failPeriod
	}
	m.top = top
	m.periodCalls++
	m.events = append(m.events, "period")
	return nil
}

func (m *mockStage) ConfigureDeadTimeAndPolarity(ticks uint16, pol Polarity) error {
	m.deadTicks = ticks
	m.pol = pol
	m.deadCalls++
	m.events = append(m.events, "deadtime")
	return nil
}

func (m *mockStage) SetCompares(set PhaseCompareSet) {
	m.compares = set
	m.sets++
	m.events = append(m.events, "set")
	if m.onSet != nil {
		m.onSet()
	}
}

func (m *mockStage) EnableOutput() {
	m.enabled = true
	m.enables++
	m.events = append(m.events, "enable")
}

func (m *mockStage) DisableOutput() {
	m.enabled = false
	m.disables++
	m.events = append(m.events, "disable")
}

func (m *mockStage) FaultAsserted(kind FaultKind) bool {
	return m.faults[kind]
}

// fakeParams is a plain-struct Parameters.
type fakeParams struct {
	fmin, fmax, dirchrpm Fixed
	polepairs            int32
	ampmax, heatmax, chg Fixed
	heatfrq              Fixed
	ocur                 Fixed
	deadtime             uint8
	pol                  Polarity
	pwmfrq               uint8
	minpulse             uint16
	udcmin, boost, buck  Fixed
}

var _ Parameters = (*fakeParams)(nil)

func defaultParams() *fakeParams {
	return &fakeParams{
		fmin:      FixedFromInt(1),
		fmax:      FixedFromInt(200),
		dirchrpm:  FixedFromInt(100),
		polepairs: 2,
		ampmax:    FixedFromInt(100),
		heatmax:   FixedFromInt(25),
		chg:       FixedFromInt(90),
		ocur:      FixedFromInt(100),
		deadtime:  63,
		pol:       ActiveHigh,
		minpulse:  0,
		udcmin:    FixedFromInt(10),
		boost:     FixedFromInt(330),
		buck:      FixedFromInt(540),
	}
}

func (p *fakeParams) FrequencyMin() Fixed         { return p.fmin }
func (p *fakeParams) FrequencyMax() Fixed         { return p.fmax }
func (p *fakeParams) DirChangeRPM() Fixed         { return p.dirchrpm }
func (p *fakeParams) PolePairs() int32            { return p.polepairs }
func (p *fakeParams) AmplitudeMax() Fixed         { return p.ampmax }
func (p *fakeParams) HeatMax() Fixed              { return p.heatmax }
func (p *fakeParams) HeatFrequency() Fixed        { return p.heatfrq }
func (p *fakeParams) ChargeMax() Fixed            { return p.chg }
func (p *fakeParams) OvercurrentThreshold() Fixed { return p.ocur }
func (p *fakeParams) DeadTime() uint8             { return p.deadtime }
func (p *fakeParams) Polarity() Polarity          { return p.pol }
func (p *fakeParams) PwmFrequency() uint8         { return p.pwmfrq }
func (p *fakeParams) MinPulse() uint16            { return p.minpulse }
func (p *fakeParams) UdcMin() Fixed               { return p.udcmin }
func (p *fakeParams) UdcBoostMax() Fixed          { return p.boost }
func (p *fakeParams) UdcBuckMax() Fixed           { return p.buck }

type fakeDCLink struct {
	v  Fixed
	ok bool
}

func (d *fakeDCLink) DCLinkVoltage() (Fixed, bool) { return d.v, d.ok }

type fakeRotor struct{ a Angle }

func (r *fakeRotor) RotorAngle() Angle { return r.a }

// newTestInverter builds an initialized inverter over a mock stage.
func newTestInverter(p *fakeParams, dc DCLinkSensor) (*Inverter, *mockStage) {
	stage := newMockStage()
	inv, err := NewInverter(InverterConfig{Stage: stage, Params: p, DCLink: dc})
	if err != nil {
		panic(err)
	}
	if err := inv.Init(); err != nil {
		panic(err)
	}
	return inv, stage
}
