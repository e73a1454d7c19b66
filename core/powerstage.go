package core

// Leg selection bits for PhaseCompareSet.Legs.
const (
	LegU uint8 = 1 << iota
	LegV
	LegW

	LegsAll = LegU | LegV | LegW
)

// PhaseCompareSet is the per-period output of the synthesizer: one
// compare value per phase in timer digits, plus which legs switch at
// all. The zero value is the safe, disabled state.
type PhaseCompareSet struct {
	Compare [3]uint16 // U, V, W
	Legs    uint8
}

// DisabledCompares is written whenever the stage must not conduct.
var DisabledCompares = PhaseCompareSet{}

// Polarity of the gate driver inputs.
type Polarity uint8

const (
	ActiveHigh Polarity = 0
	ActiveLow  Polarity = 1
)

// DeadTimeAndPolarity is the gate-driver timing applied at timer setup.
type DeadTimeAndPolarity struct {
	DeadTime uint8 // break-and-dead-time generator code
	Polarity Polarity
}

// PowerStage is the hardware surface of a three-phase bridge. Targets
// implement it over their PWM timer; the sim package implements it in
// memory. SetCompares, EnableOutput and DisableOutput run in interrupt
// context and must not block.
type PowerStage interface {
	// ConfigurePeriod sets the center-aligned counter top. The stage
	// must come out of this call with outputs disabled.
	ConfigurePeriod(top uint16) error

	// ConfigureDeadTimeAndPolarity programs complementary dead time in
	// timer ticks and the gate polarity.
	ConfigureDeadTimeAndPolarity(ticks uint16, pol Polarity) error

	SetCompares(set PhaseCompareSet)

	// EnableOutput and DisableOutput gate the main output enable.
	EnableOutput()
	DisableOutput()

	// FaultAsserted reads the present level of a hardware fault input.
	// Kinds the stage has no input for report false.
	FaultAsserted(kind FaultKind) bool
}
