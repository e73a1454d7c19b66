// Package sim runs the inverter core against an in-memory bridge, an RL
// load and virtual sensors, driven by a virtual clock.
package sim

import (
	"sync"

	"gosine/core"
)

// Bridge is an in-memory core.PowerStage.
type Bridge struct {
	mu sync.Mutex

	top       uint16
	deadTicks uint16
	polarity  core.Polarity
	compares  core.PhaseCompareSet
	enabled   bool
	faults    map[core.FaultKind]bool

	enables  uint32
	disables uint32
	configs  uint32
}

var _ core.PowerStage = (*Bridge)(nil)

func NewBridge() *Bridge {
	return &Bridge{faults: make(map[core.FaultKind]bool)}
}

func (b *Bridge) ConfigurePeriod(top uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.top = top
	b.enabled = false
	b.configs++
	return nil
}

func (b *Bridge) ConfigureDeadTimeAndPolarity(ticks uint16, pol core.Polarity) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deadTicks = ticks
	b.polarity = pol
	b.configs++
	return nil
}

func (b *Bridge) SetCompares(set core.PhaseCompareSet) {
	b.mu.Lock()
	b.compares = set
	b.mu.Unlock()
}

func (b *Bridge) EnableOutput() {
	b.mu.Lock()
	b.enabled = true
	b.enables++
	b.mu.Unlock()
}

func (b *Bridge) DisableOutput() {
	b.mu.Lock()
	b.enabled = false
	b.disables++
	b.mu.Unlock()
}

func (b *Bridge) FaultAsserted(kind core.FaultKind) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.faults[kind]
}

// SetFault drives a simulated fault input.
func (b *Bridge) SetFault(kind core.FaultKind, on bool) {
	b.mu.Lock()
	b.faults[kind] = on
	b.mu.Unlock()
}

// Duties returns each leg's on-time fraction, and whether the bridge is
// conducting at all. Legs outside the set float and report -1.
func (b *Bridge) Duties() ([3]float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var d [3]float64
	if !b.enabled || b.top == 0 {
		return d, false
	}
	for i := range d {
		if b.compares.Legs&(1<<i) == 0 {
			d[i] = -1
			continue
		}
		d[i] = float64(b.compares.Compare[i]) / float64(b.top)
	}
	return d, true
}

// BridgeState is a copy of the bridge registers.
type BridgeState struct {
	Top       uint16
	DeadTicks uint16
	Polarity  core.Polarity
	Compares  core.PhaseCompareSet
	Enabled   bool
	Enables   uint32
	Disables  uint32
}

func (b *Bridge) State() BridgeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BridgeState{
		Top:       b.top,
		DeadTicks: b.deadTicks,
		Polarity:  b.polarity,
		Compares:  b.compares,
		Enabled:   b.enabled,
		Enables:   b.enables,
		Disables:  b.disables,
	}
}
