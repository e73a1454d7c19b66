//go:build rp2040

package main

import (
	"device/rp"
	"machine"

	pio "github.com/tinygo-org/pio/rp2-pio"
)

// BreakIn owns the gate-driver enable pin through a PIO state machine.
// The program waits for the desaturation/overcurrent comparator to pull
// its input low, drops the enable in the same PIO cycle, raises PIO IRQ
// flag 0 for the CPU and parks. Arm restarts it; Cut drops the enable
// from software.
type BreakIn struct {
	pio    *pio.PIO
	sm     pio.StateMachine
	offset uint8
	sense  machine.Pin
	enable machine.Pin
}

const breakIRQFlag = 0

// breakProgram is relocatable; AddProgram patches the jump.
var breakProgram = []uint16{
	pio.EncodeWaitPin(false, 0),           // 0: wait 0 pin 0
	pio.EncodeSet(pio.SrcDestPins, 0),     // 1: set pins, 0
	pio.EncodeIRQSet(false, breakIRQFlag), // 2: irq set 0
	pio.EncodeJmp(3, pio.JmpAlways),       // 3: park
}

// NewBreakIn loads the program on a free state machine of block. The
// enable pin starts low.
func NewBreakIn(block *pio.PIO, sense, enable machine.Pin) (*BreakIn, error) {
	sm, err := block.ClaimStateMachine()
	if err != nil {
		return nil, err
	}
	offset, err := block.AddProgram(breakProgram, -1)
	if err != nil {
		sm.Unclaim()
		return nil, err
	}

	sense.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	enable.Configure(machine.PinConfig{Mode: block.PinMode()})

	cfg := pio.DefaultStateMachineConfig()
	cfg.SetWrap(offset, offset+uint8(len(breakProgram))-1)
	cfg.SetInPins(sense)
	cfg.SetSetPins(enable, 1)

	b := &BreakIn{pio: block, sm: sm, offset: offset, sense: sense, enable: enable}
	sm.Init(offset+3, cfg)
	sm.SetPindirsConsecutive(enable, 1, true)
	sm.SetPinsConsecutive(enable, 1, false)
	sm.SetEnabled(true)

	// Route IRQ flag 0 of this block to its IRQ_0 line.
	hw := rp.PIO0
	if block.BlockIndex() == 1 {
		hw = rp.PIO1
	}
	hw.IRQ0_INTE.SetBits(1 << (rp.PIO0_IRQ0_INTE_SM0_Pos + breakIRQFlag))
	return b, nil
}

// Arm clears the flag, restarts the watch and raises the enable. If the
// comparator is still active the program drops it again at once.
func (b *BreakIn) Arm() {
	b.pio.ClearIRQ(1 << breakIRQFlag)
	b.sm.Exec(pio.EncodeSet(pio.SrcDestPins, 1))
	b.sm.Exec(pio.EncodeJmp(b.offset, pio.JmpAlways))
}

// Cut drops the enable and parks the program.
func (b *BreakIn) Cut() {
	b.sm.Exec(pio.EncodeSet(pio.SrcDestPins, 0))
	b.sm.Exec(pio.EncodeJmp(b.offset+3, pio.JmpAlways))
}

// Asserted reads the comparator level.
func (b *BreakIn) Asserted() bool {
	return !b.sense.Get()
}

// Ack clears the CPU-side flag in the break interrupt.
func (b *BreakIn) Ack() {
	b.pio.ClearIRQ(1 << breakIRQFlag)
}
