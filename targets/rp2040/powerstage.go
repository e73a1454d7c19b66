//go:build rp2040

package main

import (
	"machine"
	"runtime/volatile"
	"unsafe"

	"gosine/core"
)

// PWM block registers. Each slice has CSR, DIV, CTR, CC and TOP at a
// 0x14 stride; EN starts several slices on the same clock edge.
const (
	pwmBase   = 0x40050000
	pwmStride = 0x14
	pwmEN     = pwmBase + 0xA0
	pwmINTR   = pwmBase + 0xA4
	pwmINTE   = pwmBase + 0xA8

	csrEN        = 1 << 0
	csrPhCorrect = 1 << 1
	csrAInv      = 1 << 2
	csrBInv      = 1 << 3

	pwmClockDiv = 1
)

type pwmSlice struct {
	CSR volatile.Register32
	DIV volatile.Register32
	CTR volatile.Register32
	CC  volatile.Register32
	TOP volatile.Register32
}

func slice(n uint8) *pwmSlice {
	return (*pwmSlice)(unsafe.Pointer(uintptr(pwmBase + uint32(n)*pwmStride)))
}

var (
	regEN   = (*volatile.Register32)(unsafe.Pointer(uintptr(pwmEN)))
	regINTR = (*volatile.Register32)(unsafe.Pointer(uintptr(pwmINTR)))
	regINTE = (*volatile.Register32)(unsafe.Pointer(uintptr(pwmINTE)))
)

// BridgeStage drives a three-phase bridge from PWM slices 0..2. Channel A
// of each slice is the high-side gate, channel B the low-side gate with
// its output inverted, both in phase-correct mode so the period is
// center aligned. The dead band is the gap between the two compares.
//
// Gate enable belongs to the break-in state machine so the comparator
// can cut it without the CPU.
type BridgeStage struct {
	gates  [6]machine.Pin // UH UL VH VL WH WL
	breakN *BreakIn
	faults *core.FaultPins

	top   uint16
	dead  uint16
	pol   core.Polarity
	slots uint32 // slice mask for EN and INTE
}

func NewBridgeStage(gates [6]machine.Pin, brk *BreakIn) *BridgeStage {
	s := &BridgeStage{gates: gates, breakN: brk, slots: 0b111}
	for _, p := range gates {
		p.Configure(machine.PinConfig{Mode: machine.PinPWM})
	}
	return s
}

// SetFaultPins adds GPIO fault inputs (desat, estop) to FaultAsserted.
func (s *BridgeStage) SetFaultPins(f *core.FaultPins) {
	s.faults = f
}

func (s *BridgeStage) ConfigurePeriod(top uint16) error {
	s.DisableOutput()
	regEN.ClearBits(s.slots)
	for n := uint8(0); n < 3; n++ {
		sl := slice(n)
		sl.DIV.Set(pwmClockDiv << 4)
		sl.TOP.Set(uint32(top))
		sl.CTR.Set(0)
	}
	s.top = top
	s.writeCSR()
	s.SetCompares(core.DisabledCompares)
	regINTR.Set(1) // clear a stale wrap
	regINTE.SetBits(1)
	regEN.SetBits(s.slots)
	return nil
}

func (s *BridgeStage) ConfigureDeadTimeAndPolarity(ticks uint16, pol core.Polarity) error {
	s.dead = ticks
	s.pol = pol
	s.writeCSR()
	return nil
}

func (s *BridgeStage) writeCSR() {
	csr := uint32(csrEN | csrPhCorrect | csrBInv)
	if s.pol == core.ActiveLow {
		csr ^= csrAInv | csrBInv
	}
	for n := uint8(0); n < 3; n++ {
		slice(n).CSR.Set(csr)
	}
}

// SetCompares runs in the PWM interrupt. A leg left out of set.Legs has
// both gates held off.
func (s *BridgeStage) SetCompares(set core.PhaseCompareSet) {
	half := s.dead / 2
	for n := uint8(0); n < 3; n++ {
		hi, lo := uint32(0), uint32(s.top)+1
		if set.Legs&(1<<n) != 0 {
			c := set.Compare[n]
			if c > half {
				hi = uint32(c - half)
			}
			if b := uint32(c) + uint32(half); b < lo {
				lo = b
			}
		}
		slice(n).CC.Set(lo<<16 | hi)
	}
}

func (s *BridgeStage) EnableOutput() {
	s.breakN.Arm()
}

func (s *BridgeStage) DisableOutput() {
	s.breakN.Cut()
}

func (s *BridgeStage) FaultAsserted(kind core.FaultKind) bool {
	if kind == core.FaultBreak {
		return s.breakN.Asserted()
	}
	return s.faults != nil && s.faults.FaultAsserted(kind)
}

// ackWrap clears the slice 0 wrap flag; call first in the PWM interrupt.
func ackWrap() {
	regINTR.Set(1)
}

var _ core.PowerStage = (*BridgeStage)(nil)
