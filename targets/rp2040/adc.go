//go:build rp2040

package main

import (
	"errors"
	"machine"

	"gosine/core"
)

// RPADCDriver serves core.ADCDriver from the RP2040's ADC0..ADC3 pins.
type RPADCDriver struct {
	channels [4]*machine.ADC
}

var errADCChannel = errors.New("unsupported ADC channel")

func NewRPADCDriver() *RPADCDriver {
	machine.InitADC()
	return &RPADCDriver{}
}

func (d *RPADCDriver) ConfigureChannel(ch core.ADCChannel) error {
	if int(ch) >= len(d.channels) {
		return errADCChannel
	}
	if d.channels[ch] != nil {
		return nil
	}
	pins := [...]machine.Pin{machine.ADC0, machine.ADC1, machine.ADC2, machine.ADC3}
	adc := &machine.ADC{Pin: pins[ch]}
	if err := adc.Configure(machine.ADCConfig{}); err != nil {
		return err
	}
	d.channels[ch] = adc
	return nil
}

// ReadRaw returns a 16-bit scaled sample. It runs in the PWM interrupt,
// so channels must be configured up front.
func (d *RPADCDriver) ReadRaw(ch core.ADCChannel) (uint16, error) {
	if int(ch) >= len(d.channels) || d.channels[ch] == nil {
		return 0, errADCChannel
	}
	return d.channels[ch].Get(), nil
}

// RPGPIODriver reads fault inputs.
type RPGPIODriver struct{}

func (RPGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return nil
}

func (RPGPIODriver) ReadPin(pin core.GPIOPin) bool {
	return machine.Pin(pin).Get()
}
