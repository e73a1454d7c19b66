//go:build rp2040

package main

import "machine"

// InitUSB brings up USB CDC; TinyGo provides the descriptors.
func InitUSB() {
	machine.Serial.Configure(machine.UARTConfig{})
}

func USBAvailable() int {
	return machine.Serial.Buffered()
}

func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

func USBWriteBytes(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
