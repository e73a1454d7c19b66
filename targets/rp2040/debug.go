//go:build rp2040

package main

import (
	"machine"
)

var (
	debugUART    *machine.UART
	debugEnabled bool
)

// InitDebugUART brings up UART1 on GPIO8 (TX) / GPIO9 (RX) at 115200.
// USB carries the link, so firmware debug output goes here.
func InitDebugUART() {
	debugUART = machine.UART1
	err := debugUART.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       pinDebugTX,
		RX:       pinDebugRX,
	})
	if err != nil {
		debugEnabled = false
		return
	}
	debugEnabled = true
	DebugPrintln("=== gosine rp2040 ===")
}

func DebugPrintln(s string) {
	if !debugEnabled || debugUART == nil {
		return
	}
	debugUART.Write([]byte(s))
	debugUART.Write([]byte("\r\n"))
}
