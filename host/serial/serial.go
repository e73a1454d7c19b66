package serial

import (
	"io"
	"time"
)

// Port is the byte stream under the command link. The native
// implementation wraps tarm/serial; tests and the simulator use net.Conn.
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

// Config holds serial port settings.
type Config struct {
	Device string // /dev/ttyACM0, COM3

	// Baud is ignored by USB CDC targets but matters for a UART bridge.
	Baud int

	// ReadTimeout bounds a single Read; zero blocks.
	ReadTimeout time.Duration
}

// DefaultBaud matches the UART console on the inverter boards.
const DefaultBaud = 115200

func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100 * time.Millisecond,
	}
}
