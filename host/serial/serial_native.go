//go:build !wasm

package serial

import (
	"errors"
	"fmt"
	"io"

	"github.com/tarm/serial"
)

// NativePort is a host serial device.
type NativePort struct {
	port *serial.Port
	cfg  Config
}

// Open opens cfg.Device. A read that times out returns io.EOF from tarm;
// Read maps it to (0, nil) so the link reader keeps polling.
func Open(cfg *Config) (*NativePort, error) {
	if cfg == nil || cfg.Device == "" {
		return nil, errors.New("serial: no device")
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	return &NativePort{port: p, cfg: *cfg}, nil
}

func (p *NativePort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if n == 0 && p.cfg.ReadTimeout > 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *NativePort) Close() error {
	return p.port.Close()
}

// Flush drops unread input and unsent output.
func (p *NativePort) Flush() error {
	return p.port.Flush()
}

var _ Port = (*NativePort)(nil)
