// Package client drives an inverter over the framed command link: it
// fetches the identify dictionary, then sends commands by name and
// correlates their replies.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"gosine/core"
	"gosine/errcode"
	"gosine/params"
	"gosine/protocol"
)

// Bootstrap ids fixed by the firmware before the dictionary is known.
const (
	identifyResponseID = 0
	identifyID         = 1

	identifyChunk = 40
)

// DefaultTimeout bounds one command round trip when ctx has no earlier
// deadline.
const DefaultTimeout = 2 * time.Second

// ErrNoDictionary is returned by commands issued before Identify.
var ErrNoDictionary = errors.New("dictionary not loaded")

// TripEvent reports a newly latched trip.
type TripEvent struct {
	Cause core.FaultKind
	Clock uint32
}

// Client is safe for concurrent use; requests are serialized.
type Client struct {
	tr      *protocol.HostTransport
	Timeout time.Duration

	reqMu sync.Mutex

	mu       sync.Mutex
	dict     *Dictionary
	waiters  map[uint16]chan []byte
	onStatus func(core.Status)
	onTrip   func(TripEvent)
}

// New starts a link on port. Call Identify before any other command.
func New(port io.ReadWriteCloser) *Client {
	c := &Client{
		tr:      protocol.NewHostTransport(port),
		Timeout: DefaultTimeout,
		waiters: make(map[uint16]chan []byte),
	}
	c.tr.SetResponseHandler(c.handle)
	return c
}

func (c *Client) Close() error {
	return c.tr.Close()
}

// Dictionary returns the dictionary loaded by Identify, or nil.
func (c *Client) Dictionary() *Dictionary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dict
}

// OnStatus installs a callback for inverter_status messages, both
// periodic reports and GetStatus replies. It runs on the link reader and
// must not block.
func (c *Client) OnStatus(fn func(core.Status)) {
	c.mu.Lock()
	c.onStatus = fn
	c.mu.Unlock()
}

// OnTrip installs a callback for trip_event messages.
func (c *Client) OnTrip(fn func(TripEvent)) {
	c.mu.Lock()
	c.onTrip = fn
	c.mu.Unlock()
}

// handle runs on the transport reader goroutine.
func (c *Client) handle(id uint16, data *[]byte) error {
	p := append([]byte(nil), (*data)...)

	c.mu.Lock()
	ch := c.waiters[id]
	dict, onStatus, onTrip := c.dict, c.onStatus, c.onTrip
	c.mu.Unlock()

	if ch != nil {
		select {
		case ch <- p:
		default:
		}
	}
	if dict == nil {
		return nil
	}
	switch dict.Name(id) {
	case "inverter_status":
		if onStatus != nil {
			st, err := decodeStatus(p)
			if err != nil {
				return err
			}
			onStatus(st)
		}
	case "trip_event":
		if onTrip != nil {
			ev, err := decodeTrip(p)
			if err != nil {
				return err
			}
			onTrip(ev)
		}
	}
	return nil
}

func (c *Client) timeout(ctx context.Context) time.Duration {
	d := c.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < d {
			d = left
		}
	}
	return d
}

// call sends cmd and waits for the first reply payload accepted by match.
func (c *Client) call(ctx context.Context, cmd uint16, args func(protocol.OutputBuffer), reply uint16, match func([]byte) bool) ([]byte, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	ch := make(chan []byte, 8)
	c.mu.Lock()
	c.waiters[reply] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiters, reply)
		c.mu.Unlock()
	}()

	timeout := c.timeout(ctx)
	if err := c.tr.SendCommandWithTimeout(cmd, args, timeout); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case p := <-ch:
			if match(p) {
				return p, nil
			}
		case <-timer.C:
			return nil, errcode.Wrap(errcode.Timeout, "await", "no reply after "+timeout.String(), nil)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func first([]byte) bool { return true }

// Identify downloads and parses the dictionary.
func (c *Client) Identify(ctx context.Context) (*Dictionary, error) {
	var buf bytes.Buffer
	for {
		offset := uint32(buf.Len())
		p, err := c.call(ctx, identifyID, func(o protocol.OutputBuffer) {
			protocol.EncodeVLQUint(o, offset)
			protocol.EncodeVLQUint(o, identifyChunk)
		}, identifyResponseID, func(p []byte) bool {
			off, err := protocol.DecodeVLQUint(&p)
			return err == nil && off == offset
		})
		if err != nil {
			return nil, fmt.Errorf("identify at %d: %w", offset, err)
		}
		protocol.DecodeVLQUint(&p)
		chunk, err := protocol.DecodeVLQBytes(&p)
		if err != nil {
			return nil, fmt.Errorf("identify at %d: %w", offset, err)
		}
		buf.Write(chunk)
		if len(chunk) < identifyChunk {
			break
		}
	}
	dict, err := ParseDictionary(buf.Bytes())
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.dict = dict
	c.mu.Unlock()
	return dict, nil
}

func (c *Client) ids(names ...string) ([]uint16, error) {
	d := c.Dictionary()
	if d == nil {
		return nil, ErrNoDictionary
	}
	ids := make([]uint16, len(names))
	for i, n := range names {
		id, ok := d.ID(n)
		if !ok {
			return nil, fmt.Errorf("%s: %w", n, errcode.UnknownCommand)
		}
		ids[i] = id
	}
	return ids, nil
}

// command issues name and waits for its command_result.
func (c *Client) command(ctx context.Context, name string, args func(protocol.OutputBuffer)) error {
	ids, err := c.ids(name, "command_result")
	if err != nil {
		return err
	}
	p, err := c.call(ctx, ids[0], args, ids[1], func(p []byte) bool {
		cmd, err := protocol.DecodeVLQUint(&p)
		return err == nil && uint16(cmd) == ids[0]
	})
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	protocol.DecodeVLQUint(&p)
	code, err := protocol.DecodeVLQString(&p)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if ec := errcode.Code(code); ec != errcode.OK {
		return fmt.Errorf("%s: %w", name, ec)
	}
	return nil
}

// SetOpmode requests a mode change. The firmware checks the request
// synchronously; the transition itself happens on the next PWM period.
func (c *Client) SetOpmode(ctx context.Context, mode core.OperatingMode) error {
	return c.command(ctx, "set_opmode", func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, uint32(mode))
	})
}

// SetAmpnom sets the amplitude setpoint in percent.
func (c *Client) SetAmpnom(ctx context.Context, percent float64) error {
	return c.command(ctx, "set_ampnom", func(o protocol.OutputBuffer) {
		protocol.EncodeVLQInt(o, int32(core.FixedFromFloat(percent)))
	})
}

// SetFslip sets the slip frequency setpoint in Hz.
func (c *Client) SetFslip(ctx context.Context, hz float64) error {
	return c.command(ctx, "set_fslip", func(o protocol.OutputBuffer) {
		protocol.EncodeVLQInt(o, int32(core.FixedFromFloat(hz)))
	})
}

func (c *Client) ClearTrip(ctx context.Context) error {
	return c.command(ctx, "clear_trip", nil)
}

// EmergencyStop latches an emergency-stop trip.
func (c *Client) EmergencyStop(ctx context.Context) error {
	return c.command(ctx, "emergency_stop", nil)
}

// paramCall sends cmd for the named parameter and decodes param_result.
func (c *Client) paramCall(ctx context.Context, cmd, name string, args func(protocol.OutputBuffer)) (float64, error) {
	p, ok := params.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%s %s: %w", cmd, name, errcode.UnknownParam)
	}
	ids, err := c.ids(cmd, "param_result")
	if err != nil {
		return 0, err
	}
	reply, err := c.call(ctx, ids[0], func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, uint32(p.ID))
		if args != nil {
			args(o)
		}
	}, ids[1], func(b []byte) bool {
		id, err := protocol.DecodeVLQUint(&b)
		return err == nil && uint16(id) == p.ID
	})
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", cmd, name, err)
	}
	protocol.DecodeVLQUint(&reply)
	raw, err := protocol.DecodeVLQInt(&reply)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", cmd, name, err)
	}
	code, err := protocol.DecodeVLQString(&reply)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", cmd, name, err)
	}
	v := core.Fixed(raw).Float()
	if ec := errcode.Code(code); ec != errcode.OK {
		return v, fmt.Errorf("%s %s: %w", cmd, name, ec)
	}
	return v, nil
}

// SetParam writes a parameter by name and returns the value the inverter
// now holds. On a rejected write that is the unchanged old value.
func (c *Client) SetParam(ctx context.Context, name string, v float64) (float64, error) {
	return c.paramCall(ctx, "set_param", name, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQInt(o, int32(core.FixedFromFloat(v)))
	})
}

func (c *Client) GetParam(ctx context.Context, name string) (float64, error) {
	return c.paramCall(ctx, "get_param", name, nil)
}

func (c *Client) GetStatus(ctx context.Context) (core.Status, error) {
	ids, err := c.ids("get_status", "inverter_status")
	if err != nil {
		return core.Status{}, err
	}
	p, err := c.call(ctx, ids[0], nil, ids[1], first)
	if err != nil {
		return core.Status{}, fmt.Errorf("get_status: %w", err)
	}
	return decodeStatus(p)
}

// GetClock returns the inverter's system tick counter.
func (c *Client) GetClock(ctx context.Context) (uint32, error) {
	ids, err := c.ids("get_clock", "clock")
	if err != nil {
		return 0, err
	}
	p, err := c.call(ctx, ids[0], nil, ids[1], first)
	if err != nil {
		return 0, fmt.Errorf("get_clock: %w", err)
	}
	return protocol.DecodeVLQUint(&p)
}

// SetReport starts periodic inverter_status reports; zero stops them.
func (c *Client) SetReport(ctx context.Context, interval time.Duration) error {
	return c.command(ctx, "set_report", func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, uint32(interval/time.Microsecond))
	})
}

func decodeStatus(p []byte) (core.Status, error) {
	var v [10]uint32
	for i := range v {
		var err error
		if i == 4 || i == 5 || i == 7 {
			var s int32
			s, err = protocol.DecodeVLQInt(&p)
			v[i] = uint32(s)
		} else {
			v[i], err = protocol.DecodeVLQUint(&p)
		}
		if err != nil {
			return core.Status{}, fmt.Errorf("inverter_status field %d: %w", i, err)
		}
	}
	return core.Status{
		Mode:           core.OperatingMode(v[0]),
		Tripped:        v[1] != 0,
		Cause:          core.FaultKind(v[2]),
		Angle:          core.Angle(v[3]),
		Frequency:      core.Fixed(int32(v[4])),
		Direction:      core.Direction(int32(v[5])),
		Amplitude:      uint16(v[6]),
		PeakCurrent:    core.Fixed(int32(v[7])),
		Cycles:         v[8],
		DeadlineMisses: v[9],
	}, nil
}

func decodeTrip(p []byte) (TripEvent, error) {
	cause, err := protocol.DecodeVLQUint(&p)
	if err != nil {
		return TripEvent{}, fmt.Errorf("trip_event: %w", err)
	}
	clock, err := protocol.DecodeVLQUint(&p)
	if err != nil {
		return TripEvent{}, fmt.Errorf("trip_event: %w", err)
	}
	return TripEvent{Cause: core.FaultKind(cause), Clock: clock}, nil
}
