package core

import (
	"bytes"
	"testing"

	"gosine/errcode"
	"gosine/protocol"
)

type sentMessage struct {
	id      uint16
	payload []byte
}

// captureSender records framed responses instead of writing them.
type captureSender struct {
	sent []sentMessage
}

func (c *captureSender) SendCommand(cmdID uint16, args func(output protocol.OutputBuffer)) {
	out := protocol.NewScratchOutput()
	args(out)
	c.sent = append(c.sent, sentMessage{cmdID, append([]byte(nil), out.Result()...)})
}

func (c *captureSender) last(t *testing.T, name string) []byte {
	t.Helper()
	cmd, ok := GetGlobalRegistry().GetCommandByName(name)
	if !ok {
		t.Fatalf("%s not registered", name)
	}
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].id == cmd.ID {
			return c.sent[i].payload
		}
	}
	t.Fatalf("no %s sent", name)
	return nil
}

type fakeStore struct {
	vals map[uint16]int32
}

func (s *fakeStore) SetParam(id uint16, raw int32) error {
	if _, ok := s.vals[id]; !ok {
		return errcode.UnknownParam
	}
	if raw < 0 {
		return errcode.OutOfRange
	}
	s.vals[id] = raw
	return nil
}

func (s *fakeStore) GetParam(id uint16) (int32, error) {
	v, ok := s.vals[id]
	if !ok {
		return 0, errcode.UnknownParam
	}
	return v, nil
}

func encodeArgs(args ...int32) []byte {
	out := protocol.NewScratchOutput()
	for _, a := range args {
		protocol.EncodeVLQInt(out, a)
	}
	return append([]byte(nil), out.Result()...)
}

func dispatch(t *testing.T, name string, args ...int32) {
	t.Helper()
	cmd, ok := GetGlobalRegistry().GetCommandByName(name)
	if !ok {
		t.Fatalf("%s not registered", name)
	}
	data := encodeArgs(args...)
	if err := DispatchCommand(cmd.ID, &data); err != nil {
		t.Fatalf("%s: %v", name, err)
	}
}

func setupCommands(t *testing.T) (*Inverter, *mockStage, *fakeStore, *captureSender) {
	t.Helper()
	inv, stage := newTestInverter(defaultParams(), nil)
	store := &fakeStore{vals: map[uint16]int32{7: 100}}
	InitInverterCommands(inv, store)
	sender := &captureSender{}
	SetGlobalTransport(sender)
	t.Cleanup(func() {
		SetGlobalTransport(nil)
		StartStatusReports(nil, 0)
		resetTimers()
	})
	return inv, stage, store, sender
}

func decodeResult(t *testing.T, payload []byte) (uint16, string) {
	t.Helper()
	cmd, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		t.Fatal(err)
	}
	code, err := protocol.DecodeVLQString(&payload)
	if err != nil {
		t.Fatal(err)
	}
	return uint16(cmd), code
}

func TestRegistryDictionary(t *testing.T) {
	r := NewCommandRegistry()
	a := r.Register("ping", "n=%u", func(*[]byte) error { return nil })
	b := r.Register("pong", "n=%u", nil)
	if a != 0 || b != 1 || r.Register("ping", "", nil) != 0 {
		t.Fatalf("ids %d %d", a, b)
	}
	r.RegisterConstant("CLOCK_FREQ", "1000000")
	r.Register("reset", "", func(*[]byte) error { return nil })

	want := "0 ping n=%u\n1 pong n=%u\n2 reset\nconst CLOCK_FREQ 1000000\n"
	if got := string(r.Dictionary()); got != want {
		t.Errorf("dictionary\n%q\nwant\n%q", got, want)
	}
	if got := string(r.DictionaryChunk(2, 4)); got != "ping" {
		t.Errorf("chunk %q", got)
	}
	if r.DictionaryChunk(uint32(len(want)), 10) != nil {
		t.Error("chunk past the end")
	}

	var data []byte
	if err := r.Dispatch(1, &data); errcode.Of(err) != errcode.UnknownCommand {
		t.Errorf("dispatching a response = %v", err)
	}
	if err := r.Dispatch(9, &data); errcode.Of(err) != errcode.UnknownCommand {
		t.Errorf("dispatching unknown id = %v", err)
	}
}

func TestIdentifyServesDictionary(t *testing.T) {
	_, _, _, sender := setupCommands(t)
	reg := GetGlobalRegistry()
	if c, _ := reg.GetCommandByName("identify_response"); c.ID != 0 {
		t.Errorf("identify_response id %d", c.ID)
	}
	if c, _ := reg.GetCommandByName("identify"); c.ID != 1 {
		t.Errorf("identify id %d", c.ID)
	}

	dispatch(t, "identify", 0, 40)
	payload := sender.last(t, "identify_response")
	off, _ := protocol.DecodeVLQUint(&payload)
	chunk, _ := protocol.DecodeVLQBytes(&payload)
	if off != 0 || !bytes.Equal(chunk, reg.Dictionary()[:40]) {
		t.Errorf("identify chunk %d %q", off, chunk)
	}
	if !bytes.Contains(reg.Dictionary(), []byte("const VERSION "+protocol.Version+"\n")) {
		t.Error("dictionary lacks version")
	}
}

func TestSetOpmodeReportsResult(t *testing.T) {
	inv, stage, _, sender := setupCommands(t)
	setID, _ := GetGlobalRegistry().GetCommandByName("set_opmode")

	dispatch(t, "set_ampnom", int32(FixedFromInt(40)))
	dispatch(t, "set_fslip", int32(FixedFromInt(5)))
	dispatch(t, "set_opmode", int32(ModeSine))
	if cmd, code := decodeResult(t, sender.last(t, "command_result")); cmd != setID.ID || code != "ok" {
		t.Errorf("result %d %q", cmd, code)
	}
	inv.PeriodElapsed()
	if inv.Opmode() != ModeSine || !stage.enabled {
		t.Fatal("sine not running")
	}

	dispatch(t, "set_opmode", 300)
	if _, code := decodeResult(t, sender.last(t, "command_result")); code != string(errcode.InvalidMode) {
		t.Errorf("mode 300 code %q", code)
	}

	dispatch(t, "emergency_stop")
	if inv.Cause() != FaultEmergencyStop || stage.enabled {
		t.Error("emergency stop did not trip")
	}
	dispatch(t, "set_opmode", int32(ModeSine))
	if _, code := decodeResult(t, sender.last(t, "command_result")); code != string(errcode.TripActive) {
		t.Errorf("request while tripped code %q", code)
	}
	dispatch(t, "clear_trip")
	if _, code := decodeResult(t, sender.last(t, "command_result")); code != "ok" {
		t.Errorf("clear_trip code %q", code)
	}
}

func TestEveryCommandIsAcknowledged(t *testing.T) {
	_, _, _, sender := setupCommands(t)
	for _, tc := range []struct {
		name string
		args []int32
	}{
		{"set_ampnom", []int32{int32(FixedFromInt(30))}},
		{"set_fslip", []int32{int32(FixedFromInt(-4))}},
		{"set_report", []int32{0}},
		{"emergency_stop", nil},
	} {
		dispatch(t, tc.name, tc.args...)
		want, _ := GetGlobalRegistry().GetCommandByName(tc.name)
		if cmd, code := decodeResult(t, sender.last(t, "command_result")); cmd != want.ID || code != "ok" {
			t.Errorf("%s: result for %d %q", tc.name, cmd, code)
		}
	}
}

func TestGetStatusEncoding(t *testing.T) {
	inv, _, _, sender := setupCommands(t)
	inv.SetAmpnom(FixedFromInt(50))
	inv.SetOpmode(ModeSine)
	inv.PeriodElapsed()
	inv.PeriodElapsed()

	dispatch(t, "get_status")
	p := sender.last(t, "inverter_status")
	var vals [10]int32
	for i := range vals {
		v, err := protocol.DecodeVLQInt(&p)
		if err != nil {
			t.Fatalf("field %d: %v", i, err)
		}
		vals[i] = v
	}
	if len(p) != 0 {
		t.Errorf("%d trailing bytes", len(p))
	}
	if OperatingMode(vals[0]) != ModeSine || vals[1] != 0 || vals[8] != 2 {
		t.Errorf("status fields %v", vals)
	}
	if uint16(vals[6]) != percentOf(FixedFromInt(50), SineMaxAmp) {
		t.Errorf("amplitude %d", vals[6])
	}
}

func TestParamCommands(t *testing.T) {
	_, _, store, sender := setupCommands(t)

	dispatch(t, "set_param", 7, 250)
	p := sender.last(t, "param_result")
	id, _ := protocol.DecodeVLQUint(&p)
	v, _ := protocol.DecodeVLQInt(&p)
	code, _ := protocol.DecodeVLQString(&p)
	if id != 7 || v != 250 || code != "ok" || store.vals[7] != 250 {
		t.Errorf("set_param -> %d %d %q", id, v, code)
	}

	dispatch(t, "set_param", 7, -1)
	p = sender.last(t, "param_result")
	protocol.DecodeVLQUint(&p)
	v, _ = protocol.DecodeVLQInt(&p)
	code, _ = protocol.DecodeVLQString(&p)
	if v != 250 || code != string(errcode.OutOfRange) {
		t.Errorf("rejected set -> %d %q", v, code)
	}

	dispatch(t, "get_param", 99)
	p = sender.last(t, "param_result")
	protocol.DecodeVLQUint(&p)
	protocol.DecodeVLQInt(&p)
	if code, _ = protocol.DecodeVLQString(&p); code != string(errcode.UnknownParam) {
		t.Errorf("get unknown -> %q", code)
	}
}

func TestTruncatedArgs(t *testing.T) {
	setupCommands(t)
	cmd, _ := GetGlobalRegistry().GetCommandByName("set_param")
	data := encodeArgs(7)
	if err := DispatchCommand(cmd.ID, &data); err == nil {
		t.Error("set_param with one argument accepted")
	}
}
