package core

import (
	"gosine/errcode"
	"gosine/protocol"
)

// ResponseSender frames an outgoing message. *protocol.Transport
// satisfies it.
type ResponseSender interface {
	SendCommand(cmdID uint16, args func(output protocol.OutputBuffer))
}

// ParamStore is the write side of the parameter store, addressed by the
// numeric parameter id used on the link.
type ParamStore interface {
	SetParam(id uint16, raw int32) error
	GetParam(id uint16) (int32, error)
}

var globalTransport ResponseSender

// SetGlobalTransport installs the sender used by SendResponse.
func SetGlobalTransport(s ResponseSender) {
	globalTransport = s
}

// SendResponse sends a registered response through the global transport.
func SendResponse(name string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}
	cmd, ok := globalRegistry.GetCommandByName(name)
	if !ok {
		panic("response not registered: " + name)
	}
	globalTransport.SendCommand(cmd.ID, args)
}

// Link state for the command surface.
var (
	linkInverter *Inverter
	linkParams   ParamStore
)

// InitInverterCommands registers the command surface for inv. The first
// two registrations fix identify_response and identify at IDs 0 and 1 so
// a host can bootstrap the dictionary.
func InitInverterCommands(inv *Inverter, params ParamStore) {
	linkInverter = inv
	linkParams = params

	RegisterResponse("identify_response", "offset=%u data=%*s")       // ID 0
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify) // ID 1

	RegisterCommand("get_clock", "", handleGetClock)
	RegisterCommand("set_opmode", "mode=%c", handleSetOpmode)
	RegisterCommand("set_ampnom", "amp=%i", handleSetAmpnom)
	RegisterCommand("set_fslip", "fslip=%i", handleSetFslip)
	RegisterCommand("clear_trip", "", handleClearTrip)
	RegisterCommand("emergency_stop", "", handleEmergencyStop)
	RegisterCommand("set_param", "id=%hu value=%i", handleSetParam)
	RegisterCommand("get_param", "id=%hu", handleGetParam)
	RegisterCommand("get_status", "", handleGetStatus)
	RegisterCommand("set_report", "interval_us=%u", handleSetReport)

	RegisterResponse("clock", "clock=%u")
	RegisterResponse("command_result", "cmd=%hu code=%s")
	RegisterResponse("param_result", "id=%hu value=%i code=%s")
	RegisterResponse("inverter_status",
		"opmode=%c tripped=%c cause=%c angle=%hu freq=%i dir=%i amp=%hu peak=%i cycles=%u misses=%u")
	RegisterResponse("trip_event", "cause=%c clock=%u")

	RegisterConstant("VERSION", protocol.Version)
	RegisterConstant("CLOCK_FREQ", utoa(TimerFreq))
	RegisterConstant("PWM_CLOCK_FREQ", utoa(PWMClockFreq))
}

func handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	chunk := globalRegistry.DictionaryChunk(offset, uint8(count))
	SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

func handleGetClock(data *[]byte) error {
	clock := GetTime()
	SendResponse("clock", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
	})
	return nil
}

func handleSetOpmode(data *[]byte) error {
	mode, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if mode > 0xFF {
		err = errcode.InvalidMode
	} else {
		err = linkInverter.SetOpmode(OperatingMode(mode))
	}
	sendResult("set_opmode", err)
	return nil
}

func handleSetAmpnom(data *[]byte) error {
	amp, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	linkInverter.SetAmpnom(Fixed(amp))
	sendResult("set_ampnom", nil)
	return nil
}

func handleSetFslip(data *[]byte) error {
	f, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	linkInverter.SetFslip(Fixed(f))
	sendResult("set_fslip", nil)
	return nil
}

func handleClearTrip(data *[]byte) error {
	sendResult("clear_trip", linkInverter.ClearTrip())
	return nil
}

func handleEmergencyStop(data *[]byte) error {
	linkInverter.FaultSignaled(FaultEmergencyStop)
	sendResult("emergency_stop", nil)
	return nil
}

func handleSetParam(data *[]byte) error {
	id, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	raw, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	err = linkParams.SetParam(uint16(id), raw)
	if err == nil {
		RecordTiming(EvtParamSet, uint8(id), GetTime(), uint32(raw), 0)
	}
	sendParam(uint16(id), err)
	return nil
}

func handleGetParam(data *[]byte) error {
	id, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	sendParam(uint16(id), nil)
	return nil
}

func handleGetStatus(data *[]byte) error {
	sendStatus(linkInverter.Status())
	return nil
}

func handleSetReport(data *[]byte) error {
	us, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	StartStatusReports(linkInverter, TimerFromUS(us))
	sendResult("set_report", nil)
	return nil
}

func sendResult(cmd string, err error) {
	c, _ := globalRegistry.GetCommandByName(cmd)
	code := string(errcode.Of(err))
	SendResponse("command_result", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(c.ID))
		protocol.EncodeVLQString(output, code)
	})
}

// sendParam reports the current value of id, with err's code if a set
// just failed.
func sendParam(id uint16, err error) {
	v, gerr := linkParams.GetParam(id)
	if err == nil {
		err = gerr
	}
	code := string(errcode.Of(err))
	SendResponse("param_result", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(id))
		protocol.EncodeVLQInt(output, v)
		protocol.EncodeVLQString(output, code)
	})
}

func boolArg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func sendStatus(st Status) {
	SendResponse("inverter_status", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(st.Mode))
		protocol.EncodeVLQUint(output, boolArg(st.Tripped))
		protocol.EncodeVLQUint(output, uint32(st.Cause))
		protocol.EncodeVLQUint(output, uint32(st.Angle))
		protocol.EncodeVLQInt(output, int32(st.Frequency))
		protocol.EncodeVLQInt(output, int32(st.Direction))
		protocol.EncodeVLQUint(output, uint32(st.Amplitude))
		protocol.EncodeVLQInt(output, int32(st.PeakCurrent))
		protocol.EncodeVLQUint(output, st.Cycles)
		protocol.EncodeVLQUint(output, st.DeadlineMisses)
	})
}
