//go:build rp2040

package main

import (
	"device/rp"
	"machine"
	"runtime/interrupt"
	"time"

	pio "github.com/tinygo-org/pio/rp2-pio"

	"gosine/core"
	"gosine/params"
	"gosine/protocol"
	"gosine/sensors/dclink"
)

// Board wiring.
var (
	gatePins = [6]machine.Pin{
		machine.GPIO0, machine.GPIO1, // U high, low
		machine.GPIO2, machine.GPIO3, // V
		machine.GPIO4, machine.GPIO5, // W
	}
	pinComparator = machine.GPIO6 // desat/overcurrent comparator, active low
	pinGateEnable = machine.GPIO7
	pinDebugTX    = machine.GPIO8
	pinDebugRX    = machine.GPIO9
	pinDesat      = machine.GPIO10
	pinEStop      = machine.GPIO11
	pinSDA        = machine.GPIO12
	pinSCL        = machine.GPIO13
)

const (
	dcSampleUS    = 10000
	faultPollUS   = 1000
	paramCheckUS  = 100000
	calibrateRuns = 64
)

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	// Reached from interrupt handlers, which cannot capture.
	inverter *core.Inverter
	currents *core.CurrentSampler
	breakIn  *BreakIn

	msgerrors uint32
)

func main() {
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	InitUSB()
	InitDebugUART()
	InitClock()
	core.TimerInit()
	core.SetDebugWriter(DebugPrintln)
	core.InitAsyncDebug()

	store := params.New()
	dc := initBoard(store)

	core.InitInverterCommands(inverter, store)

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()
	transport = protocol.NewTransport(outputBuffer, core.DispatchCommand)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
	})
	transport.SetFlushCallback(writeUSB)
	transport.SetErrorCallback(func(cmdID uint16, err error) {
		msgerrors++
		core.DebugAsync("[LINK] " + err.Error())
	})
	core.SetGlobalTransport(transport)

	dc.Start(core.TimerFromUS(dcSampleUS))
	var paramTimer core.Timer
	seen := store.Changes()
	core.Every(&paramTimer, core.TimerFromUS(paramCheckUS), func() {
		if n := store.Changes(); n != seen {
			seen = n
			dc.SetDivider(store.UdcDivider())
		}
	})

	enableInterrupts()
	go usbReaderLoop()

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			UpdateSystemTime()
			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				in := protocol.NewSliceInputBuffer(data)
				transport.Receive(in)
				inputBuffer.Pop(len(data) - in.Available())
			}
			writeUSB()
			core.ProcessTimers()
		}()
		time.Sleep(10 * time.Microsecond)
	}
}

// initBoard brings the bridge up in the safe state. Any failure here
// leaves the gates disabled and halts.
func initBoard(store *params.Store) *dclink.Monitor {
	var err error
	breakIn, err = NewBreakIn(pio.PIO0, pinComparator, pinGateEnable)
	if err != nil {
		halt("break-in: " + err.Error())
	}
	stage := NewBridgeStage(gatePins, breakIn)

	faults, err := core.NewFaultPins(RPGPIODriver{},
		core.FaultPin{Kind: core.FaultDesat, Pin: core.GPIOPin(pinDesat), ActiveLow: true},
		core.FaultPin{Kind: core.FaultEmergencyStop, Pin: core.GPIOPin(pinEStop), ActiveLow: true},
	)
	if err != nil {
		halt("fault pins: " + err.Error())
	}
	stage.SetFaultPins(faults)

	machine.I2C0.Configure(machine.I2CConfig{Frequency: 400 * machine.KHz, SDA: pinSDA, SCL: pinSCL})
	dc := dclink.New(machine.I2C0, dclink.Config{
		Divider: store.UdcDivider(),
		MaxAge:  core.TimerFromUS(5 * dcSampleUS),
	})
	if err := dc.Configure(); err != nil {
		// Boost and Buck stay refused until the monitor answers.
		core.DebugPrintln("[INV] dc-link monitor: " + err.Error())
	}

	inverter, err = core.NewInverter(core.InverterConfig{
		Stage:  stage,
		Params: store,
		DCLink: dc,
		Clock:  GetHardwareTime,
	})
	if err != nil {
		halt(err.Error())
	}
	if err := inverter.Init(); err != nil {
		halt("init: " + err.Error())
	}

	currents, err = core.NewCurrentSampler(inverter, core.CurrentSamplerConfig{
		ADC:      NewRPADCDriver(),
		Channels: [2]core.ADCChannel{0, 1},
		Gain:     store.CurrentGains(),
	})
	if err != nil {
		halt("current sensor: " + err.Error())
	}
	if err := currents.Calibrate(calibrateRuns); err != nil {
		halt("calibrate: " + err.Error())
	}
	faults.StartPolling(inverter, core.TimerFromUS(faultPollUS))
	return dc
}

// enableInterrupts starts the two interrupt contexts: the break input
// above the PWM period.
func enableInterrupts() {
	brk := interrupt.New(rp.IRQ_PIO0_IRQ_0, breakISR)
	brk.SetPriority(0x00)
	brk.Enable()

	pwm := interrupt.New(rp.IRQ_PWM_IRQ_WRAP, pwmISR)
	pwm.SetPriority(0x40)
	pwm.Enable()
}

func breakISR(interrupt.Interrupt) {
	breakIn.Ack()
	inverter.FaultSignaled(core.FaultBreak)
}

func pwmISR(interrupt.Interrupt) {
	ackWrap()
	UpdateSystemTime()
	inverter.PeriodElapsed()
	currents.Sample()
}

func halt(msg string) {
	DebugPrintln("[INV] halt: " + msg)
	for {
		time.Sleep(time.Second)
	}
}

func usbReaderLoop() {
	for {
		for USBAvailable() > 0 {
			b, err := USBRead()
			if err != nil {
				msgerrors++
				break
			}
			if inputBuffer.Write([]byte{b}) == 0 {
				msgerrors++
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

func writeUSB() {
	res := outputBuffer.Result()
	for len(res) > 0 {
		n, err := USBWriteBytes(res)
		if err != nil || n == 0 {
			msgerrors++
			break
		}
		res = res[n:]
	}
	outputBuffer.Reset()
}
