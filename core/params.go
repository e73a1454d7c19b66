package core

// Parameters is the read side of the parameter store. Every getter must
// be safe to call from the PWM interrupt: a single word load, no locks.
type Parameters interface {
	FrequencyMin() Fixed // Hz
	FrequencyMax() Fixed // Hz
	DirChangeRPM() Fixed
	PolePairs() int32

	AmplitudeMax() Fixed // % of full modulation
	HeatMax() Fixed      // % amplitude cap in AC heat mode
	ChargeMax() Fixed    // % duty cap in boost and buck

	// HeatFrequency caps the field frequency in AC heat mode, Hz. Zero
	// holds the angle where the mode was entered.
	HeatFrequency() Fixed

	OvercurrentThreshold() Fixed // A, absolute per phase

	DeadTime() uint8
	Polarity() Polarity
	PwmFrequency() uint8 // 0..4, selects the timer resolution
	MinPulse() uint16    // 16-bit duty domain

	// DC-link bounds for the charge modes, V. Boost needs
	// UdcMin <= Udc <= UdcBoostMax, buck UdcMin <= Udc <= UdcBuckMax.
	UdcMin() Fixed
	UdcBoostMax() Fixed
	UdcBuckMax() Fixed
}

// DCLinkSensor reports the last DC-link voltage sample. ok is false when
// no valid sample exists. Implementations return a cached value; no bus
// traffic happens in this call.
type DCLinkSensor interface {
	DCLinkVoltage() (v Fixed, ok bool)
}

// RotorSensor reports the electrical rotor angle for run modes.
type RotorSensor interface {
	RotorAngle() Angle
}
