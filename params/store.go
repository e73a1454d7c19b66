package params

import (
	"strconv"
	"sync/atomic"

	"gosine/core"
	"gosine/errcode"
)

// Store holds one atomic word per parameter. Setters run in the
// scheduler context; the getters are single loads and are called from
// the PWM interrupt.
type Store struct {
	vals    [numParams]int32
	changes uint32
}

var (
	_ core.Parameters = (*Store)(nil)
	_ core.ParamStore = (*Store)(nil)
)

// New returns a store holding the table defaults.
func New() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset restores every parameter to its default.
func (s *Store) Reset() {
	for i, p := range Table {
		atomic.StoreInt32(&s.vals[i], int32(p.Default))
	}
	atomic.AddUint32(&s.changes, 1)
}

func (s *Store) get(i int) core.Fixed {
	return core.Fixed(atomic.LoadInt32(&s.vals[i]))
}

func (s *Store) set(i int, v core.Fixed) error {
	p := Table[i]
	if v < p.Min || v > p.Max {
		return &errcode.E{C: errcode.OutOfRange, Op: "set_param", Msg: p.Name + " " + v.String() + " outside [" + p.Min.String() + ", " + p.Max.String() + "]"}
	}
	atomic.StoreInt32(&s.vals[i], int32(v))
	atomic.AddUint32(&s.changes, 1)
	return nil
}

// Set changes a parameter by name.
func (s *Store) Set(name string, v core.Fixed) error {
	i, ok := byName[name]
	if !ok {
		return &errcode.E{C: errcode.UnknownParam, Op: "set_param", Msg: name}
	}
	return s.set(i, v)
}

// Get reads a parameter by name.
func (s *Store) Get(name string) (core.Fixed, error) {
	i, ok := byName[name]
	if !ok {
		return 0, &errcode.E{C: errcode.UnknownParam, Op: "get_param", Msg: name}
	}
	return s.get(i), nil
}

// SetParam changes a parameter by link id; raw is a Fixed.
func (s *Store) SetParam(id uint16, raw int32) error {
	i, ok := byID[id]
	if !ok {
		return &errcode.E{C: errcode.UnknownParam, Op: "set_param", Msg: "id " + strconv.Itoa(int(id))}
	}
	return s.set(i, core.Fixed(raw))
}

func (s *Store) GetParam(id uint16) (int32, error) {
	i, ok := byID[id]
	if !ok {
		return 0, errcode.UnknownParam
	}
	return int32(s.get(i)), nil
}

// Changes counts successful writes, for callers that cache derived
// values.
func (s *Store) Changes() uint32 {
	return atomic.LoadUint32(&s.changes)
}

func (s *Store) FrequencyMin() core.Fixed         { return s.get(pFmin) }
func (s *Store) FrequencyMax() core.Fixed         { return s.get(pFmax) }
func (s *Store) DirChangeRPM() core.Fixed         { return s.get(pDirchrpm) }
func (s *Store) PolePairs() int32                 { return s.get(pPolepairs).Int() }
func (s *Store) AmplitudeMax() core.Fixed         { return s.get(pAmpmax) }
func (s *Store) HeatMax() core.Fixed              { return s.get(pHeatmax) }
func (s *Store) HeatFrequency() core.Fixed        { return s.get(pHeatfrq) }
func (s *Store) ChargeMax() core.Fixed            { return s.get(pChargemax) }
func (s *Store) OvercurrentThreshold() core.Fixed { return s.get(pOcurlim) }
func (s *Store) DeadTime() uint8                  { return uint8(s.get(pDeadtime).Int()) }
func (s *Store) Polarity() core.Polarity          { return core.Polarity(s.get(pPwmpol).Int()) }
func (s *Store) PwmFrequency() uint8              { return uint8(s.get(pPwmfrq).Int()) }
func (s *Store) MinPulse() uint16                 { return uint16(s.get(pMinpulse).Int()) }
func (s *Store) UdcMin() core.Fixed               { return s.get(pChgudcmin) }
func (s *Store) UdcBoostMax() core.Fixed          { return s.get(pUdcsw) }
func (s *Store) UdcBuckMax() core.Fixed           { return s.get(pUdcswbuck) }

// CurrentGains returns the phase current sensor gains in digits per amp.
func (s *Store) CurrentGains() [2]core.Fixed {
	return [2]core.Fixed{s.get(pIl1gain), s.get(pIl2gain)}
}

// UdcDivider is the ratio of the DC-link divider in front of the
// voltage monitor.
func (s *Store) UdcDivider() core.Fixed {
	return s.get(pUdcdiv)
}
