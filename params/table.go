package params

import "gosine/core"

// Param describes one tunable. Values travel on the link as raw Fixed
// (5 fractional bits); ids are stable across firmware versions.
type Param struct {
	ID      uint16
	Name    string
	Unit    string
	Min     core.Fixed
	Max     core.Fixed
	Default core.Fixed
}

// Indices into Table.
const (
	pFmin = iota
	pFmax
	pDirchrpm
	pPolepairs
	pAmpmax
	pHeatmax
	pHeatfrq
	pChargemax
	pOcurlim
	pDeadtime
	pPwmpol
	pPwmfrq
	pMinpulse
	pChgudcmin
	pUdcsw
	pUdcswbuck
	pIl1gain
	pIl2gain
	pUdcdiv

	numParams
)

func entry(id uint16, name, unit string, lo, hi, def float64) Param {
	return Param{
		ID:      id,
		Name:    name,
		Unit:    unit,
		Min:     core.FixedFromFloat(lo),
		Max:     core.FixedFromFloat(hi),
		Default: core.FixedFromFloat(def),
	}
}

// Table lists every parameter the core reads.
var Table = [numParams]Param{
	pFmin:      entry(34, "fmin", "Hz", 0, 400, 1),
	pFmax:      entry(9, "fmax", "Hz", 0, 1000, 200),
	pDirchrpm:  entry(87, "dirchrpm", "rpm", 0, 2000, 100),
	pPolepairs: entry(32, "polepairs", "", 1, 16, 2),
	pAmpmax:    entry(89, "ampmax", "%", 0, 100, 100),
	pHeatmax:   entry(90, "heatmax", "%", 0, 100, 25),
	pHeatfrq:   entry(92, "heatfrq", "Hz", 0, 10, 0),
	pChargemax: entry(79, "chargemax", "%", 0, 99, 90),
	pOcurlim:   entry(22, "ocurlim", "A", 0, 65536, 100),
	pDeadtime:  entry(14, "deadtime", "dig", 0, 255, 63),
	pPwmpol:    entry(52, "pwmpol", "0=ACTHIGH, 1=ACTLOW", 0, 1, 0),
	pPwmfrq:    entry(13, "pwmfrq", "0=17.6kHz, 1=8.8kHz, 2=4.4kHz, 3=2.2kHz, 4=1.1kHz", 0, 4, 1),
	pMinpulse:  entry(24, "minpulse", "dig", 0, 4095, 1000),
	pChgudcmin: entry(88, "chgudcmin", "V", 0, 1000, 10),
	pUdcsw:     entry(20, "udcsw", "V", 0, 1000, 330),
	pUdcswbuck: entry(80, "udcswbuck", "V", 0, 1000, 540),
	pIl1gain:   entry(27, "il1gain", "dig/A", -100, 100, 4.7),
	pIl2gain:   entry(28, "il2gain", "dig/A", -100, 100, 4.7),
	pUdcdiv:    entry(91, "udcdiv", "V/V", 1, 1000, 100),
}

var (
	byID   = make(map[uint16]int, numParams)
	byName = make(map[string]int, numParams)
)

func init() {
	for i, p := range Table {
		byID[p.ID] = i
		byName[p.Name] = i
	}
}

// Lookup finds a parameter by name.
func Lookup(name string) (Param, bool) {
	i, ok := byName[name]
	if !ok {
		return Param{}, false
	}
	return Table[i], true
}

// LookupID finds a parameter by link id.
func LookupID(id uint16) (Param, bool) {
	i, ok := byID[id]
	if !ok {
		return Param{}, false
	}
	return Table[i], true
}
