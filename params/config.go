package params

import (
	"encoding/json"
	"sort"

	"gosine/core"
	"gosine/errcode"
)

// Config is a parameter set keyed by name, in engineering units.
type Config map[string]float64

// LoadConfig parses a JSON object of name/value pairs and fills in
// defaults for anything missing.
func LoadConfig(jsonData []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, errcode.Wrap(errcode.InvalidParams, "load_config", "json", err)
	}
	if cfg == nil {
		cfg = Config{}
	}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills in missing values from the table.
func applyDefaults(cfg Config) {
	for _, p := range Table {
		if _, ok := cfg[p.Name]; !ok {
			cfg[p.Name] = p.Default.Float()
		}
	}
}

// Apply validates every entry before writing any, so a bad file leaves
// the store untouched.
func (s *Store) Apply(cfg Config) error {
	names := make([]string, 0, len(cfg))
	for name := range cfg {
		names = append(names, name)
	}
	sort.Strings(names)

	vals := make(map[int]core.Fixed, len(cfg))
	for _, name := range names {
		i, ok := byName[name]
		if !ok {
			return &errcode.E{C: errcode.UnknownParam, Op: "apply_config", Msg: name}
		}
		v := core.FixedFromFloat(cfg[name])
		if p := Table[i]; v < p.Min || v > p.Max {
			return &errcode.E{C: errcode.OutOfRange, Op: "apply_config", Msg: name}
		}
		vals[i] = v
	}
	for i, v := range vals {
		s.set(i, v)
	}
	return nil
}

// LoadJSON is LoadConfig followed by Apply.
func (s *Store) LoadJSON(jsonData []byte) error {
	cfg, err := LoadConfig(jsonData)
	if err != nil {
		return err
	}
	return s.Apply(cfg)
}

// Snapshot returns the current values in engineering units.
func (s *Store) Snapshot() Config {
	cfg := make(Config, numParams)
	for i, p := range Table {
		cfg[p.Name] = s.get(i).Float()
	}
	return cfg
}

// MarshalJSON writes the snapshot, so a saved file loads back with
// LoadJSON.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}
