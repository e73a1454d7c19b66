package client

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Message is one dictionary entry: a command the inverter accepts or a
// response it sends. The link does not distinguish the two.
type Message struct {
	ID     uint16
	Name   string
	Format string
}

// Dictionary is the parsed identify data.
type Dictionary struct {
	Messages  map[string]Message
	Constants map[string]string

	byID map[uint16]string
}

// ParseDictionary reads "<id> <name>[ <format>]" lines followed by
// "const <name> <value>" lines.
func ParseDictionary(data []byte) (*Dictionary, error) {
	d := &Dictionary{
		Messages:  make(map[string]Message),
		Constants: make(map[string]string),
		byID:      make(map[uint16]string),
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if line == "" {
			continue
		}
		f := strings.SplitN(line, " ", 3)
		if f[0] == "const" {
			if len(f) != 3 {
				return nil, fmt.Errorf("dictionary line %d: malformed constant %q", n, line)
			}
			d.Constants[f[1]] = f[2]
			continue
		}
		if len(f) < 2 {
			return nil, fmt.Errorf("dictionary line %d: malformed entry %q", n, line)
		}
		id, err := strconv.ParseUint(f[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("dictionary line %d: %w", n, err)
		}
		m := Message{ID: uint16(id), Name: f[1]}
		if len(f) == 3 {
			m.Format = f[2]
		}
		if prev, dup := d.byID[m.ID]; dup {
			return nil, fmt.Errorf("dictionary line %d: id %d used by %s and %s", n, id, prev, m.Name)
		}
		d.Messages[m.Name] = m
		d.byID[m.ID] = m.Name
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

// ID returns the id of a named message.
func (d *Dictionary) ID(name string) (uint16, bool) {
	m, ok := d.Messages[name]
	return m.ID, ok
}

// Name returns the message name for id, or "" if unknown.
func (d *Dictionary) Name(id uint16) string {
	return d.byID[id]
}

// ConstantUint parses a numeric constant such as CLOCK_FREQ.
func (d *Dictionary) ConstantUint(name string) (uint32, error) {
	v, ok := d.Constants[name]
	if !ok {
		return 0, fmt.Errorf("constant %s not in dictionary", name)
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("constant %s: %w", name, err)
	}
	return uint32(n), nil
}
