package core

import (
	"sync"

	"gosine/errcode"
)

// CommandHandler decodes its own arguments from data and advances it.
type CommandHandler func(data *[]byte) error

// Command is one entry of the link dictionary. Responses have a nil
// Handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // e.g. "mode=%c"
	Handler CommandHandler
}

// CommandRegistry assigns IDs in registration order.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands []*Command
	nameToID map[string]uint16
	consts   []constant
	dict     []byte // cached, rebuilt on register
}

type constant struct {
	name  string
	value string
}

var globalRegistry = NewCommandRegistry()

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{nameToID: make(map[string]uint16)}
}

// RegisterCommand registers a command handler on the global registry
func RegisterCommand(name, format string, handler CommandHandler) uint16 {
	return globalRegistry.Register(name, format, handler)
}

// RegisterResponse registers a response message (MCU -> host)
func RegisterResponse(name, format string) uint16 {
	return globalRegistry.Register(name, format, nil)
}

// RegisterConstant publishes a named value in the global dictionary.
func RegisterConstant(name, value string) {
	globalRegistry.RegisterConstant(name, value)
}

// RegisterConstant adds or replaces a "const <name> <value>" line.
func (r *CommandRegistry) RegisterConstant(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dict = nil
	for i := range r.consts {
		if r.consts[i].name == name {
			r.consts[i].value = value
			return
		}
	}
	r.consts = append(r.consts, constant{name, value})
}

// Register adds a command; registering a name twice returns the first ID.
func (r *CommandRegistry) Register(name, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.nameToID[name]; ok {
		return id
	}
	id := uint16(len(r.commands))
	r.commands = append(r.commands, &Command{ID: id, Name: name, Format: format, Handler: handler})
	r.nameToID[name] = id
	r.dict = nil
	return id
}

func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.commands) {
		return nil, false
	}
	return r.commands[id], true
}

func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered for cmdID.
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok || cmd.Handler == nil {
		return &errcode.E{C: errcode.UnknownCommand, Op: "dispatch", Msg: "id " + utoa(uint32(cmdID))}
	}
	return cmd.Handler(data)
}

// Dictionary returns one line per entry, "<id> <name>[ <format>]",
// followed by "const <name> <value>" lines.
func (r *CommandRegistry) Dictionary() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dict == nil {
		var b []byte
		for _, c := range r.commands {
			b = append(b, utoa(uint32(c.ID))...)
			b = append(b, ' ')
			b = append(b, c.Name...)
			if c.Format != "" {
				b = append(b, ' ')
				b = append(b, c.Format...)
			}
			b = append(b, '\n')
		}
		for _, c := range r.consts {
			b = append(b, "const "...)
			b = append(b, c.name...)
			b = append(b, ' ')
			b = append(b, c.value...)
			b = append(b, '\n')
		}
		r.dict = b
	}
	return r.dict
}

// DictionaryChunk returns up to count bytes of the dictionary at offset.
func (r *CommandRegistry) DictionaryChunk(offset uint32, count uint8) []byte {
	d := r.Dictionary()
	if offset >= uint32(len(d)) {
		return nil
	}
	end := min(offset+uint32(count), uint32(len(d)))
	return d[offset:end]
}

// DispatchCommand is a convenience function using the global registry
func DispatchCommand(cmdID uint16, data *[]byte) error {
	return globalRegistry.Dispatch(cmdID, data)
}

// GetGlobalRegistry returns the global command registry
func GetGlobalRegistry() *CommandRegistry {
	return globalRegistry
}
