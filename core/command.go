package core

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidChannel = errors.New("channel cannot take a handler")
)

// CommandHandler builds the response to one request. req starts with the
// command byte; the received length is authoritative.
type CommandHandler func(req []byte) []byte

// Command is a registered sub-command of a channel
type Command struct {
	ID      uint8
	Name    string
	Handler CommandHandler
}

// CommandRegistry maps command bytes to handlers
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[uint8]*Command
}

// NewCommandRegistry creates an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint8]*Command),
	}
}

// Register adds or replaces the handler for id
func (r *CommandRegistry) Register(id uint8, name string, handler CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[id] = &Command{ID: id, Name: name, Handler: handler}
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint8) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// Count returns the number of registered commands
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered for req[0]
func (r *CommandRegistry) Dispatch(req []byte) ([]byte, error) {
	if len(req) == 0 {
		return nil, ErrUnknownCommand
	}
	cmd, ok := r.GetCommand(req[0])
	if !ok || cmd.Handler == nil {
		return nil, ErrUnknownCommand
	}
	return cmd.Handler(req), nil
}

// Names lists the registered commands ordered by ID, for diagnostics
func (r *CommandRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.commands))
	for id := range r.commands {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = r.commands[uint8(id)].Name
	}
	return names
}
