package dag

import (
	"fmt"
	"maps"
	"sync"
)

// State is the run's shared context record. Gates write their outcome under
// GateKey; runners may store anything else. It is safe for concurrent use.
type State struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewState creates a new empty State.
func NewState() *State {
	return &State{data: make(map[string]any)}
}

// NewStateFrom creates a State seeded with a copy of values.
func NewStateFrom(values map[string]any) *State {
	s := NewState()
	maps.Copy(s.data, values)
	return s
}

// Get retrieves a value by key. Returns false if the key does not exist.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores a value by key.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Snapshot returns a shallow copy of every entry.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}

// Len returns the number of entries.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// GateKey is the State key holding a gate's boolean outcome.
func GateKey(id NodeID) string { return "gate_" + string(id) }

// GatePort is the typed accessor for a gate's outcome.
func GatePort(id NodeID) Port[bool] { return Port[bool]{Key: GateKey(id)} }

// Port is a compile-time typed accessor for State.
type Port[T any] struct {
	Key string
}

// Read retrieves a typed value from state using a Port.
// Returns an error if the key is missing or the type doesn't match.
func Read[T any](state *State, port Port[T]) (T, error) {
	var zero T
	raw, ok := state.Get(port.Key)
	if !ok {
		return zero, fmt.Errorf("dag: state key %q not found", port.Key)
	}
	val, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("dag: state key %q: expected %T, got %T", port.Key, zero, raw)
	}
	return val, nil
}

// Write stores a typed value into state using a Port.
func Write[T any](state *State, port Port[T], value T) {
	state.Set(port.Key, value)
}
