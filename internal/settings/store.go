package settings

import (
	"fmt"
	"slices"
	"sync"
)

// HandlerID identifies a connected change handler.
type HandlerID uint64

// ChangeFunc receives the name of a key whose value changed.
type ChangeFunc func(key string)

type handler struct {
	id  HandlerID
	key string // empty for any-key handlers
	fn  ChangeFunc
}

// Store holds the current values of one schema. It is safe for concurrent
// use. Handlers run synchronously on the goroutine that made the change,
// after the store lock has been released, and only when a value changed.
type Store struct {
	schema *Schema

	mu       sync.RWMutex
	values   map[string]any
	handlers []handler
	nextID   HandlerID
}

// New creates a store with every key at its default.
func New(schema *Schema) *Store {
	s := &Store{schema: schema, values: make(map[string]any, len(schema.keys))}

	for name, k := range schema.keys {
		s.values[name] = cloneValue(k.Default)
	}

	return s
}

func (s *Store) Schema() *Schema { return s.schema }

// Connect registers fn for changes of key.
func (s *Store) Connect(key string, fn ChangeFunc) (HandlerID, error) {
	if _, ok := s.schema.keys[key]; !ok {
		return 0, fmt.Errorf("%w: %s/%s", ErrUnknownKey, s.schema.id, key)
	}

	return s.connect(key, fn), nil
}

// ConnectAny registers fn for changes of any key.
func (s *Store) ConnectAny(fn ChangeFunc) HandlerID {
	return s.connect("", fn)
}

func (s *Store) connect(key string, fn ChangeFunc) HandlerID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.handlers = append(s.handlers, handler{id: s.nextID, key: key, fn: fn})

	return s.nextID
}

// Disconnect removes a handler. Unknown ids are ignored.
func (s *Store) Disconnect(id HandlerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers = slices.DeleteFunc(s.handlers, func(h handler) bool { return h.id == id })
}

// Get returns the raw value of key.
func (s *Store) Get(key string) (any, error) {
	if _, ok := s.schema.keys[key]; !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownKey, s.schema.id, key)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneValue(s.values[key]), nil
}

// Set validates and stores v, then notifies handlers if the value changed.
func (s *Store) Set(key string, v any) error {
	k, ok := s.schema.keys[key]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownKey, s.schema.id, key)
	}

	nv, err := k.normalize(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if equalValues(s.values[key], nv) {
		s.mu.Unlock()
		return nil
	}

	s.values[key] = nv
	fns := s.handlersFor(key)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(key)
	}

	return nil
}

// Reset restores the default of key.
func (s *Store) Reset(key string) error {
	k, ok := s.schema.keys[key]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownKey, s.schema.id, key)
	}

	return s.Set(key, k.Default)
}

func (s *Store) handlersFor(key string) []ChangeFunc {
	var fns []ChangeFunc

	for _, h := range s.handlers {
		if h.key == "" || h.key == key {
			fns = append(fns, h.fn)
		}
	}

	return fns
}

func (s *Store) typed(key string, kind Kind) (any, Key, error) {
	k, ok := s.schema.keys[key]
	if !ok {
		return nil, k, fmt.Errorf("%w: %s/%s", ErrUnknownKey, s.schema.id, key)
	}

	if k.Kind != kind {
		return nil, k, fmt.Errorf("%w: %s is %s, not %s", ErrTypeMismatch, key, k.Kind, kind)
	}

	s.mu.RLock()
	v := s.values[key]
	s.mu.RUnlock()

	return v, k, nil
}

func (s *Store) GetBool(key string) (bool, error) {
	v, _, err := s.typed(key, KindBool)
	if err != nil {
		return false, err
	}

	return v.(bool), nil
}

func (s *Store) GetInt(key string) (int, error) {
	v, _, err := s.typed(key, KindInt)
	if err != nil {
		return 0, err
	}

	return v.(int), nil
}

func (s *Store) GetDouble(key string) (float64, error) {
	v, _, err := s.typed(key, KindDouble)
	if err != nil {
		return 0, err
	}

	return v.(float64), nil
}

func (s *Store) GetString(key string) (string, error) {
	v, _, err := s.typed(key, KindString)
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// GetEnum returns the index of the current choice.
func (s *Store) GetEnum(key string) (int, error) {
	v, k, err := s.typed(key, KindEnum)
	if err != nil {
		return 0, err
	}

	return slices.Index(k.Choices, v.(string)), nil
}

// GetEnumName returns the current choice.
func (s *Store) GetEnumName(key string) (string, error) {
	v, _, err := s.typed(key, KindEnum)
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// GetStrv returns a copy of a string list.
func (s *Store) GetStrv(key string) ([]string, error) {
	v, _, err := s.typed(key, KindStrv)
	if err != nil {
		return nil, err
	}

	return slices.Clone(v.([]string)), nil
}

func (s *Store) setTyped(key string, kind Kind, v any) error {
	if _, _, err := s.typed(key, kind); err != nil {
		return err
	}

	return s.Set(key, v)
}

func (s *Store) SetBool(key string, v bool) error { return s.setTyped(key, KindBool, v) }

func (s *Store) SetInt(key string, v int) error { return s.setTyped(key, KindInt, v) }

func (s *Store) SetDouble(key string, v float64) error { return s.setTyped(key, KindDouble, v) }

func (s *Store) SetString(key, v string) error { return s.setTyped(key, KindString, v) }

// SetEnum selects a choice by name.
func (s *Store) SetEnum(key, choice string) error { return s.setTyped(key, KindEnum, choice) }

func (s *Store) SetStrv(key string, v []string) error { return s.setTyped(key, KindStrv, v) }

// Snapshot returns a copy of all values keyed by name.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	if sv, ok := v.([]string); ok {
		return slices.Clone(sv)
	}

	return v
}
