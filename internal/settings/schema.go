// Package settings is a typed key/value configuration store with change
// notification, modelled on desktop settings schemas. Every store is bound
// to a Schema that declares its keys, their kinds, defaults and ranges.
package settings

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrUnknownKey is returned for keys not declared by the schema.
	ErrUnknownKey = errors.New("settings: unknown key")
	// ErrTypeMismatch is returned when a key is read or written as the wrong kind.
	ErrTypeMismatch = errors.New("settings: type mismatch")
	// ErrOutOfRange is returned for values outside the declared range or choices.
	ErrOutOfRange = errors.New("settings: value out of range")
)

// Kind is the value type of a key.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindEnum
	KindDouble
	KindString
	KindStrv
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindEnum:
		return "enum"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindStrv:
		return "strv"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Key declares one setting.
//
// Default holds a bool, int, float64, string (also for enums, the choice
// name) or []string according to Kind. Min and Max bound int and double keys
// when Min < Max.
type Key struct {
	Name    string
	Kind    Kind
	Default any
	Min     float64
	Max     float64
	Choices []string
}

// Schema is a named set of keys.
type Schema struct {
	id   string
	keys map[string]Key
	// declaration order, used for stable output
	names []string
}

// NewSchema validates keys and builds a schema.
func NewSchema(id string, keys ...Key) (*Schema, error) {
	if id == "" {
		return nil, errors.New("settings: empty schema id")
	}

	s := &Schema{id: id, keys: make(map[string]Key, len(keys))}

	for _, k := range keys {
		if k.Name == "" {
			return nil, fmt.Errorf("settings: schema %s: empty key name", id)
		}

		if _, ok := s.keys[k.Name]; ok {
			return nil, fmt.Errorf("settings: schema %s: duplicate key %s", id, k.Name)
		}

		if k.Kind == KindEnum && len(k.Choices) == 0 {
			return nil, fmt.Errorf("settings: schema %s: enum key %s has no choices", id, k.Name)
		}

		v, err := k.normalize(k.Default)
		if err != nil {
			return nil, fmt.Errorf("settings: schema %s: default of %s: %w", id, k.Name, err)
		}

		k.Default = v
		s.keys[k.Name] = k
		s.names = append(s.names, k.Name)
	}

	return s, nil
}

// MustSchema is like NewSchema but panics on error.
func MustSchema(id string, keys ...Key) *Schema {
	s, err := NewSchema(id, keys...)
	if err != nil {
		panic(err.Error())
	}

	return s
}

func (s *Schema) ID() string { return s.id }

// Key returns the declaration of name.
func (s *Schema) Key(name string) (Key, bool) {
	k, ok := s.keys[name]
	return k, ok
}

// Names returns the key names in declaration order.
func (s *Schema) Names() []string { return slices.Clone(s.names) }

// normalize checks v against the key and returns it in canonical form.
// Integer-valued inputs are accepted for double keys and float inputs with no
// fraction for int keys, which is what decoded YAML produces.
func (k Key) normalize(v any) (any, error) {
	switch k.Kind {
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants bool, got %T", ErrTypeMismatch, k.Name, v)
		}

		return b, nil
	case KindInt:
		var i int

		switch x := v.(type) {
		case int:
			i = x
		case int64:
			i = int(x)
		case float64:
			if x != math.Trunc(x) {
				return nil, fmt.Errorf("%w: %s wants int, got %v", ErrTypeMismatch, k.Name, x)
			}

			i = int(x)
		default:
			return nil, fmt.Errorf("%w: %s wants int, got %T", ErrTypeMismatch, k.Name, v)
		}

		if err := k.checkRange(float64(i)); err != nil {
			return nil, err
		}

		return i, nil
	case KindDouble:
		var f float64

		switch x := v.(type) {
		case float64:
			f = x
		case int:
			f = float64(x)
		case int64:
			f = float64(x)
		default:
			return nil, fmt.Errorf("%w: %s wants double, got %T", ErrTypeMismatch, k.Name, v)
		}

		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %s must be finite", ErrOutOfRange, k.Name)
		}

		if err := k.checkRange(f); err != nil {
			return nil, err
		}

		return f, nil
	case KindEnum:
		name, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants enum name, got %T", ErrTypeMismatch, k.Name, v)
		}

		if !slices.Contains(k.Choices, name) {
			return nil, fmt.Errorf("%w: %s has no choice %q", ErrOutOfRange, k.Name, name)
		}

		return name, nil
	case KindString:
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants string, got %T", ErrTypeMismatch, k.Name, v)
		}

		return str, nil
	case KindStrv:
		switch x := v.(type) {
		case []string:
			return slices.Clone(x), nil
		case []any:
			out := make([]string, 0, len(x))

			for _, e := range x {
				str, ok := e.(string)
				if !ok {
					return nil, fmt.Errorf("%w: %s wants strings, got %T", ErrTypeMismatch, k.Name, e)
				}

				out = append(out, str)
			}

			return out, nil
		case nil:
			return []string{}, nil
		default:
			return nil, fmt.Errorf("%w: %s wants strv, got %T", ErrTypeMismatch, k.Name, v)
		}
	default:
		return nil, fmt.Errorf("%w: %s has unknown kind %d", ErrTypeMismatch, k.Name, k.Kind)
	}
}

func (k Key) checkRange(v float64) error {
	if k.Min < k.Max && (v < k.Min || v > k.Max) {
		return fmt.Errorf("%w: %s = %v not in [%v, %v]", ErrOutOfRange, k.Name, v, k.Min, k.Max)
	}

	return nil
}

func equalValues(a, b any) bool {
	as, aok := a.([]string)
	bs, bok := b.([]string)

	if aok || bok {
		return aok && bok && slices.Equal(as, bs)
	}

	return a == b
}
