package plugin

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-fxgraph/dsp/core"
	"github.com/cwbudde/algo-fxgraph/internal/settings"
)

// Binder connects settings keys to control ports. Every binding writes the
// current value immediately and again on every change.
type Binder struct {
	w   *Wrapper
	s   *settings.Store
	log zerolog.Logger

	mu       sync.Mutex
	handlers []settings.HandlerID
	convert  map[string]bool
}

// NewBinder creates a binder for w and s.
func NewBinder(w *Wrapper, s *settings.Store, log zerolog.Logger) *Binder {
	return &Binder{w: w, s: s, log: log, convert: make(map[string]bool)}
}

// BindKeyEnum copies the enum index of key into port.
func (b *Binder) BindKeyEnum(key, port string) error {
	return b.bind(key, port, func() (float64, error) {
		v, err := b.s.GetEnum(key)
		return float64(v), err
	})
}

// BindKeyBool copies key into port as 0 or 1.
func (b *Binder) BindKeyBool(key, port string) error {
	return b.bind(key, port, func() (float64, error) {
		v, err := b.s.GetBool(key)
		if v {
			return 1, err
		}

		return 0, err
	})
}

// BindKeyDouble copies key into port unchanged.
func (b *Binder) BindKeyDouble(key, port string) error {
	return b.bind(key, port, func() (float64, error) {
		return b.s.GetDouble(key)
	})
}

// BindKeyDoubleDB copies a decibel key into port, converting to linear gain
// unless the port itself is declared in dB.
func (b *Binder) BindKeyDoubleDB(key, port string) error {
	p, ok := b.port(port)
	convert := !ok || p.Unit != UnitDB

	b.mu.Lock()
	b.convert[key] = convert
	b.mu.Unlock()

	return b.bind(key, port, func() (float64, error) {
		v, err := b.s.GetDouble(key)
		if err != nil {
			return 0, err
		}

		if convert {
			return core.DBToLinear(v), nil
		}

		return v, nil
	})
}

// Converts reports whether key is converted from dB before it is written.
func (b *Binder) Converts(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.convert[key]
}

// Close disconnects every binding.
func (b *Binder) Close() {
	b.mu.Lock()
	ids := b.handlers
	b.handlers = nil
	b.mu.Unlock()

	for _, id := range ids {
		b.s.Disconnect(id)
	}
}

func (b *Binder) port(symbol string) (Port, bool) {
	if b.w.desc == nil {
		return Port{}, false
	}

	return b.w.desc.Port(symbol)
}

func (b *Binder) bind(key, port string, read func() (float64, error)) error {
	if !b.w.FoundPlugin() {
		return nil
	}

	if p, ok := b.port(port); !ok || p.Direction != PortInput {
		return fmt.Errorf("%w: %s is not an input of %s", ErrUnknownPort, port, b.w.uri)
	}

	push := func() error {
		v, err := read()
		if err != nil {
			return err
		}

		return b.w.SetControlPortValue(port, v)
	}

	if err := push(); err != nil {
		return fmt.Errorf("plugin: bind %s -> %s: %w", key, port, err)
	}

	id, err := b.s.Connect(key, func(string) {
		if err := push(); err != nil {
			b.log.Error().Err(err).Str("key", key).Str("port", port).Msg("failed to update control port")
		}
	})
	if err != nil {
		return fmt.Errorf("plugin: bind %s -> %s: %w", key, port, err)
	}

	b.mu.Lock()
	b.handlers = append(b.handlers, id)
	b.mu.Unlock()

	return nil
}

// BindingKind selects the conversion of a Binding.
type BindingKind int

const (
	BindEnum BindingKind = iota
	BindBool
	BindDouble
	BindDoubleDB
)

// Binding is one row of a binding table.
type Binding struct {
	Kind BindingKind
	Key  string
	Port string
}

// BindTable applies every binding, continuing past failures, and returns the
// failures joined.
func (b *Binder) BindTable(table []Binding) error {
	var errs []error

	for _, bd := range table {
		var err error

		switch bd.Kind {
		case BindEnum:
			err = b.BindKeyEnum(bd.Key, bd.Port)
		case BindBool:
			err = b.BindKeyBool(bd.Key, bd.Port)
		case BindDouble:
			err = b.BindKeyDouble(bd.Key, bd.Port)
		case BindDoubleDB:
			err = b.BindKeyDoubleDB(bd.Key, bd.Port)
		default:
			err = fmt.Errorf("plugin: unknown binding kind %d for %s", bd.Kind, bd.Key)
		}

		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
