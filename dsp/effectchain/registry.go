package effectchain

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cwbudde/algo-fxgraph/internal/settings"
)

// Factory builds one node of a kind.
type Factory func(ctx Context) (Effect, error)

// SchemaFunc returns the settings schema of a kind for the store id.
type SchemaFunc func(id string) (*settings.Schema, error)

type kind struct {
	schema  SchemaFunc
	factory Factory
}

// Registry maps node kinds to their schema and factory.
type Registry struct {
	kinds map[string]kind
}

var errDuplicateKind = errors.New("duplicate node kind")

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]kind)}
}

// Register adds a node kind.
func (r *Registry) Register(name string, schema SchemaFunc, factory Factory) error {
	if name == "" {
		return errors.New("empty node kind")
	}

	if schema == nil {
		return errors.New("nil schema")
	}

	if factory == nil {
		return errors.New("nil factory")
	}

	if _, exists := r.kinds[name]; exists {
		return fmt.Errorf("%w: %s", errDuplicateKind, name)
	}

	r.kinds[name] = kind{schema: schema, factory: factory}

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, schema SchemaFunc, factory Factory) {
	err := r.Register(name, schema, factory)
	if err != nil {
		panic("effectchain registry: " + err.Error())
	}
}

// Lookup returns the factory for the given kind, or nil.
func (r *Registry) Lookup(name string) Factory {
	return r.kinds[name].factory
}

// Schema builds the settings schema of a kind under id.
func (r *Registry) Schema(name, id string) (*settings.Schema, error) {
	k, ok := r.kinds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, name)
	}

	return k.schema(id)
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}
