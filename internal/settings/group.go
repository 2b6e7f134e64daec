package settings

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Group collects stores by schema id and reads or writes them as one YAML
// document:
//
//	compressor:
//	  threshold: -18
//	pipeline:
//	  plugins: [limiter, compressor]
type Group struct {
	stores map[string]*Store
}

// NewGroup creates a group from stores with distinct schema ids.
func NewGroup(stores ...*Store) (*Group, error) {
	g := &Group{stores: make(map[string]*Store, len(stores))}

	for _, s := range stores {
		if err := g.Add(s); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// Add inserts a store.
func (g *Group) Add(s *Store) error {
	id := s.schema.id
	if _, ok := g.stores[id]; ok {
		return fmt.Errorf("settings: duplicate schema %s in group", id)
	}

	g.stores[id] = s

	return nil
}

// Store returns the store for a schema id, or nil.
func (g *Group) Store(id string) *Store { return g.stores[id] }

// IDs returns the schema ids in sorted order.
func (g *Group) IDs() []string {
	ids := make([]string, 0, len(g.stores))
	for id := range g.stores {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// LoadYAML applies the values in r. Unknown schemas and keys are errors;
// keys not present keep their current value. Every valid key is applied even
// when others fail, and the failures are returned joined.
func (g *Group) LoadYAML(r io.Reader) error {
	var doc map[string]map[string]any

	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}

		return fmt.Errorf("settings: decode yaml: %w", err)
	}

	var errs []error

	for id, values := range doc {
		s := g.stores[id]
		if s == nil {
			errs = append(errs, fmt.Errorf("%w: schema %s", ErrUnknownKey, id))
			continue
		}

		for _, name := range s.schema.names {
			v, ok := values[name]
			if !ok {
				continue
			}

			if err := s.Set(name, v); err != nil {
				errs = append(errs, err)
			}
		}

		for name := range values {
			if _, ok := s.schema.keys[name]; !ok {
				errs = append(errs, fmt.Errorf("%w: %s/%s", ErrUnknownKey, id, name))
			}
		}
	}

	return errors.Join(errs...)
}

// SaveYAML writes every value of every store.
func (g *Group) SaveYAML(w io.Writer) error {
	root := &yaml.Node{Kind: yaml.MappingNode}

	for _, id := range g.IDs() {
		s := g.stores[id]
		snap := s.Snapshot()
		section := &yaml.Node{Kind: yaml.MappingNode}

		for _, name := range s.schema.names {
			var val yaml.Node
			if err := val.Encode(snap[name]); err != nil {
				return fmt.Errorf("settings: encode %s/%s: %w", id, name, err)
			}

			section.Content = append(section.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: name}, &val)
		}

		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: id}, section)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("settings: encode yaml: %w", err)
	}

	return enc.Close()
}

// LoadFile reads path with LoadYAML.
func (g *Group) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("settings: open %s: %w", path, err)
	}
	defer f.Close()

	return g.LoadYAML(f)
}

// SaveFile writes path with SaveYAML.
func (g *Group) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("settings: create %s: %w", path, err)
	}

	if err := g.SaveYAML(f); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
