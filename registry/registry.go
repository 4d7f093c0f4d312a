package registry

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// DefaultDemo is the demo baked into the image and served when nothing else is configured.
const DefaultDemo = "scribble2image"

// ErrNotFound is matched by every LookupError.
var ErrNotFound = errors.New("demo not found")

// LookupError reports a demo name that is not in the registry.
type LookupError struct {
	Name string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("demo %q not found in registry", e.Name)
}

// Is reports whether target is ErrNotFound.
func (e *LookupError) Is(target error) bool { return target == ErrNotFound }

// Registry maps demo names to their descriptors. It is read-only after New.
type Registry struct {
	demos []Demo
	index map[string]int
}

// New builds the registry from the compiled-in demo table.
func New() *Registry {
	r, err := build(builtin())
	if err != nil {
		panic(err)
	}
	return r
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultOnce.Do(func() { defaultReg = New() })
	return defaultReg
}

func build(demos []Demo) (*Registry, error) {
	r := &Registry{
		demos: make([]Demo, 0, len(demos)),
		index: make(map[string]int, len(demos)),
	}
	for _, d := range demos {
		if d.name == "" {
			return nil, fmt.Errorf("registry: demo with empty name")
		}
		if _, dup := r.index[d.name]; dup {
			return nil, fmt.Errorf("registry: duplicate demo %q", d.name)
		}
		if len(d.modelFiles) == 0 {
			return nil, fmt.Errorf("registry: demo %q has no model files", d.name)
		}
		r.index[d.name] = len(r.demos)
		r.demos = append(r.demos, d)
	}
	return r, nil
}

// Lookup returns the demo registered under name.
func (r *Registry) Lookup(name string) (Demo, error) {
	i, ok := r.index[name]
	if !ok {
		return Demo{}, &LookupError{Name: name}
	}
	return r.demos[i], nil
}

// Names returns all demo names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.demos))
	for _, d := range r.demos {
		names = append(names, d.name)
	}
	sort.Strings(names)
	return names
}

// All returns every demo in declaration order.
func (r *Registry) All() []Demo {
	return slices.Clone(r.demos)
}

// Len returns the number of registered demos.
func (r *Registry) Len() int { return len(r.demos) }
