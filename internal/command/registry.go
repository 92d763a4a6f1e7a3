package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrInvalidDescriptor is returned for descriptors without a name or handler.
	ErrInvalidDescriptor = errors.New("invalid command descriptor")
)

// DuplicateNameError reports a name or alias that is already registered.
type DuplicateNameError struct {
	Name     string
	Existing string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("command name %q already registered by %q", e.Name, e.Existing)
}

type entry struct {
	desc  *Descriptor
	alias bool
}

// Registry maps canonical names and aliases to descriptors. Every alias
// resolves to exactly one canonical descriptor.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]entry
	canonical []*Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Build registers every descriptor in order and returns the first error.
func Build(descs []Descriptor) (*Registry, error) {
	r := NewRegistry()
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a descriptor under its name and aliases. Nothing is added when
// any of the keys collide.
func (r *Registry) Register(d Descriptor) error {
	name := normalize(d.Name)
	if name == "" || d.Handler == nil {
		return fmt.Errorf("%w: %q", ErrInvalidDescriptor, d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(d.Aliases)+1)
	keys = append(keys, name)
	seen := map[string]bool{name: true}
	for _, a := range d.Aliases {
		a = normalize(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		keys = append(keys, a)
	}

	for _, k := range keys {
		if e, ok := r.entries[k]; ok {
			return &DuplicateNameError{Name: k, Existing: e.desc.Name}
		}
	}

	desc := d
	desc.Name = name
	desc.Aliases = append([]string(nil), keys[1:]...)

	r.entries[name] = entry{desc: &desc}
	for _, a := range desc.Aliases {
		r.entries[a] = entry{desc: &desc, alias: true}
	}
	r.canonical = append(r.canonical, &desc)
	return nil
}

// MustRegister is Register for static tables; it panics on error.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Resolve looks up a typed name or alias.
func (r *Registry) Resolve(token string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[normalize(token)]
	if !ok {
		return nil, false
	}
	return e.desc, true
}

// IsAlias reports whether token is registered as an alias rather than a name.
func (r *Registry) IsAlias(token string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[normalize(token)]
	return ok && e.alias
}

// ListCanonical returns each descriptor once, ordered by category then name.
func (r *Registry) ListCanonical() []*Descriptor {
	r.mu.RLock()
	out := append([]*Descriptor(nil), r.canonical...)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Len returns the number of canonical commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.canonical)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
