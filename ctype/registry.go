package ctype

import (
	"sort"
	"sync"

	"github.com/wippyai/structrecover/errors"
)

// Registry is an in-memory local type library. Registration replaces an
// existing type of the same name.
type Registry struct {
	types   map[string]*Type
	mu      sync.RWMutex
	ptrSize int
}

// NewRegistry creates an empty registry for a target with the given
// pointer width.
func NewRegistry(ptrSize int) *Registry {
	return &Registry{
		types:   make(map[string]*Type),
		ptrSize: ptrSize,
	}
}

// PointerSize returns the pointer width of the target.
func (r *Registry) PointerSize() int {
	return r.ptrSize
}

// Lookup implements Resolver.
func (r *Registry) Lookup(name string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Resolve returns the registered type called name.
func (r *Registry) Resolve(name string) (*Type, error) {
	if t, ok := r.Lookup(name); ok {
		return t, nil
	}
	return nil, errors.NotFound(errors.PhaseRegister, "type", name)
}

// Register adds t under its own name, replacing any previous definition.
func (r *Registry) Register(t *Type) (*Type, error) {
	if err := r.Validate(t); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.types, t.Name)
	r.types[t.Name] = t
	return t, nil
}

// RegisterDeclaration parses decl and registers the resulting struct.
func (r *Registry) RegisterDeclaration(decl string) (*Type, error) {
	t, err := ParseDeclaration(decl, r, r.ptrSize)
	if err != nil {
		return nil, err
	}
	return r.Register(t)
}

// Delete removes name from the registry and reports whether it existed.
func (r *Registry) Delete(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.types[name]
	delete(r.types, name)
	return ok
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate reports whether Register would accept t, without registering it.
func (r *Registry) Validate(t *Type) error {
	if t == nil || t.Kind != KindStruct {
		return errors.New(errors.PhaseRegister, errors.KindRegistrationConflict).
			Detail("only struct types can be registered").
			Build()
	}
	if !IsIdentifier(t.Name) {
		return errors.RegistrationConflict(t.Name, "not a valid identifier")
	}
	if IsBuiltin(t.Name) {
		return errors.RegistrationConflict(t.Name, "name is a builtin type")
	}
	if len(t.Members) == 0 {
		return errors.RegistrationConflict(t.Name, "struct has no members")
	}
	for _, m := range t.Members {
		if contains(m.Type, t.Name) {
			return errors.New(errors.PhaseRegister, errors.KindRegistrationConflict).
				TypeName(t.Name).
				Path(t.Name, m.Name).
				Detail("struct contains itself by value").
				Build()
		}
	}
	return nil
}

// contains reports whether t embeds the struct called name by value.
func contains(t *Type, name string) bool {
	for t != nil {
		switch t.Kind {
		case KindArray:
			t = t.Elem
		case KindNamed:
			if t.Name == name {
				return true
			}
			t = t.ref
		case KindStruct:
			if t.Name == name {
				return true
			}
			for _, m := range t.Members {
				if contains(m.Type, name) {
					return true
				}
			}
			return false
		default:
			return false
		}
	}
	return false
}

// IsIdentifier reports whether s is a valid C identifier.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
