package vars

import (
	"errors"
	"fmt"
	"sort"
)

// MaxCount is the default capacity of a Registry.
const MaxCount = 1024

var (
	ErrTooManyVars  = errors.New("too many vars")
	ErrDuplicateVar = errors.New("duplicate var")
	ErrReadOnly     = errors.New("var is read-only")
	ErrNoLoad       = errors.New("var can not be loaded")
	ErrEmptyName    = errors.New("empty var name")
)

// VarError ties an error to the var it happened on.
type VarError struct {
	Name string
	Err  error
}

func (e *VarError) Error() string { return fmt.Sprintf("var %q: %v", e.Name, e.Err) }
func (e *VarError) Unwrap() error { return e.Err }

// Registry holds every var by name. Single-goroutine access only.
type Registry struct {
	vars     map[string]*Var
	capacity int
}

func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = MaxCount
	}
	return &Registry{
		vars:     make(map[string]*Var, 64),
		capacity: capacity,
	}
}

func (r *Registry) add(v *Var) (*Var, error) {
	if v.name == "" {
		return nil, ErrEmptyName
	}
	if _, ok := r.vars[v.name]; ok {
		return nil, &VarError{Name: v.name, Err: ErrDuplicateVar}
	}
	if len(r.vars) >= r.capacity {
		return nil, fmt.Errorf("%w (max %d)", ErrTooManyVars, r.capacity)
	}
	r.vars[v.name] = v
	return v, nil
}

// Create registers a string var.
func (r *Registry) Create(name, value string, flags Flags) (*Var, error) {
	v := &Var{name: name, flags: flags &^ Range}
	v.value = value
	v.changed()
	return r.add(v)
}

// CreateNumber registers a numeric var. When lo != hi the var is clamped to [lo, hi].
func (r *Registry) CreateNumber(name string, value float64, flags Flags, lo, hi float64) (*Var, error) {
	v := &Var{name: name, flags: flags &^ Range, min: lo, max: hi}
	if lo != hi {
		v.flags |= Range
	}
	if err := v.SetNumber(value); err != nil {
		return nil, err
	}
	return r.add(v)
}

func (r *Registry) CreateBool(name string, value bool, flags Flags) (*Var, error) {
	s := "false"
	if value {
		s = "true"
	}
	return r.Create(name, s, flags)
}

// Lookup returns the named var without creating it.
func (r *Registry) Lookup(name string) (*Var, bool) {
	v, ok := r.vars[name]
	return v, ok
}

// Find returns the named var, creating an empty script var when it does not
// exist. Vars referenced only from scripts come into being this way and are
// always saved.
func (r *Registry) Find(name string) (*Var, error) {
	if v, ok := r.vars[name]; ok {
		return v, nil
	}
	return r.Create(name, "", Script|Modified)
}

// Restore applies a saved value, refusing NoLoad vars.
func (r *Registry) Restore(name, value string) error {
	v, err := r.Find(name)
	if err != nil {
		return err
	}
	if v.flags.Has(NoLoad) {
		return &VarError{Name: name, Err: ErrNoLoad}
	}
	return v.Set(value)
}

// Purge drops script vars, or every var when all is set.
func (r *Registry) Purge(all bool) int {
	n := 0
	for name, v := range r.vars {
		if all || v.flags.Has(Script) {
			delete(r.vars, name)
			n++
		}
	}
	return n
}

// Sorted returns every var ordered by name.
func (r *Registry) Sorted() []*Var {
	out := make([]*Var, 0, len(r.vars))
	for _, v := range r.vars {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Modified returns the vars that would be saved, ordered by name.
func (r *Registry) Modified() []*Var {
	var out []*Var
	for _, v := range r.Sorted() {
		if v.IsModified() {
			out = append(out, v)
		}
	}
	return out
}

func (r *Registry) Len() int { return len(r.vars) }
