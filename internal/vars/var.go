package vars

import (
	"strconv"
	"strings"
)

// Flags describe how a var may be changed and whether it is saved.
type Flags uint16

const (
	ReadOnly Flags = 1 << iota // value can not be changed after creation
	Range                      // numeric, clamped to [min, max]
	Script                     // created by a script, purged on level exit
	Modified                   // changed since creation; saved
	NoSync                     // never sent over the network
	NoLoad                     // never restored from a save
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{ReadOnly, "readonly"},
	{Range, "range"},
	{Script, "script"},
	{Modified, "modified"},
	{NoSync, "nosync"},
	{NoLoad, "noload"},
}

// ParseFlag maps a lower-case flag name to its bit.
func ParseFlag(name string) (Flags, bool) {
	for _, f := range flagNames {
		if f.name == strings.ToLower(name) {
			return f.flag, true
		}
	}
	return 0, false
}

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

func (f Flags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// Var is a named engine or script setting. The value is held as a string
// with a cached numeric form.
type Var struct {
	name     string
	value    string
	def      string
	number   float64
	flags    Flags
	min, max float64
	created  bool
}

func (v *Var) Name() string     { return v.name }
func (v *Var) String() string   { return v.value }
func (v *Var) Default() string  { return v.def }
func (v *Var) Number() float64  { return v.number }
func (v *Var) Int() int         { return int(v.number) }
func (v *Var) Flags() Flags     { return v.flags }
func (v *Var) IsModified() bool { return v.flags.Has(Modified) }

// Bool treats "true" and any non-zero number as true.
func (v *Var) Bool() bool {
	if strings.EqualFold(v.value, "true") {
		return true
	}
	return v.number != 0
}

// Set assigns a string value. Range vars parse and clamp it.
func (v *Var) Set(value string) error {
	if v.flags.Has(Range) {
		return v.SetNumber(parseNumber(value))
	}
	if err := v.checkWritable(); err != nil {
		return err
	}
	v.value = value
	v.changed()
	return nil
}

func (v *Var) SetNumber(value float64) error {
	if err := v.checkWritable(); err != nil {
		return err
	}
	if v.flags.Has(Range) {
		value = min(max(value, v.min), v.max)
	}
	v.value = strconv.FormatFloat(value, 'g', -1, 64)
	v.changed()
	return nil
}

func (v *Var) SetBool(value bool) error {
	if value {
		return v.Set("true")
	}
	return v.Set("false")
}

// Reset restores the creation value. Engine vars stop counting as modified.
func (v *Var) Reset() {
	v.value = v.def
	v.number = parseNumber(v.value)
	if !v.flags.Has(Script) {
		v.flags &^= Modified
	}
}

func (v *Var) checkWritable() error {
	if v.created && v.flags.Has(ReadOnly) {
		return &VarError{Name: v.name, Err: ErrReadOnly}
	}
	return nil
}

// changed refreshes the cached number. The first assignment is the default;
// later ones mark the var modified.
func (v *Var) changed() {
	v.number = parseNumber(v.value)
	if !v.created {
		v.def = v.value
		v.created = true
		return
	}
	v.flags |= Modified
}

func parseNumber(s string) float64 {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return 1
	case "false", "":
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
