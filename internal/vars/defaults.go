package vars

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultEntry is one row of the var defaults table. Exactly one of Value,
// Number or Bool should be set; Number may carry a Min/Max range.
type DefaultEntry struct {
	Name   string   `yaml:"name"`
	Value  *string  `yaml:"value"`
	Number *float64 `yaml:"number"`
	Bool   *bool    `yaml:"bool"`
	Min    float64  `yaml:"min"`
	Max    float64  `yaml:"max"`
	Flags  []string `yaml:"flags"`
}

// LoadDefaults reads a yaml list of DefaultEntry and registers each var.
// A missing file registers nothing.
func LoadDefaults(path string, r *Registry) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read var defaults: %w", err)
	}
	var entries []DefaultEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return 0, fmt.Errorf("parse var defaults: %w", err)
	}
	for _, e := range entries {
		if err := e.register(r); err != nil {
			return 0, fmt.Errorf("var defaults %s: %w", path, err)
		}
	}
	return len(entries), nil
}

func (e DefaultEntry) register(r *Registry) error {
	var flags Flags
	for _, name := range e.Flags {
		f, ok := ParseFlag(name)
		if !ok {
			return fmt.Errorf("var %q: unknown flag %q", e.Name, name)
		}
		flags |= f
	}

	var err error
	switch {
	case e.Number != nil:
		_, err = r.CreateNumber(e.Name, *e.Number, flags, e.Min, e.Max)
	case e.Bool != nil:
		_, err = r.CreateBool(e.Name, *e.Bool, flags)
	case e.Value != nil:
		_, err = r.Create(e.Name, *e.Value, flags)
	default:
		_, err = r.Create(e.Name, "", flags)
	}
	return err
}
