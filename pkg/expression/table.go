package expression

import (
	"embed"
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-yaml"

	"github.com/wrenlabs/go-wren/pkg/servo"
)

//go:embed data/expressions.yaml
var embeddedTable embed.FS

// Table is the immutable expression lookup built once at startup.
type Table struct {
	configs map[string]*Config
}

// tableFile is the YAML shape of an expression table.
type tableFile struct {
	Expressions []*Config `yaml:"expressions"`
}

// LoadTable parses a table and validates every entry against the
// calibration set. A single bad entry fails the whole load; a half-usable
// expression table is worse than a loud startup error.
func LoadTable(raw []byte, cals map[string]servo.Calibration) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("expression table: %w", err)
	}
	if len(file.Expressions) == 0 {
		return nil, fmt.Errorf("%w: table holds no expressions", ErrInvalidConfig)
	}

	configs := make(map[string]*Config, len(file.Expressions))
	for _, c := range file.Expressions {
		if err := c.validate(cals); err != nil {
			return nil, err
		}
		if _, dup := configs[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate expression %s", ErrInvalidConfig, c.Name)
		}
		configs[c.Name] = c
	}

	// Every table gets an idle state. A missing entry falls back to the
	// calibrated neutral pose.
	if _, ok := configs[IdleName]; !ok {
		configs[IdleName] = neutralIdle(cals)
	}

	return &Table{configs: configs}, nil
}

// LoadBuiltin loads the table compiled into the binary.
func LoadBuiltin(cals map[string]servo.Calibration) (*Table, error) {
	raw, err := embeddedTable.ReadFile("data/expressions.yaml")
	if err != nil {
		return nil, fmt.Errorf("expression table: read embedded: %w", err)
	}
	return LoadTable(raw, cals)
}

// LoadFile loads a custom table from disk, replacing the builtin one.
func LoadFile(path string, cals map[string]servo.Calibration) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("expression table: %w", err)
	}
	return LoadTable(raw, cals)
}

// neutralIdle builds the fallback idle from the calibration table.
func neutralIdle(cals map[string]servo.Calibration) *Config {
	targets := make(map[string]float64, len(cals))
	for id, cal := range cals {
		targets[id] = cal.NeutralDeg
	}
	return &Config{
		Name:         IdleName,
		Targets:      targets,
		TransitionMS: 400,
		Mood:         "neutral",
	}
}

// Get returns the config for name.
func (t *Table) Get(name string) (*Config, bool) {
	c, ok := t.configs[name]
	return c, ok
}

// Has reports whether the table holds name.
func (t *Table) Has(name string) bool {
	_, ok := t.configs[name]
	return ok
}

// Related returns the drift candidates for name, filtered down to moods
// the table actually holds.
func (t *Table) Related(name string) []string {
	c, ok := t.configs[name]
	if !ok {
		return nil
	}
	var out []string
	for _, rel := range c.Related {
		if t.Has(rel) {
			out = append(out, rel)
		}
	}
	return out
}

// Names returns all expression names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.configs))
	for name := range t.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of expressions in the table.
func (t *Table) Len() int {
	return len(t.configs)
}
