package input

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
)

// ControlKind identifies the widget a control is presented as.
type ControlKind int

const (
	ControlSlider ControlKind = iota
	ControlCheckbox
)

// Control is one leaf of a control schema. Name is scoped by enclosing groups as "group.name".
type Control struct {
	Name       string
	Kind       ControlKind
	Min        float64
	Max        float64
	Default    float64
	HasDefault bool
}

// Block is a panel of controls as declared by one [[block]] table.
type Block struct {
	Name     string
	Size     [2]float32
	HasSize  bool
	Controls []Control
}

// Metadata describes the simulation the schema belongs to.
type Metadata struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Author      string `toml:"author"`
}

// Schema is a parsed control schema document.
type Schema struct {
	Simulation Metadata
	Blocks     []Block
}

type rawSchema struct {
	Simulation *Metadata        `toml:"simulation"`
	Blocks     []map[string]any `toml:"block"`
}

// ParseControls decodes a control schema document. Each [[block]] may carry
// _name and _size keys; every other key is a slider ({ SLIDER = [lo, hi, default?] }),
// a checkbox ("CHECKBOX") or a nested group table.
//
// Parameters:
//   - data: the TOML document
//
// Returns:
//   - *Schema: the parsed schema with controls sorted by scoped name within each block
//   - error: error if the document is malformed
func ParseControls(data string) (*Schema, error) {
	var raw rawSchema
	if _, err := toml.Decode(data, &raw); err != nil {
		return nil, fmt.Errorf("parse controls: %w", err)
	}
	if raw.Simulation == nil || raw.Simulation.Name == "" {
		return nil, errors.New("parse controls: missing [simulation] name")
	}

	s := &Schema{Simulation: *raw.Simulation}
	for i, rb := range raw.Blocks {
		var b Block
		for key, val := range rb {
			switch key {
			case "_name":
				name, ok := val.(string)
				if !ok {
					return nil, fmt.Errorf("parse controls: block %d: _name must be a string", i)
				}
				b.Name = name
			case "_size":
				nums, err := numbers(val)
				if err != nil || len(nums) != 2 {
					return nil, fmt.Errorf("parse controls: block %d: _size must be two numbers", i)
				}
				b.Size = [2]float32{float32(nums[0]), float32(nums[1])}
				b.HasSize = true
			default:
				controls, err := parseControl(key, val)
				if err != nil {
					return nil, fmt.Errorf("parse controls: block %d: %w", i, err)
				}
				b.Controls = append(b.Controls, controls...)
			}
		}
		sort.Slice(b.Controls, func(x, y int) bool { return b.Controls[x].Name < b.Controls[y].Name })
		s.Blocks = append(s.Blocks, b)
	}
	return s, nil
}

// LoadControls reads and parses the control schema at path.
func LoadControls(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read controls %s: %w", path, err)
	}
	return ParseControls(string(data))
}

// Values builds a ValueMap holding every control's initial value.
// Sliders start at their default or, without one, at their lower bound; checkboxes start unchecked.
func (s *Schema) Values() *ValueMap {
	m := NewValueMap()
	for _, b := range s.Blocks {
		for _, c := range b.Controls {
			switch c.Kind {
			case ControlSlider:
				initial := c.Min
				if c.HasDefault {
					initial = c.Default
				}
				m.Define(c.Name, c.Min, c.Max, initial)
			case ControlCheckbox:
				m.SetBool(c.Name, false)
			}
		}
	}
	return m
}

func parseControl(name string, val any) ([]Control, error) {
	switch v := val.(type) {
	case string:
		if v != "CHECKBOX" {
			return nil, fmt.Errorf("control %q: unknown kind %q", name, v)
		}
		return []Control{{Name: name, Kind: ControlCheckbox}}, nil
	case map[string]any:
		if bounds, ok := v["SLIDER"]; ok && len(v) == 1 {
			nums, err := numbers(bounds)
			if err != nil || len(nums) < 2 || len(nums) > 3 {
				return nil, fmt.Errorf("control %q: SLIDER takes [lo, hi] or [lo, hi, default]", name)
			}
			c := Control{Name: name, Kind: ControlSlider, Min: nums[0], Max: nums[1]}
			if len(nums) == 3 {
				c.Default = nums[2]
				c.HasDefault = true
			}
			return []Control{c}, nil
		}
		var out []Control
		for key, inner := range v {
			controls, err := parseControl(name+"."+key, inner)
			if err != nil {
				return nil, err
			}
			out = append(out, controls...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("control %q: unsupported value %T", name, val)
	}
}

func numbers(val any) ([]float64, error) {
	items, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", val)
	}
	out := make([]float64, 0, len(items))
	for _, it := range items {
		switch n := it.(type) {
		case float64:
			out = append(out, n)
		case int64:
			out = append(out, float64(n))
		default:
			return nil, fmt.Errorf("expected number, got %T", it)
		}
	}
	return out, nil
}
