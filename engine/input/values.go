package input

import (
	"fmt"
	"sync"
)

// ValueKind identifies which field of a Value is meaningful.
type ValueKind int

const (
	Slider ValueKind = iota
	Checkbox
	Vector
)

var valueKindNames = [...]string{
	Slider:   "slider",
	Checkbox: "checkbox",
	Vector:   "vector",
}

func (k ValueKind) String() string {
	if k < 0 || int(k) >= len(valueKindNames) {
		return fmt.Sprintf("value_kind(%d)", int(k))
	}
	return valueKindNames[k]
}

func (k ValueKind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(valueKindNames) {
		return nil, fmt.Errorf("unknown value kind %d", int(k))
	}
	return []byte(valueKindNames[k]), nil
}

func (k *ValueKind) UnmarshalText(text []byte) error {
	for i, name := range valueKindNames {
		if name == string(text) {
			*k = ValueKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown value kind %q", text)
}

// Value is a single named control value: a slider scalar, a checkbox flag or a vector.
type Value struct {
	Kind   ValueKind `json:"kind"`
	Scalar float64   `json:"scalar,omitempty"`
	Bool   bool      `json:"bool,omitempty"`
	Vec    []float64 `json:"vec,omitempty"`
}

func SliderValue(v float64) Value { return Value{Kind: Slider, Scalar: v} }

func CheckboxValue(b bool) Value { return Value{Kind: Checkbox, Bool: b} }

func VectorValue(v ...float64) Value {
	return Value{Kind: Vector, Vec: append([]float64(nil), v...)}
}

func (v Value) clone() Value {
	if v.Vec != nil {
		v.Vec = append([]float64(nil), v.Vec...)
	}
	return v
}

// Values is an immutable per-tick snapshot of a ValueMap.
type Values map[string]Value

// Scalar returns the slider value stored under name, or fallback when absent or not a slider.
func (v Values) Scalar(name string, fallback float64) float64 {
	if val, ok := v[name]; ok && val.Kind == Slider {
		return val.Scalar
	}
	return fallback
}

// Bool returns the checkbox value stored under name, or fallback when absent or not a checkbox.
func (v Values) Bool(name string, fallback bool) bool {
	if val, ok := v[name]; ok && val.Kind == Checkbox {
		return val.Bool
	}
	return fallback
}

// Vector returns the vector stored under name, or nil.
func (v Values) Vector(name string) []float64 {
	if val, ok := v[name]; ok && val.Kind == Vector {
		return val.Vec
	}
	return nil
}

// ValueMap is the live, concurrency-safe store of control values. It is written by
// the overlay or by value messages from the controlling thread, and read by the
// scheduler through Snapshot once per tick.
type ValueMap struct {
	mu     sync.RWMutex
	values map[string]Value
	ranges map[string][2]float64
}

func NewValueMap() *ValueMap {
	return &ValueMap{
		values: make(map[string]Value),
		ranges: make(map[string][2]float64),
	}
}

// Define registers a slider with inclusive bounds and an initial value.
// Later SetScalar calls for name are clamped into [lo, hi].
func (m *ValueMap) Define(name string, lo, hi, initial float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ranges[name] = [2]float64{lo, hi}
	m.values[name] = SliderValue(clamp(initial, lo, hi))
}

// Set stores v under name, replacing any previous value. Slider values are clamped when a range is defined.
func (m *ValueMap) Set(name string, v Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.ranges[name]; ok && v.Kind == Slider {
		v.Scalar = clamp(v.Scalar, r[0], r[1])
	}
	m.values[name] = v.clone()
}

func (m *ValueMap) SetScalar(name string, f float64) { m.Set(name, SliderValue(f)) }

func (m *ValueMap) SetBool(name string, b bool) { m.Set(name, CheckboxValue(b)) }

func (m *ValueMap) Get(name string) (Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[name]
	return v.clone(), ok
}

// Snapshot returns a deep copy of the current values.
func (m *ValueMap) Snapshot() Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(Values, len(m.values))
	for k, v := range m.values {
		out[k] = v.clone()
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	return max(lo, min(v, hi))
}
