package input

import "fmt"

// Kind identifies which payload fields of an Event are meaningful.
type Kind int

const (
	// PointerMoved carries X and Y.
	PointerMoved Kind = iota
	// PointerPressed carries X, Y and Button.
	PointerPressed
	// PointerReleased carries X, Y and Button.
	PointerReleased
	// KeyPressed carries Key.
	KeyPressed
	// KeyReleased carries Key.
	KeyReleased
	// WindowResized carries Width and Height in physical pixels.
	WindowResized
	// FocusChanged carries Focused.
	FocusChanged
)

var kindNames = [...]string{
	PointerMoved:    "pointer_moved",
	PointerPressed:  "pointer_pressed",
	PointerReleased: "pointer_released",
	KeyPressed:      "key_pressed",
	KeyReleased:     "key_released",
	WindowResized:   "window_resized",
	FocusChanged:    "focus_changed",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name so events travel as readable JSON between page and worker.
func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown input kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if name == string(text) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown input kind %q", text)
}

// Event is a single platform-neutral input occurrence, produced by a bridge and
// delivered to the simulation exactly once, in production order.
// Pointer coordinates are normalized device coordinates in [-1, 1] with y up.
type Event struct {
	Kind    Kind    `json:"kind"`
	X       float32 `json:"x,omitempty"`
	Y       float32 `json:"y,omitempty"`
	Button  int     `json:"button,omitempty"`
	Key     int     `json:"key,omitempty"`
	Width   int     `json:"width,omitempty"`
	Height  int     `json:"height,omitempty"`
	Focused bool    `json:"focused,omitempty"`
}

func PointerMove(x, y float32) Event {
	return Event{Kind: PointerMoved, X: x, Y: y}
}

func PointerPress(x, y float32, button int) Event {
	return Event{Kind: PointerPressed, X: x, Y: y, Button: button}
}

func PointerRelease(x, y float32, button int) Event {
	return Event{Kind: PointerReleased, X: x, Y: y, Button: button}
}

func KeyPress(key int) Event {
	return Event{Kind: KeyPressed, Key: key}
}

func KeyRelease(key int) Event {
	return Event{Kind: KeyReleased, Key: key}
}

func Resize(width, height int) Event {
	return Event{Kind: WindowResized, Width: width, Height: height}
}

func Focus(focused bool) Event {
	return Event{Kind: FocusChanged, Focused: focused}
}
