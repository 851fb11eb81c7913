package common

// Virtual key codes carried by keyboard input events.
// Printable keys use their ASCII values, matching GLFW; browser key names are mapped onto the same codes.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyUnknown   = -1
	KeySpace     = 32  // Spacebar (ASCII)
	KeyA         = 65  // A key (ASCII)
	KeyC         = 67  // C key (ASCII)
	KeyD         = 68  // D key (ASCII)
	KeyP         = 80  // P key (ASCII)
	KeyR         = 82  // R key (ASCII)
	KeyS         = 83  // S key (ASCII)
	KeyW         = 87  // W key (ASCII)
	KeyEsc       = 256 // Escape key (GLFW)
	KeyEnter     = 257 // Enter key (GLFW)
	KeyTab       = 258 // Tab key (GLFW)
	KeyBackspace = 259 // Backspace key (GLFW)
	KeyRight     = 262 // Right arrow (GLFW)
	KeyLeft      = 263 // Left arrow (GLFW)
	KeyDown      = 264 // Down arrow (GLFW)
	KeyUp        = 265 // Up arrow (GLFW)

	Key0 = 48 // 0 key (ASCII)
	Key9 = 57 // 9 key (ASCII)
)

// Additional non-printable keys
const (
	KeyLeftShift  = 340 // Left Shift (GLFW)
	KeyRightShift = 344 // Right Shift (GLFW)
)

// Mouse button codes carried by pointer press/release events.
// Values match GLFW's button numbering and the DOM MouseEvent.button order for left/right/middle.
const (
	MouseButtonLeft   = 0
	MouseButtonRight  = 1
	MouseButtonMiddle = 2
)

// browserKeys maps DOM KeyboardEvent.key names onto the shared key codes.
var browserKeys = map[string]int{
	"Escape":     KeyEsc,
	"Enter":      KeyEnter,
	"Tab":        KeyTab,
	"Backspace":  KeyBackspace,
	"ArrowRight": KeyRight,
	"ArrowLeft":  KeyLeft,
	"ArrowDown":  KeyDown,
	"ArrowUp":    KeyUp,
	"Shift":      KeyLeftShift,
	" ":          KeySpace,
}

// KeyFromBrowser converts a DOM KeyboardEvent.key value into a shared key code.
// Single printable characters are upper-cased onto their ASCII value.
//
// Parameters:
//   - key: the DOM key name
//
// Returns:
//   - int: the key code, or KeyUnknown when no mapping exists
func KeyFromBrowser(key string) int {
	if code, ok := browserKeys[key]; ok {
		return code
	}
	if len(key) == 1 {
		c := key[0]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c >= 32 && c < 127 {
			return int(c)
		}
	}
	return KeyUnknown
}
