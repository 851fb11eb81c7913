package common

// Size is a width/height pair in physical pixels.
type Size struct {
	Width  int
	Height int
}

// AspectRatio returns Width/Height, or 1 when the height is zero.
//
// Returns:
//   - float32: the aspect ratio of the size
func (s Size) AspectRatio() float32 {
	if s.Height == 0 {
		return 1
	}
	return float32(s.Width) / float32(s.Height)
}

// Empty reports whether either dimension is zero or negative, as happens while a window is minimized.
//
// Returns:
//   - bool: true if the size cannot back a surface
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// NormalizePointer converts a pixel position within a surface of the given size into
// normalized device coordinates in [-1, 1] with y pointing up.
//
// Parameters:
//   - x: horizontal position in pixels from the left edge
//   - y: vertical position in pixels from the top edge
//   - size: the surface size in pixels
//
// Returns:
//   - float32: normalized x
//   - float32: normalized y
func NormalizePointer(x, y float64, size Size) (float32, float32) {
	if size.Empty() {
		return 0, 0
	}
	nx := x/float64(size.Width)*2 - 1
	ny := 1 - y/float64(size.Height)*2
	return float32(nx), float32(ny)
}
