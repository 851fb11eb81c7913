//go:build !js

package window

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-sim/common"
	"github.com/Carmen-Shannon/oxy-sim/engine/input"
)

// Window provides platform windowing and translates platform input into input.Event values.
// All methods except Wake must be called from the goroutine that created the window.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetEventCallback sets the function receiving every translated input event.
	// It is called synchronously from the platform callback, in platform order.
	//
	// Parameters:
	//   - callback: function receiving the event
	SetEventCallback(callback func(ev input.Event))

	// SetCloseCallback sets the function called when the user asks to close the window,
	// either through the window manager or the Escape key. The window stays open until Close.
	//
	// Parameters:
	//   - callback: function to call
	SetCloseCallback(callback func())

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor suitable for creating a WebGPU surface.
	// The descriptor is platform-appropriate (Windows HWND, X11 Xlib, Wayland, macOS Metal, etc.)
	// and is created by the wgpuglfw bridge from the underlying GLFW window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform-specific surface descriptor, or nil if window is not initialized
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// Size returns the framebuffer size in physical pixels.
	//
	// Returns:
	//   - common.Size: the current size
	Size() common.Size

	// Close destroys the window and releases platform resources.
	//
	// Returns:
	//   - error: error if the window is not initialized
	Close() error

	// ProcessMessages runs the window message loop until done is closed.
	// Calls the update callback each iteration.
	//
	// Parameters:
	//   - done: closing it ends the loop; call Wake afterwards to end it promptly
	ProcessMessages(done <-chan struct{})

	// Wake interrupts a message loop waiting for events. Safe to call from any goroutine.
	Wake()
}

// engineWindow is the implementation of the Window interface.
// Holds window configuration, GLFW state, and event callbacks.
type engineWindow struct {
	// title is the window title displayed in the title bar.
	title string

	// minWidth is the minimum allowed window width during resize.
	minWidth int

	// minHeight is the minimum allowed window height during resize.
	minHeight int

	// width is the current framebuffer width in pixels.
	width int

	// height is the current framebuffer height in pixels.
	height int

	// internalWindow holds the platform-specific window data (glfwWindow).
	internalWindow any

	// onUpdate is called each iteration of the message loop (if set).
	onUpdate func()

	// onEvent receives translated input.
	onEvent func(ev input.Event)

	// onClose is called on a close request.
	onClose func()

	// events translates platform callbacks into input events.
	events eventTranslator
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a new Window with the specified options.
// Applies default values first, then each option in order.
// Locks the calling goroutine to its OS thread; the message loop must run on it.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the configured window
//   - error: error if the platform window cannot be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := newEngineWindow(options...)
	if err := newPlatformWindow(w); err != nil {
		return nil, fmt.Errorf("create platform window: %w", err)
	}
	return w, nil
}

func newEngineWindow(options ...WindowBuilderOption) *engineWindow {
	w := &engineWindow{
		title:     "oxy-sim",
		minWidth:  160,
		minHeight: 120,
		width:     1280,
		height:    720,
	}
	for _, opt := range options {
		opt(w)
	}
	w.events.emit = func(ev input.Event) {
		if w.onEvent != nil {
			w.onEvent(ev)
		}
	}
	w.events.close = func() {
		if w.onClose != nil {
			w.onClose()
		}
	}
	return w
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetEventCallback(callback func(ev input.Event)) {
	w.onEvent = callback
}

func (w *engineWindow) SetCloseCallback(callback func()) {
	w.onClose = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) Size() common.Size {
	return common.Size{Width: w.width, Height: w.height}
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		platformProcessMessages(w)

		if w.onUpdate != nil {
			w.onUpdate()
		}
	}
}

func (w *engineWindow) Wake() {
	platformWake(w)
}
