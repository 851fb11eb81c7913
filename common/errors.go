package common

import "errors"

// Error taxonomy shared by the renderer, scheduler, capture pipeline and bridges.
// Callers wrap these with fmt.Errorf("...: %w", err) and classify with errors.Is.
var (
	// ErrDeviceInit is returned when no GPU adapter or device could be acquired.
	ErrDeviceInit = errors.New("gpu device initialization failed")

	// ErrSurfaceLost is returned when the presentation surface could not provide a frame texture.
	// A single reconfigure-and-retry is permitted before it becomes fatal.
	ErrSurfaceLost = errors.New("surface lost")

	// ErrReadbackFailed is returned when a rendered frame could not be copied back to host memory.
	ErrReadbackFailed = errors.New("frame readback failed")

	// ErrTransportClosed is returned when the message channel between a controller and its worker is gone.
	ErrTransportClosed = errors.New("transport closed")

	// ErrProtocolViolation is returned when the frame protocol is used out of order
	// or a bridge message is malformed or unexpected.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrStopped is returned when input or work is submitted after shutdown.
	ErrStopped = errors.New("stopped")
)
