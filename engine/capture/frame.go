package capture

import (
	"context"

	"github.com/Carmen-Shannon/oxy-sim/engine/renderer"
)

// PixelFormat is the byte order of a read back frame.
type PixelFormat int

const (
	FormatRGBA8 PixelFormat = iota
	FormatBGRA8
)

func (f PixelFormat) String() string {
	switch f {
	case FormatRGBA8:
		return "rgba8"
	case FormatBGRA8:
		return "bgra8"
	default:
		return "unknown"
	}
}

// FrameBuffer is a frame copied out of GPU memory. Rows are BytesPerRow apart,
// which may include alignment padding after Width*4 bytes.
type FrameBuffer struct {
	Seq         uint64
	Data        []byte
	Width       int
	Height      int
	BytesPerRow int
	Format      PixelFormat
}

// ConvertedBuffer is a frame in planar I420: a full resolution Y plane followed by
// quarter resolution U and V planes.
type ConvertedBuffer struct {
	Seq    uint64
	Width  int
	Height int
	Y      []byte
	U      []byte
	V      []byte
}

// Readback copies a submitted frame into CPU memory. It runs on the render goroutine.
type Readback interface {
	// Read copies the frame texture of target.
	//
	// Returns:
	//   - *FrameBuffer: the frame pixels
	//   - error: error wrapping common.ErrReadbackFailed
	Read(ctx context.Context, target *renderer.FrameTarget) (*FrameBuffer, error)
	// Release frees any staging resources.
	Release()
}

// Encoder writes converted frames to the output in the order given.
type Encoder interface {
	Encode(frame *ConvertedBuffer) error
	Close() error
}
