//go:build !js

package capture

import (
	"context"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-sim/common"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer"
)

// copyRowAlignment is the row pitch alignment wgpu requires for texture to buffer copies.
const copyRowAlignment = 256

// alignedBytesPerRow returns the padded row pitch for a texture width of 4 byte texels.
func alignedBytesPerRow(width int) int {
	row := width * 4
	return (row + copyRowAlignment - 1) / copyRowAlignment * copyRowAlignment
}

// pixelFormat maps a texture format to the byte order Convert understands.
func pixelFormat(f wgpu.TextureFormat) (PixelFormat, error) {
	switch f {
	case wgpu.TextureFormatBGRA8Unorm, wgpu.TextureFormatBGRA8UnormSrgb:
		return FormatBGRA8, nil
	case wgpu.TextureFormatRGBA8Unorm, wgpu.TextureFormatRGBA8UnormSrgb:
		return FormatRGBA8, nil
	default:
		return 0, fmt.Errorf("unsupported capture format %v", f)
	}
}

// wgpuReadback copies frame textures into a mappable staging buffer.
type wgpuReadback struct {
	device  *wgpu.Device
	queue   *wgpu.Queue
	staging *wgpu.Buffer
	size    uint64
}

var _ Readback = &wgpuReadback{}

// NewWGPUReadback creates a Readback on the renderer's device. The renderer's frame
// textures must have CopySrc usage, which WithCaptureSource and WithHeadless provide.
//
// Parameters:
//   - r: the renderer whose frames are read
//
// Returns:
//   - Readback: the readback
func NewWGPUReadback(r renderer.Renderer) Readback {
	return &wgpuReadback{device: r.Device(), queue: r.Queue()}
}

func (rb *wgpuReadback) ensureStaging(size uint64) error {
	if rb.staging != nil && rb.size == size {
		return nil
	}
	if rb.staging != nil {
		rb.staging.Release()
		rb.staging = nil
	}
	buf, err := rb.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "capture staging",
		Size:  size,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return err
	}
	rb.staging = buf
	rb.size = size
	return nil
}

func (rb *wgpuReadback) Read(ctx context.Context, target *renderer.FrameTarget) (*FrameBuffer, error) {
	if target == nil || target.Texture == nil {
		return nil, fmt.Errorf("%w: frame has no texture", common.ErrReadbackFailed)
	}
	format, err := pixelFormat(target.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrReadbackFailed, err)
	}

	bytesPerRow := alignedBytesPerRow(target.Width)
	size := uint64(bytesPerRow) * uint64(target.Height)
	if err := rb.ensureStaging(size); err != nil {
		return nil, fmt.Errorf("%w: create staging buffer: %v", common.ErrReadbackFailed, err)
	}

	encoder, err := rb.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "capture copy"})
	if err != nil {
		return nil, fmt.Errorf("%w: create encoder: %v", common.ErrReadbackFailed, err)
	}
	encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{
			Texture:  target.Texture,
			MipLevel: 0,
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.ImageCopyBuffer{
			Buffer: rb.staging,
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  uint32(bytesPerRow),
				RowsPerImage: uint32(target.Height),
			},
		},
		&wgpu.Extent3D{
			Width:              uint32(target.Width),
			Height:             uint32(target.Height),
			DepthOrArrayLayers: 1,
		},
	)
	commands, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		return nil, fmt.Errorf("%w: finish copy: %v", common.ErrReadbackFailed, err)
	}
	rb.queue.Submit(commands)
	commands.Release()

	var status wgpu.BufferMapAsyncStatus
	mapped := false
	rb.staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
		mapped = true
	})
	for !mapped {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrReadbackFailed, err)
		}
		rb.device.Poll(true, nil)
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("%w: map staging buffer: status %v", common.ErrReadbackFailed, status)
	}

	data := make([]byte, size)
	copy(data, rb.staging.GetMappedRange(0, uint(size)))
	rb.staging.Unmap()

	return &FrameBuffer{
		Data:        data,
		Width:       target.Width,
		Height:      target.Height,
		BytesPerRow: bytesPerRow,
		Format:      format,
	}, nil
}

func (rb *wgpuReadback) Release() {
	if rb.staging != nil {
		rb.staging.Release()
		rb.staging = nil
	}
}
