package buffer

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// Kind selects the GPU usage of a Buffer.
type Kind int

const (
	// KindUniform is a uniform buffer bound at binding 0 of its own bind group.
	KindUniform Kind = iota
	// KindVertex is a vertex (or instance) buffer.
	KindVertex
	// KindIndex is an index buffer.
	KindIndex
)

// Buffer is a GPU buffer created by the renderer. Uniform buffers also own the
// bind group and layout that expose them to shaders.
// The GPU objects are released by Release, normally through the renderer's Release.
type Buffer struct {
	label string
	kind  Kind
	size  uint64

	gpu             *wgpu.Buffer
	bindGroup       *wgpu.BindGroup
	bindGroupLayout *wgpu.BindGroupLayout
}

// Usage returns the wgpu usage flags for a buffer kind. Every kind is a copy destination so it can be rewritten.
func Usage(kind Kind) wgpu.BufferUsage {
	switch kind {
	case KindUniform:
		return wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
	case KindIndex:
		return wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst
	default:
		return wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst
	}
}

// AlignedSize rounds n up to the size the GPU accepts for the given kind:
// 16 bytes for uniforms and 4 bytes (COPY_BUFFER_ALIGNMENT) otherwise. Zero becomes one unit.
func AlignedSize(kind Kind, n int) uint64 {
	align := uint64(4)
	if kind == KindUniform {
		align = 16
	}
	size := uint64(max(n, 1))
	return (size + align - 1) / align * align
}

// Pad returns data extended with zero bytes to size. data is returned as is when already large enough.
func Pad(data []byte, size uint64) []byte {
	if uint64(len(data)) >= size {
		return data
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}

// New creates a buffer sized for data, uploads data through the queue and, for
// uniforms, creates a bind group layout and bind group visible to the vertex and fragment stages.
//
// Parameters:
//   - device: the device that owns the buffer
//   - queue: the queue used for the initial upload
//   - label: a debug label
//   - kind: the buffer kind
//   - data: the initial contents; may be empty
//
// Returns:
//   - *Buffer: the created buffer
//   - error: error if any GPU object could not be created
func New(device *wgpu.Device, queue *wgpu.Queue, label string, kind Kind, data []byte) (*Buffer, error) {
	size := AlignedSize(kind, len(data))
	gpu, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             size,
		Usage:            Usage(kind),
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %s: %w", label, err)
	}
	b := &Buffer{label: label, kind: kind, size: size, gpu: gpu}

	if len(data) > 0 {
		queue.WriteBuffer(gpu, 0, Pad(data, size))
	}

	if kind != KindUniform {
		return b, nil
	}

	b.bindGroupLayout, err = device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: label + " Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
				Buffer: wgpu.BufferBindingLayout{
					Type:           wgpu.BufferBindingTypeUniform,
					MinBindingSize: size,
				},
			},
		},
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("create bind group layout %s: %w", label, err)
	}

	b.bindGroup, err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  label + " Bind Group",
		Layout: b.bindGroupLayout,
		Entries: []wgpu.BindGroupEntry{
			{
				Binding: 0,
				Buffer:  gpu,
				Offset:  0,
				Size:    wgpu.WholeSize,
			},
		},
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("create bind group %s: %w", label, err)
	}
	return b, nil
}

func (b *Buffer) Label() string { return b.label }

func (b *Buffer) Kind() Kind { return b.kind }

// Size returns the allocated size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

func (b *Buffer) GPU() *wgpu.Buffer { return b.gpu }

// BindGroup returns the bind group for uniform buffers, nil otherwise.
func (b *Buffer) BindGroup() *wgpu.BindGroup { return b.bindGroup }

// BindGroupLayout returns the bind group layout for uniform buffers, nil otherwise.
func (b *Buffer) BindGroupLayout() *wgpu.BindGroupLayout { return b.bindGroupLayout }

// Release releases every GPU object held by the buffer. Safe to call more than once.
func (b *Buffer) Release() {
	if b.bindGroup != nil {
		b.bindGroup.Release()
		b.bindGroup = nil
	}
	if b.bindGroupLayout != nil {
		b.bindGroupLayout.Release()
		b.bindGroupLayout = nil
	}
	if b.gpu != nil {
		b.gpu.Release()
		b.gpu = nil
	}
}
