package pipeline

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// vertexFormatSizes holds the byte size of each supported vertex attribute format for offset calculation.
var vertexFormatSizes = map[wgpu.VertexFormat]uint64{
	wgpu.VertexFormatFloat32:   4,
	wgpu.VertexFormatFloat32x2: 8,
	wgpu.VertexFormatFloat32x3: 12,
	wgpu.VertexFormatFloat32x4: 16,
	wgpu.VertexFormatSint32:    4,
	wgpu.VertexFormatSint32x2:  8,
	wgpu.VertexFormatSint32x3:  12,
	wgpu.VertexFormatSint32x4:  16,
	wgpu.VertexFormatUint32:    4,
	wgpu.VertexFormatUint32x2:  8,
	wgpu.VertexFormatUint32x3:  12,
	wgpu.VertexFormatUint32x4:  16,
	wgpu.VertexFormatFloat16x2: 4,
	wgpu.VertexFormatFloat16x4: 8,
}

// VertexLayout builds a tightly packed vertex buffer layout. Attributes receive
// sequential byte offsets and shader locations starting at firstLocation, and the
// array stride is the sum of the attribute sizes.
//
// Parameters:
//   - stepMode: per-vertex or per-instance stepping
//   - firstLocation: the @location of the first attribute
//   - formats: the attribute formats in declaration order
//
// Returns:
//   - wgpu.VertexBufferLayout: the constructed layout
//   - error: error if a format has no known size
func VertexLayout(stepMode wgpu.VertexStepMode, firstLocation uint32, formats ...wgpu.VertexFormat) (wgpu.VertexBufferLayout, error) {
	attrs := make([]wgpu.VertexAttribute, 0, len(formats))
	var offset uint64

	for i, f := range formats {
		size, ok := vertexFormatSizes[f]
		if !ok {
			return wgpu.VertexBufferLayout{}, fmt.Errorf("vertex attribute %d: unsupported format %v", i, f)
		}
		attrs = append(attrs, wgpu.VertexAttribute{
			Format:         f,
			Offset:         offset,
			ShaderLocation: firstLocation + uint32(i),
		})
		offset += size
	}

	return wgpu.VertexBufferLayout{
		ArrayStride: offset,
		StepMode:    stepMode,
		Attributes:  attrs,
	}, nil
}
