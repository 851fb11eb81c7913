package renderer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-sim/common"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer/buffer"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer/pipeline"
)

// ErrFrameSkipped is returned by BeginFrame while the surface has no drawable area,
// for example while the window is minimized. It is not an error condition for the caller's loop.
var ErrFrameSkipped = errors.New("frame skipped: surface has zero size")

// SurfaceTarget describes where the renderer draws: a platform surface, or an offscreen
// texture when Descriptor is nil and the renderer is headless.
type SurfaceTarget struct {
	Descriptor *wgpu.SurfaceDescriptor
	Width      int
	Height     int
}

// FrameTarget is the per-frame handle given to a simulation between BeginFrame and Submit.
// It must not be retained past the Render call that received it.
type FrameTarget struct {
	// Pass is the open render pass targeting the frame's color attachment.
	Pass *wgpu.RenderPassEncoder
	// Encoder is the command encoder the pass was started on.
	Encoder *wgpu.CommandEncoder
	// View is the color attachment view.
	View *wgpu.TextureView
	// Texture is the frame texture; it is the readback source for capture.
	Texture *wgpu.Texture

	Width  int
	Height int
	Format wgpu.TextureFormat

	// Index counts frames begun since the renderer was created, starting at 0.
	Index uint64
	// Delta is the time since the previous frame began.
	Delta time.Duration
	// Elapsed is the time since the first frame began.
	Elapsed time.Duration
}

// AspectRatio returns Width/Height of the frame.
func (t *FrameTarget) AspectRatio() float32 {
	return common.Size{Width: t.Width, Height: t.Height}.AspectRatio()
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu  *sync.Mutex
	log *zap.Logger

	pipelineCache map[string]pipeline.Pipeline
	buffers       []*buffer.Buffer

	backendType RendererBackendType
	backend     RendererBackend

	guard frameGuard
	size  common.Size

	frameIndex uint64
	firstFrame time.Time
	lastFrame  time.Time
	now        func() time.Time
	fixedStep  time.Duration
	released   bool

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	headless             bool
	captureSource        bool
	clearColor           wgpu.Color
	pendingPresentMode   *PresentMode
	pendingMSAA          *MSAASampleCount
}

// Renderer owns the GPU device, queue and presentation target for one running
// simulation, and drives the per-frame protocol BeginFrame -> Submit -> Present.
//
// A Renderer is used by one goroutine at a time. Calls out of protocol order return
// an error wrapping common.ErrProtocolViolation.
type Renderer interface {
	// Pipeline retrieves the cached Pipeline associated with the given key.
	// If the Pipeline does not exist, this will return nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// RegisterPipelines creates the GPU render pipeline for each description and caches it
	// by PipelineKey. Keys that are already registered are skipped.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: an error if pipeline creation fails
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// CreateUniform creates a uniform buffer holding data, with its own bind group.
	//
	// Parameters:
	//   - label: a debug label
	//   - data: the initial contents
	//
	// Returns:
	//   - *buffer.Buffer: the created buffer, owned by the renderer
	//   - error: an error if creation fails
	CreateUniform(label string, data []byte) (*buffer.Buffer, error)

	// CreateVertexBuffer creates a vertex or instance buffer holding data.
	//
	// Parameters:
	//   - label: a debug label
	//   - data: the initial contents
	//
	// Returns:
	//   - *buffer.Buffer: the created buffer, owned by the renderer
	//   - error: an error if creation fails
	CreateVertexBuffer(label string, data []byte) (*buffer.Buffer, error)

	// CreateIndexBuffer creates an index buffer holding data.
	//
	// Parameters:
	//   - label: a debug label
	//   - data: the initial contents
	//
	// Returns:
	//   - *buffer.Buffer: the created buffer, owned by the renderer
	//   - error: an error if creation fails
	CreateIndexBuffer(label string, data []byte) (*buffer.Buffer, error)

	// WriteBuffer queues a write of data into b at offset. data is zero-padded to a multiple of four bytes.
	//
	// Parameters:
	//   - b: the destination buffer
	//   - offset: byte offset into the buffer, a multiple of four
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: an error if the write does not fit
	WriteBuffer(b *buffer.Buffer, offset uint64, data []byte) error

	// Resize reconfigures the presentation target for a new size in physical pixels.
	// A zero size is recorded and frames are skipped until a non-zero size arrives.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	Resize(width, height int)

	// Reconfigure re-applies the current surface configuration, used to recover from a lost surface.
	//
	// Returns:
	//   - error: an error if the surface could not be configured
	Reconfigure() error

	// BeginFrame acquires the next frame texture, creates a command encoder and opens the render pass.
	//
	// Returns:
	//   - *FrameTarget: the frame handle
	//   - error: common.ErrSurfaceLost if no texture could be acquired, ErrFrameSkipped
	//     while the surface has zero size, or common.ErrProtocolViolation if a frame is already open
	BeginFrame() (*FrameTarget, error)

	// Submit ends the render pass and submits the recorded commands to the queue.
	//
	// Returns:
	//   - error: common.ErrProtocolViolation if no frame is open
	Submit() error

	// Present displays the submitted frame and releases the frame texture.
	//
	// Returns:
	//   - error: common.ErrProtocolViolation if the frame has not been submitted
	Present() error

	// Device returns the GPU device.
	Device() *wgpu.Device

	// Queue returns the GPU queue.
	Queue() *wgpu.Queue

	// Format returns the color format of frame textures.
	Format() wgpu.TextureFormat

	// Size returns the current target size in physical pixels.
	Size() common.Size

	// AspectRatio returns the current target width divided by height.
	AspectRatio() float32

	// Headless reports whether frames are rendered offscreen.
	Headless() bool

	// Release releases pipelines, buffers, the surface and the device. Safe to call more than once.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer drawing into target. When target.Descriptor is nil,
// or WithHeadless(true) is given, frames are rendered into an offscreen texture that can be read back.
//
// Parameters:
//   - target: the surface descriptor and initial size
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: the configured renderer
//   - error: an error wrapping common.ErrDeviceInit if no adapter or device could be acquired
func NewRenderer(target SurfaceTarget, options ...RendererBuilderOption) (Renderer, error) {
	r := newRenderer(options...)
	if target.Descriptor == nil {
		r.headless = true
	}

	msaa := MSAAOff
	if r.pendingMSAA != nil {
		msaa = *r.pendingMSAA
	}

	backend, err := newWGPURendererBackend(target.Descriptor, wgpuBackendOptions{
		forceFallbackAdapter: r.forceFallbackAdapter,
		headless:             r.headless,
		captureSource:        r.captureSource,
		sampleCount:          msaa,
		clearColor:           r.clearColor,
	})
	if err != nil {
		return nil, err
	}
	r.backend = backend
	if r.pendingPresentMode != nil {
		r.backend.SetPresentMode(*r.pendingPresentMode)
	}

	r.size = common.Size{Width: target.Width, Height: target.Height}
	if !r.size.Empty() {
		if err := r.backend.ConfigureSurface(target.Width, target.Height); err != nil {
			r.backend.Release()
			return nil, err
		}
	}
	r.log.Debug("renderer created",
		zap.Int("width", target.Width),
		zap.Int("height", target.Height),
		zap.Bool("headless", r.headless),
	)
	return r, nil
}

func newRenderer(options ...RendererBuilderOption) *renderer {
	r := &renderer{
		mu:            &sync.Mutex{},
		log:           zap.NewNop(),
		pipelineCache: make(map[string]pipeline.Pipeline),
		backendType:   BackendTypeWGPU,
		now:           time.Now,
		clearColor:    wgpu.Color{R: 0.1, G: 0.1, B: 0.1, A: 1.0},
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := r.pipelineCache[key]; exists {
			continue
		}
		if err := r.backend.RegisterRenderPipeline(p); err != nil {
			return fmt.Errorf("register pipeline %q: %w", key, err)
		}
		r.pipelineCache[key] = p
	}
	return nil
}

func (r *renderer) CreateUniform(label string, data []byte) (*buffer.Buffer, error) {
	return r.createBuffer(label, buffer.KindUniform, data)
}

func (r *renderer) CreateVertexBuffer(label string, data []byte) (*buffer.Buffer, error) {
	return r.createBuffer(label, buffer.KindVertex, data)
}

func (r *renderer) CreateIndexBuffer(label string, data []byte) (*buffer.Buffer, error) {
	return r.createBuffer(label, buffer.KindIndex, data)
}

func (r *renderer) createBuffer(label string, kind buffer.Kind, data []byte) (*buffer.Buffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := buffer.New(r.backend.Device(), r.backend.Queue(), label, kind, data)
	if err != nil {
		return nil, err
	}
	r.buffers = append(r.buffers, b)
	return b, nil
}

func (r *renderer) WriteBuffer(b *buffer.Buffer, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	padded := buffer.Pad(data, buffer.AlignedSize(buffer.KindVertex, len(data)))
	if offset%4 != 0 || offset+uint64(len(padded)) > b.Size() {
		return fmt.Errorf("write %d bytes at %d into %s of size %d: out of range", len(data), offset, b.Label(), b.Size())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend.Queue().WriteBuffer(b.GPU(), offset, padded)
	return nil
}

func (r *renderer) Resize(width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.size = common.Size{Width: width, Height: height}
	if r.size.Empty() {
		return
	}
	if err := r.backend.ConfigureSurface(width, height); err != nil {
		r.log.Warn("surface configure failed", zap.Int("width", width), zap.Int("height", height), zap.Error(err))
	}
}

func (r *renderer) Reconfigure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size.Empty() {
		return nil
	}
	return r.backend.ConfigureSurface(r.size.Width, r.size.Height)
}

func (r *renderer) BeginFrame() (*FrameTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.guard.begin(); err != nil {
		return nil, err
	}
	if r.size.Empty() {
		r.guard.abort()
		return nil, ErrFrameSkipped
	}

	target, err := r.backend.AcquireFrame()
	if err != nil {
		r.guard.abort()
		return nil, err
	}

	now := r.now()
	if r.fixedStep > 0 {
		// Simulated time: frame n begins at n steps after the first frame.
		if r.frameIndex == 0 {
			r.firstFrame = now
		}
		now = r.firstFrame.Add(time.Duration(r.frameIndex) * r.fixedStep)
	}
	if r.frameIndex == 0 {
		r.firstFrame = now
		r.lastFrame = now
	}
	target.Index = r.frameIndex
	target.Delta = now.Sub(r.lastFrame)
	target.Elapsed = now.Sub(r.firstFrame)
	r.lastFrame = now
	r.frameIndex++
	return target, nil
}

func (r *renderer) Submit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.guard.submit(); err != nil {
		return err
	}
	if err := r.backend.SubmitFrame(); err != nil {
		r.guard.abort()
		r.backend.AbortFrame()
		return err
	}
	return nil
}

func (r *renderer) Present() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.guard.present(); err != nil {
		return err
	}
	r.backend.PresentFrame()
	return nil
}

func (r *renderer) Device() *wgpu.Device {
	return r.backend.Device()
}

func (r *renderer) Queue() *wgpu.Queue {
	return r.backend.Queue()
}

func (r *renderer) Format() wgpu.TextureFormat {
	return r.backend.Format()
}

func (r *renderer) Size() common.Size {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *renderer) AspectRatio() float32 {
	return r.Size().AspectRatio()
}

func (r *renderer) Headless() bool {
	return r.headless
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.released = true

	if r.guard.phase != phaseIdle {
		r.backend.AbortFrame()
		r.guard.abort()
	}
	for _, p := range r.pipelineCache {
		p.Release()
	}
	for _, b := range r.buffers {
		b.Release()
	}
	r.pipelineCache = map[string]pipeline.Pipeline{}
	r.buffers = nil
	r.backend.Release()
	r.log.Debug("renderer released", zap.Uint64("frames", r.frameIndex))
}
