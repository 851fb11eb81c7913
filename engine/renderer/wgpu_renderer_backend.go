package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-sim/common"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer/pipeline"
)

// HeadlessFormat is the color format of offscreen frame textures.
const HeadlessFormat = wgpu.TextureFormatRGBA8UnormSrgb

type wgpuBackendOptions struct {
	forceFallbackAdapter bool
	headless             bool
	captureSource        bool
	sampleCount          MSAASampleCount
	clearColor           wgpu.Color
}

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface // nil when headless

	opts wgpuBackendOptions

	surfaceFormat        wgpu.TextureFormat
	width, height        int
	msaaTexture          *wgpu.Texture
	msaaTextureView      *wgpu.TextureView
	offscreen            *wgpu.Texture // headless color target, recreated on resize
	renderPassDescriptor *wgpu.RenderPassDescriptor

	presentMode wgpu.PresentMode

	// Frame state between AcquireFrame and PresentFrame
	frameEncoder *wgpu.CommandEncoder
	framePass    *wgpu.RenderPassEncoder
	frameTexture *wgpu.Texture
	frameView    *wgpu.TextureView
}

type wgpuRendererBackend interface {
	Device() *wgpu.Device
	Queue() *wgpu.Queue

	// Format returns the color format of frame textures.
	Format() wgpu.TextureFormat

	// ConfigureSurface is a wrapper for boilerplate logic required when calling Configure on a surface,
	// or for recreating the offscreen target when headless.
	// This is required when the surface size changes, such as when the window is resized.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	//
	// Returns:
	//   - error: an error if an attachment texture could not be created
	ConfigureSurface(width, height int) error

	// SetPresentMode sets the surface present mode which controls how frames are delivered to the display.
	//
	// Parameters:
	//   - mode: the PresentMode to use
	SetPresentMode(mode PresentMode)

	// RegisterRenderPipeline creates the shader module, pipeline layout and render pipeline for p
	// and stores the result on p.
	//
	// Parameters:
	//   - p: the pipeline description
	//
	// Returns:
	//   - error: an error if the pipeline could not be created, otherwise nil
	RegisterRenderPipeline(p pipeline.Pipeline) error

	// AcquireFrame acquires the next frame texture, creates a command encoder, and begins
	// the main render pass.
	//
	// Returns:
	//   - *FrameTarget: the frame handle without timing fields
	//   - error: an error wrapping common.ErrSurfaceLost if the texture could not be acquired
	AcquireFrame() (*FrameTarget, error)

	// SubmitFrame ends the render pass and submits the command buffer to the queue.
	// The frame texture stays alive until PresentFrame so it can be read back.
	//
	// Returns:
	//   - error: an error if the command buffer could not be finished
	SubmitFrame() error

	// PresentFrame presents the surface to the display and releases the frame texture.
	PresentFrame()

	// AbortFrame releases any frame state without presenting.
	AbortFrame()

	// Release releases every GPU object held by the backend.
	Release()
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

// createSurface creates the presentation surface, reporting a panic from the
// binding (the browser binding panics on a descriptor without a canvas) as an error.
func createSurface(instance *wgpu.Instance, descriptor *wgpu.SurfaceDescriptor) (surface *wgpu.Surface, err error) {
	defer func() {
		if r := recover(); r != nil {
			surface = nil
			err = fmt.Errorf("create surface: %v: %w", r, common.ErrDeviceInit)
		}
	}()
	return instance.CreateSurface(descriptor), nil
}

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, opts wgpuBackendOptions) (*wgpuRendererBackendImpl, error) {
	// The browser binding returns nil when the page has no WebGPU implementation.
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, fmt.Errorf("create instance: WebGPU unavailable: %w", common.ErrDeviceInit)
	}
	b := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		instance:    instance,
		opts:        opts,
		presentMode: wgpu.PresentModeFifo,
	}
	if opts.sampleCount == 0 {
		b.opts.sampleCount = MSAAOff
	}

	if !opts.headless {
		if surfaceDescriptor == nil {
			b.Release()
			return nil, fmt.Errorf("no surface descriptor for windowed renderer: %w", common.ErrDeviceInit)
		}
		surface, err := createSurface(b.instance, surfaceDescriptor)
		if err != nil {
			b.Release()
			return nil, err
		}
		b.surface = surface
	}

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: opts.forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("request adapter: %v: %w", err, common.ErrDeviceInit)
	}
	b.adapter = a

	limits := wgpu.DefaultLimits()
	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("request device: %v: %w", err, common.ErrDeviceInit)
	}
	b.device = d
	b.queue = d.GetQueue()

	if opts.headless {
		b.surfaceFormat = HeadlessFormat
	} else {
		capabilities := b.surface.GetCapabilities(b.adapter)
		if len(capabilities.Formats) == 0 {
			b.Release()
			return nil, fmt.Errorf("surface reports no formats: %w", common.ErrDeviceInit)
		}
		b.surfaceFormat = capabilities.Formats[0]
	}

	return b, nil
}

func (b *wgpuRendererBackendImpl) Device() *wgpu.Device {
	return b.device
}

func (b *wgpuRendererBackendImpl) Queue() *wgpu.Queue {
	return b.queue
}

func (b *wgpuRendererBackendImpl) Format() wgpu.TextureFormat {
	return b.surfaceFormat
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.width, b.height = width, height
	size := wgpu.Extent3D{
		Width:              uint32(width),
		Height:             uint32(height),
		DepthOrArrayLayers: 1,
	}

	if b.surface != nil {
		usage := wgpu.TextureUsageRenderAttachment
		if b.opts.captureSource {
			usage |= wgpu.TextureUsageCopySrc
		}
		capabilities := b.surface.GetCapabilities(b.adapter)
		b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
			Usage:       usage,
			Format:      b.surfaceFormat,
			Width:       uint32(width),
			Height:      uint32(height),
			PresentMode: b.presentMode,
			AlphaMode:   capabilities.AlphaModes[0],
		})
	} else {
		if b.offscreen != nil {
			b.offscreen.Release()
		}
		offscreen, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
			Label:         "Offscreen Target",
			Size:          size,
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     wgpu.TextureDimension2D,
			Format:        b.surfaceFormat,
			Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopySrc,
		})
		if err != nil {
			b.offscreen = nil
			return fmt.Errorf("create offscreen target: %w", err)
		}
		b.offscreen = offscreen
	}

	count := uint32(b.opts.sampleCount)
	msaaEnabled := count > 1
	b.releaseMSAA()
	if msaaEnabled {
		// The render pass draws into the MSAA texture; the resolved
		// result is written to the frame view as the ResolveTarget.
		msaaTexture, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
			Label:         "MSAA Texture",
			Size:          size,
			MipLevelCount: 1,
			SampleCount:   count,
			Dimension:     wgpu.TextureDimension2D,
			Format:        b.surfaceFormat,
			Usage:         wgpu.TextureUsageRenderAttachment,
		})
		if err != nil {
			return fmt.Errorf("create msaa texture: %w", err)
		}
		view, err := msaaTexture.CreateView(nil)
		if err != nil {
			msaaTexture.Release()
			return fmt.Errorf("create msaa view: %w", err)
		}
		b.msaaTexture, b.msaaTextureView = msaaTexture, view
	}

	storeOp := wgpu.StoreOpStore
	if msaaEnabled {
		storeOp = wgpu.StoreOpDiscard // Don't store MSAA data, just resolve
	}
	b.renderPassDescriptor = &wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:          b.msaaTextureView, // nil when MSAA is off; set in AcquireFrame
				ResolveTarget: nil,               // set per-frame when MSAA is on
				LoadOp:        wgpu.LoadOpClear,
				StoreOp:       storeOp,
				ClearValue:    b.opts.clearColor,
			},
		},
	}
	return nil
}

func (b *wgpuRendererBackendImpl) releaseMSAA() {
	if b.msaaTextureView != nil {
		b.msaaTextureView.Release()
		b.msaaTextureView = nil
	}
	if b.msaaTexture != nil {
		b.msaaTexture.Release()
		b.msaaTexture = nil
	}
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeUncapped:
		b.presentMode = wgpu.PresentModeImmediate
	case PresentModeVSync:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeFifo
	}
}

func (b *wgpuRendererBackendImpl) RegisterRenderPipeline(p pipeline.Pipeline) error {
	if p.Source() == "" {
		return errors.New("pipeline has no shader source")
	}

	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: p.PipelineKey() + " Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: p.Source(),
		},
	})
	if err != nil {
		return err
	}
	defer module.Release()

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: p.BindGroupLayouts(),
	})
	if err != nil {
		return err
	}
	defer pipelineLayout.Release()

	target := wgpu.ColorTargetState{
		Format:    b.surfaceFormat,
		WriteMask: p.WriteMask(),
	}
	if p.BlendEnabled() {
		target.Blend = p.BlendState()
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.PipelineKey() + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: p.VertexEntryPoint(),
			Buffers:    p.VertexLayouts(),
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: p.FragmentEntryPoint(),
			Targets:    []wgpu.ColorTargetState{target},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  p.Topology(),
			FrontFace: p.FrontFace(),
			CullMode:  p.CullMode(),
		},
		Multisample: wgpu.MultisampleState{
			Count: uint32(b.opts.sampleCount),
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return err
	}

	p.SetRenderPipeline(created)
	return nil
}

func (b *wgpuRendererBackendImpl) AcquireFrame() (*FrameTarget, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameTexture != nil {
		return nil, fmt.Errorf("previous frame texture not yet presented: %w", common.ErrProtocolViolation)
	}
	if b.renderPassDescriptor == nil {
		return nil, fmt.Errorf("surface not configured: %w", common.ErrSurfaceLost)
	}

	var texture *wgpu.Texture
	if b.surface != nil {
		surfaceTexture, err := b.surface.GetCurrentTexture()
		if err != nil {
			return nil, fmt.Errorf("acquire surface texture: %v: %w", err, common.ErrSurfaceLost)
		}
		texture = surfaceTexture
	} else {
		if b.offscreen == nil {
			return nil, fmt.Errorf("offscreen target missing: %w", common.ErrSurfaceLost)
		}
		texture = b.offscreen
	}

	view, err := texture.CreateView(nil)
	if err != nil {
		b.releaseAcquired(texture)
		return nil, fmt.Errorf("create frame view: %v: %w", err, common.ErrSurfaceLost)
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		b.releaseAcquired(texture)
		return nil, err
	}

	// When MSAA is enabled, the MSAA texture is the color attachment View and
	// the frame view is the ResolveTarget. When MSAA is off, the frame
	// view is the color attachment View directly and ResolveTarget is nil.
	if b.opts.sampleCount > 1 {
		b.renderPassDescriptor.ColorAttachments[0].ResolveTarget = view
	} else {
		b.renderPassDescriptor.ColorAttachments[0].View = view
	}
	pass := encoder.BeginRenderPass(b.renderPassDescriptor)

	b.frameEncoder = encoder
	b.framePass = pass
	b.frameTexture = texture
	b.frameView = view

	return &FrameTarget{
		Pass:    pass,
		Encoder: encoder,
		View:    view,
		Texture: texture,
		Width:   b.width,
		Height:  b.height,
		Format:  b.surfaceFormat,
	}, nil
}

// releaseAcquired releases a texture obtained from the surface. The offscreen target is kept.
func (b *wgpuRendererBackendImpl) releaseAcquired(texture *wgpu.Texture) {
	if texture != nil && texture != b.offscreen {
		texture.Release()
	}
}

func (b *wgpuRendererBackendImpl) SubmitFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.framePass == nil || b.frameEncoder == nil {
		return fmt.Errorf("no open render pass: %w", common.ErrProtocolViolation)
	}
	b.framePass.End()
	b.framePass = nil

	commandBuffer, err := b.frameEncoder.Finish(nil)
	if err != nil {
		b.frameEncoder.Release()
		b.frameEncoder = nil
		return fmt.Errorf("finish command encoder: %w", err)
	}

	b.queue.Submit(commandBuffer)

	commandBuffer.Release()
	b.frameEncoder.Release()
	b.frameEncoder = nil
	return nil
}

func (b *wgpuRendererBackendImpl) PresentFrame() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameTexture == nil {
		return
	}
	if b.surface != nil {
		b.surface.Present()
	}
	b.releaseFrame()
}

func (b *wgpuRendererBackendImpl) AbortFrame() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.framePass != nil {
		b.framePass.End()
		b.framePass = nil
	}
	if b.frameEncoder != nil {
		b.frameEncoder.Release()
		b.frameEncoder = nil
	}
	b.releaseFrame()
}

func (b *wgpuRendererBackendImpl) releaseFrame() {
	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	b.releaseAcquired(b.frameTexture)
	b.frameTexture = nil
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.releaseFrame()
	b.releaseMSAA()
	if b.offscreen != nil {
		b.offscreen.Release()
		b.offscreen = nil
	}
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}
