package renderer

import (
	"time"

	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-sim/engine/renderer/pipeline"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithPipeline pre-registers a single Pipeline in the renderer's pipeline cache under the given key.
// The pipeline is expected to already hold its GPU object.
//
// Parameters:
//   - key: the unique identifier for the pipeline
//   - p: the Pipeline to cache
//
// Returns:
//   - RendererBuilderOption: a function that applies the pipeline option to a renderer
func WithPipeline(key string, p pipeline.Pipeline) RendererBuilderOption {
	return func(r *renderer) {
		r.pipelineCache[key] = p
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingPresentMode = &mode
	}
}

// WithMSAA sets the multisample anti-aliasing sample count for the renderer.
// When not specified, MSAA is off.
//
// Parameters:
//   - count: the MSAASampleCount to use
//
// Returns:
//   - RendererBuilderOption: a function that applies the MSAA option to a renderer
func WithMSAA(count MSAASampleCount) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingMSAA = &count
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithHeadless renders into an offscreen RGBA texture instead of a window surface.
// A nil surface descriptor implies headless rendering.
//
// Parameters:
//   - headless: true to render offscreen
//
// Returns:
//   - RendererBuilderOption: a function that applies the headless option to a renderer
func WithHeadless(headless bool) RendererBuilderOption {
	return func(r *renderer) {
		r.headless = headless
	}
}

// WithCaptureSource adds copy-source usage to frame textures so they can be read back for capture.
//
// Parameters:
//   - enabled: true to allow readback of presented frames
//
// Returns:
//   - RendererBuilderOption: a function that applies the capture source option to a renderer
func WithCaptureSource(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.captureSource = enabled
	}
}

// WithClearColor sets the color each frame's render pass is cleared to.
//
// Parameters:
//   - rgba: red, green, blue and alpha in [0, 1]
//
// Returns:
//   - RendererBuilderOption: a function that applies the clear color option to a renderer
func WithClearColor(rgba [4]float64) RendererBuilderOption {
	return func(r *renderer) {
		r.clearColor = wgpu.Color{R: rgba[0], G: rgba[1], B: rgba[2], A: rgba[3]}
	}
}

// WithFixedTimestep makes FrameTarget.Delta a constant step and Elapsed a multiple of it,
// independent of wall time. Used for offline rendering where frames are produced faster
// or slower than real time.
//
// Parameters:
//   - step: the simulated time per frame; zero uses the wall clock
//
// Returns:
//   - RendererBuilderOption: a function that applies the timestep option to a renderer
func WithFixedTimestep(step time.Duration) RendererBuilderOption {
	return func(r *renderer) {
		if step > 0 {
			r.fixedStep = step
		}
	}
}

// WithLogger sets the logger used for renderer diagnostics.
//
// Parameters:
//   - log: the logger; nil keeps the no-op default
//
// Returns:
//   - RendererBuilderOption: a function that applies the logger option to a renderer
func WithLogger(log *zap.Logger) RendererBuilderOption {
	return func(r *renderer) {
		if log != nil {
			r.log = log.Named("renderer")
		}
	}
}
