package engine

import (
	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-sim/engine/bridge"
	"github.com/Carmen-Shannon/oxy-sim/engine/config"
	"github.com/Carmen-Shannon/oxy-sim/engine/input"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer"
	"github.com/Carmen-Shannon/oxy-sim/engine/scheduler"
	"github.com/Carmen-Shannon/oxy-sim/engine/simulation"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithConfig sets the configuration the engine is built from.
// The engine keeps its own copy, so later changes to cfg have no effect.
//
// Parameters:
//   - cfg: the configuration to use
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithConfig(cfg config.Config) EngineBuilderOption {
	return func(e *engine) {
		e.cfg = &cfg
	}
}

// WithLogger sets the root logger instead of building one from the logging config.
//
// Parameters:
//   - log: the logger to use
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLogger(log *zap.Logger) EngineBuilderOption {
	return func(e *engine) {
		e.log = log
	}
}

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithRenderFrameLimit sets an optional tick rate cap in frames per second.
// Pass 0 to keep the configured value.
//
// Parameters:
//   - fps: maximum ticks per second
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.frameLimit = fps
	}
}

// WithSimulation runs the given factory instead of looking the entry up in the registry.
//
// Parameters:
//   - factory: constructs the simulation once the renderer exists
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithSimulation(factory simulation.Factory) EngineBuilderOption {
	return func(e *engine) {
		e.factory = factory
	}
}

// WithControls sets the control schema used to seed the value map.
//
// Parameters:
//   - schema: the parsed control schema
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithControls(schema *input.Schema) EngineBuilderOption {
	return func(e *engine) {
		e.schema = schema
	}
}

// WithRendererOptions appends renderer options applied after the ones derived from config.
//
// Parameters:
//   - opts: renderer builder options
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRendererOptions(opts ...renderer.RendererBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.rendererOptions = append(e.rendererOptions, opts...)
	}
}

// WithCapture replaces the capture pipeline the engine would open from config.
//
// Parameters:
//   - c: the capture stage handed to the scheduler
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithCapture(c scheduler.Capturer) EngineBuilderOption {
	return func(e *engine) {
		e.capture = c
	}
}

// WithBridge sets a custom bridge rather than allowing the engine to create one for the platform.
//
// Parameters:
//   - b: a pre-configured Bridge instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithBridge(b bridge.Bridge) EngineBuilderOption {
	return func(e *engine) {
		e.bridge = b
	}
}
