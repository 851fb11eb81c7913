package engine

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-sim/engine/bridge"
	"github.com/Carmen-Shannon/oxy-sim/engine/config"
	"github.com/Carmen-Shannon/oxy-sim/engine/input"
	"github.com/Carmen-Shannon/oxy-sim/engine/logger"
	"github.com/Carmen-Shannon/oxy-sim/engine/profiler"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer"
	"github.com/Carmen-Shannon/oxy-sim/engine/scheduler"
	"github.com/Carmen-Shannon/oxy-sim/engine/simulation"
)

// engine implements the Engine interface.
// Wires configuration, bridge, renderer, simulation, capture and scheduler together.
type engine struct {
	cfg *config.Config
	log *zap.Logger

	bridge  bridge.Bridge
	factory simulation.Factory
	schema  *input.Schema

	// schemaEntry is the registry id schema was resolved for; unset when the
	// schema came from WithControls or a controls path.
	schemaEntry *uint32

	rendererOptions []renderer.RendererBuilderOption
	capture         scheduler.Capturer

	profilingEnabled bool
	frameLimit       float64

	mu        sync.Mutex
	scheduler *scheduler.Scheduler
	quitOnce  sync.Once
}

// Engine is the main entry point for the harness.
// It builds every component from configuration and runs one simulation to completion.
type Engine interface {
	// Config returns the effective configuration.
	//
	// Returns:
	//   - config.Config: a copy of the configuration
	Config() config.Config

	// Logger returns the root logger.
	//
	// Returns:
	//   - *zap.Logger: the logger
	Logger() *zap.Logger

	// Bridge returns the platform bridge.
	//
	// Returns:
	//   - bridge.Bridge: the bridge
	Bridge() bridge.Bridge

	// Scheduler returns the running scheduler, or nil before Run has built it
	// and on the page side of a worker split.
	//
	// Returns:
	//   - *scheduler.Scheduler: the scheduler
	Scheduler() *scheduler.Scheduler

	// Run builds the renderer, simulation and scheduler, then blocks until the run ends.
	// It must be called on the goroutine that called NewEngine.
	//
	// Returns:
	//   - int: the process exit code
	Run() int

	// Quit asks the run to stop. Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine with the provided options and creates the platform bridge.
// Without WithConfig the default configuration is used; without WithLogger a logger is
// built from the logging section.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: error if the configuration is invalid or the bridge cannot be created
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{}
	for _, opt := range options {
		opt(e)
	}

	if e.cfg == nil {
		e.cfg = config.Default()
	}
	if e.frameLimit > 0 {
		e.cfg.Window.FrameLimit = e.frameLimit
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", bridge.ErrInit, err)
	}
	if e.log == nil {
		log, err := logger.New(e.cfg.Logging)
		if err != nil {
			return nil, err
		}
		e.log = log
	}
	e.profilingEnabled = e.profilingEnabled || e.cfg.Renderer.Profiling

	if err := e.resolveControls(e.cfg.Simulation.Entry); err != nil {
		return nil, err
	}
	if e.schema != nil && e.schema.Simulation.Name != "" && e.cfg.Window.Title == config.DefaultTitle {
		e.cfg.Window.Title = e.schema.Simulation.Name
	}

	if e.bridge == nil {
		b, err := bridge.New(*e.cfg, e.log)
		if err != nil {
			return nil, err
		}
		e.bridge = b
	}
	return e, nil
}

func (e *engine) Config() config.Config {
	return *e.cfg
}

func (e *engine) Logger() *zap.Logger {
	return e.log
}

func (e *engine) Bridge() bridge.Bridge {
	return e.bridge
}

func (e *engine) Scheduler() *scheduler.Scheduler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scheduler
}

// Quit signals the bridge to stop the run.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		e.bridge.RequestStop()
	})
}

// resolveControls loads the control schema from the configured path, or from the
// registry entry for id when no path is configured.
func (e *engine) resolveControls(id uint32) error {
	if e.schema != nil && (e.schemaEntry == nil || *e.schemaEntry == id) {
		return nil
	}
	if path := e.cfg.Simulation.Controls; path != "" {
		schema, err := input.LoadControls(path)
		if err != nil {
			return err
		}
		e.schema = schema
		return nil
	}
	entry, ok := simulation.Lookup(id)
	e.schema, e.schemaEntry = nil, &id
	if !ok || entry.Controls == "" {
		return nil
	}
	schema, err := input.ParseControls(entry.Controls)
	if err != nil {
		return fmt.Errorf("controls of simulation %q: %w", entry.Name, err)
	}
	e.schema = schema
	return nil
}

// resolveFactory returns the configured factory or the registry entry for id.
func (e *engine) resolveFactory(id uint32) (simulation.Factory, error) {
	if e.factory != nil {
		return e.factory, nil
	}
	entry, ok := simulation.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("no simulation registered for entry %d", id)
	}
	e.log.Info("simulation selected", zap.Uint32("entry", id), zap.String("name", entry.Name))
	return entry.Factory, nil
}

// rendererOptionsFor translates configuration into renderer options. Explicit
// options given through WithRendererOptions are applied last.
func (e *engine) rendererOptionsFor() []renderer.RendererBuilderOption {
	cfg := e.cfg
	opts := []renderer.RendererBuilderOption{
		renderer.WithLogger(e.log),
		renderer.WithPresentMode(renderer.ParsePresentMode(cfg.Renderer.PresentMode)),
		renderer.WithForceSoftwareRenderer(cfg.Renderer.ForceFallback),
		renderer.WithClearColor(cfg.Renderer.ClearColor),
		renderer.WithHeadless(cfg.Window.Headless),
		renderer.WithCaptureSource(cfg.Capture.Enabled),
	}
	if cfg.Window.Headless && cfg.Capture.FPS > 0 {
		opts = append(opts, renderer.WithFixedTimestep(time.Second/time.Duration(cfg.Capture.FPS)))
	}
	return append(opts, e.rendererOptions...)
}

// Run builds the per-run components and hands the scheduler to the bridge.
// Any component created before a failure is released before returning.
func (e *engine) Run() int {
	b := e.bridge
	if !b.RendersLocally() {
		return b.Run(nil)
	}

	id := b.Entry()
	factory, err := e.resolveFactory(id)
	if err != nil {
		e.log.Error("select simulation", zap.Error(err))
		return bridge.ExitFailure
	}
	if err := e.resolveControls(id); err != nil {
		e.log.Error("load controls", zap.Error(err))
		return bridge.ExitFailure
	}
	values := input.NewValueMap()
	if e.schema != nil {
		values = e.schema.Values()
	}

	r, err := renderer.NewRenderer(b.Surface(), e.rendererOptionsFor()...)
	if err != nil {
		e.log.Error("create renderer", zap.Error(err))
		return bridge.ExitCode(err)
	}

	sim, err := factory(r)
	if err != nil {
		r.Release()
		e.log.Error("create simulation", zap.Error(err))
		return bridge.ExitCode(err)
	}

	capture := e.capture
	var counters []profiler.ProfilerOption
	if capture == nil && e.cfg.Capture.Enabled {
		pipeline, err := openCapture(e.cfg.Capture, r, e.log)
		if err != nil {
			r.Release()
			e.log.Error("open capture", zap.Error(err))
			return bridge.ExitFailure
		}
		capture = pipeline
		counters = append(counters,
			profiler.WithCounter("captured", pipeline.Captured),
			profiler.WithCounter("dropped", pipeline.Dropped),
		)
	}

	opts := []scheduler.SchedulerBuilderOption{
		scheduler.WithLogger(e.log),
		scheduler.WithValues(values),
	}
	if capture != nil {
		opts = append(opts, scheduler.WithCapture(capture))
	}
	if e.profilingEnabled {
		popts := append([]profiler.ProfilerOption{profiler.WithLogger(e.log)}, counters...)
		opts = append(opts, scheduler.WithProfiler(profiler.NewProfiler(popts...)))
	}

	s, err := scheduler.New(r, sim, opts...)
	if err != nil {
		r.Release()
		e.log.Error("create scheduler", zap.Error(err))
		return bridge.ExitFailure
	}
	e.mu.Lock()
	e.scheduler = s
	e.mu.Unlock()

	code := b.Run(s)
	e.log.Info("run finished", zap.Int("exit_code", code), zap.Uint64("ticks", s.Ticks()), zap.Int("discarded_input", s.Discarded()))
	_ = e.log.Sync()
	return code
}
