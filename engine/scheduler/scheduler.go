package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-sim/common"
	"github.com/Carmen-Shannon/oxy-sim/engine/input"
	"github.com/Carmen-Shannon/oxy-sim/engine/profiler"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer"
	"github.com/Carmen-Shannon/oxy-sim/engine/simulation"
)

// Capturer receives every submitted frame before it is presented.
type Capturer interface {
	// Capture records target. It may block to apply backpressure.
	Capture(ctx context.Context, target *renderer.FrameTarget) error
	// Finish flushes outstanding frames and closes the output.
	Finish() error
}

// Scheduler drives one simulation against one renderer, one tick at a time.
// Input may be enqueued from any goroutine; everything else runs on the goroutine calling Tick or Run.
type Scheduler struct {
	log      *zap.Logger
	r        renderer.Renderer
	sim      simulation.Simulation
	queue    *input.Queue
	values   *input.ValueMap
	capture  Capturer
	profiler *profiler.Profiler

	queueCapacity int

	tickMu sync.Mutex
	ctx    context.Context

	state         atomic.Int32
	stopRequested atomic.Bool
	shutdownOnce  sync.Once
	done          chan struct{}

	errMu     sync.Mutex
	err       error
	discarded int
	ticks     atomic.Uint64
}

// New creates a Scheduler in the Ready state.
//
// Parameters:
//   - r: the renderer, owned by the scheduler from now on and released at shutdown
//   - sim: the simulation to drive
//   - options: functional options for scheduler configuration
//
// Returns:
//   - *Scheduler: the new scheduler
//   - error: error if r or sim is nil
func New(r renderer.Renderer, sim simulation.Simulation, options ...SchedulerBuilderOption) (*Scheduler, error) {
	if r == nil {
		return nil, errors.New("new scheduler: nil renderer")
	}
	if sim == nil {
		return nil, errors.New("new scheduler: nil simulation")
	}

	s := &Scheduler{
		log:           zap.NewNop(),
		r:             r,
		sim:           sim,
		values:        input.NewValueMap(),
		queueCapacity: 64,
		ctx:           context.Background(),
		done:          make(chan struct{}),
	}
	s.state.Store(int32(Constructing))

	for _, opt := range options {
		opt(s)
	}
	s.queue = input.NewQueue(s.queueCapacity)

	s.state.Store(int32(Ready))
	return s, nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Done is closed once shutdown has finished and the renderer is released.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Err returns the fatal error that stopped the scheduler, or nil after a clean stop.
func (s *Scheduler) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Values returns the shared control value map.
func (s *Scheduler) Values() *input.ValueMap {
	return s.values
}

// Renderer returns the renderer the scheduler drives.
func (s *Scheduler) Renderer() renderer.Renderer {
	return s.r
}

// Discarded returns how many queued input events were dropped at shutdown.
func (s *Scheduler) Discarded() int {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.discarded
}

// Ticks returns the number of completed ticks.
func (s *Scheduler) Ticks() uint64 {
	return s.ticks.Load()
}

// EnqueueInput queues ev for delivery on the next tick. Safe to call from any goroutine.
//
// Parameters:
//   - ev: the input event
//
// Returns:
//   - error: common.ErrStopped once shutdown has begun
func (s *Scheduler) EnqueueInput(ev input.Event) error {
	return s.queue.Enqueue(ev)
}

// RequestStop asks the scheduler to stop. A tick in progress completes first.
// Safe to call any number of times from any goroutine, including from inside Render.
func (s *Scheduler) RequestStop() {
	s.stopRequested.Store(true)
	// No tick running: shut down now rather than waiting for the next one.
	if s.tickMu.TryLock() {
		defer s.tickMu.Unlock()
		s.shutdown(nil)
	}
}

// Tick runs one frame: drain input, deliver it, begin the frame, render, submit,
// capture and present.
//
// Returns:
//   - error: common.ErrStopped if the scheduler has stopped, or the fatal error that stopped it
func (s *Scheduler) Tick() error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	switch s.State() {
	case Stopping, Stopped:
		return common.ErrStopped
	}
	if s.stopRequested.Load() {
		s.shutdown(nil)
		return common.ErrStopped
	}

	s.state.Store(int32(Ticking))
	if err := s.tick(); err != nil {
		s.log.Error("tick failed", zap.Error(err))
		s.shutdown(err)
		return err
	}
	s.ticks.Add(1)
	s.state.Store(int32(Idle))

	if s.profiler != nil {
		s.profiler.Tick()
	}
	if s.stopRequested.Load() {
		s.shutdown(nil)
	}
	return nil
}

// Run ticks once per value received from ticks until the scheduler stops.
// Cancelling ctx or closing ticks requests a stop.
//
// Parameters:
//   - ctx: cancels the run and any blocked capture
//   - ticks: one receive per tick, for example fed from a time.Ticker
//
// Returns:
//   - error: the fatal error, or nil after a clean stop
func (s *Scheduler) Run(ctx context.Context, ticks <-chan struct{}) error {
	s.tickMu.Lock()
	s.ctx = ctx
	s.tickMu.Unlock()

	// Both channels are disabled after the stop they trigger; a shutdown still in
	// progress on another goroutine is then awaited on done.
	cancelled := ctx.Done()
	for {
		select {
		case <-s.done:
			return s.Err()
		case <-cancelled:
			cancelled, ticks = nil, nil
			s.RequestStop()
		case _, ok := <-ticks:
			if !ok {
				cancelled, ticks = nil, nil
				s.RequestStop()
				continue
			}
			if err := s.Tick(); err != nil && !errors.Is(err, common.ErrStopped) {
				return err
			}
		}
	}
}

func (s *Scheduler) tick() error {
	events := s.queue.Drain()
	for _, ev := range events {
		if ev.Kind == input.WindowResized {
			s.r.Resize(ev.Width, ev.Height)
		}
		simulation.DeliverInput(s.sim, ev)
	}

	target, err := s.r.BeginFrame()
	if errors.Is(err, common.ErrSurfaceLost) {
		s.log.Warn("surface lost, reconfiguring", zap.Error(err))
		if rerr := s.r.Reconfigure(); rerr != nil {
			return fmt.Errorf("%w: reconfigure: %w", common.ErrSurfaceLost, rerr)
		}
		target, err = s.r.BeginFrame()
	}
	if errors.Is(err, renderer.ErrFrameSkipped) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("begin frame: %w", err)
	}

	if err := s.render(target); err != nil {
		return err
	}
	if err := s.r.Submit(); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if s.capture != nil {
		if err := s.capture.Capture(s.ctx, target); err != nil {
			return fmt.Errorf("capture frame %d: %w", target.Index, err)
		}
	}
	if err := s.r.Present(); err != nil {
		return fmt.Errorf("present: %w", err)
	}
	return nil
}

// render calls the simulation, converting a panic into an error.
func (s *Scheduler) render(target *renderer.FrameTarget) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("render recovered from panic", zap.Any("panic", rec), zap.Uint64("frame", target.Index))
			err = fmt.Errorf("render frame %d: panic: %v", target.Index, rec)
		}
	}()
	s.sim.Render(s.r, target, s.values.Snapshot())
	return nil
}

// shutdown runs once. The caller holds tickMu.
func (s *Scheduler) shutdown(cause error) {
	s.shutdownOnce.Do(func() {
		s.state.Store(int32(Stopping))

		discarded := s.queue.Close()
		if discarded > 0 {
			s.log.Debug("discarded queued input", zap.Int("events", discarded))
		}

		err := cause
		if s.capture != nil {
			if ferr := s.capture.Finish(); ferr != nil {
				s.log.Error("finish capture", zap.Error(ferr))
				if err == nil {
					err = fmt.Errorf("finish capture: %w", ferr)
				}
			}
		}
		s.r.Release()

		s.errMu.Lock()
		s.err = err
		s.discarded = discarded
		s.errMu.Unlock()

		s.state.Store(int32(Stopped))
		s.log.Info("stopped", zap.Uint64("ticks", s.Ticks()), zap.Error(err))
		close(s.done)
	})
}
