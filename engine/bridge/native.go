//go:build !js

package bridge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Carmen-Shannon/oxy-sim/engine/config"
	"github.com/Carmen-Shannon/oxy-sim/engine/input"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer"
	"github.com/Carmen-Shannon/oxy-sim/engine/scheduler"
	"github.com/Carmen-Shannon/oxy-sim/engine/window"
)

// nativeBridge runs on a desktop: a GLFW window on the main thread and the
// scheduler on a render goroutine. Without a window it renders headless.
type nativeBridge struct {
	log *zap.Logger
	cfg config.Config
	win window.Window

	attachment
}

var _ Bridge = &nativeBridge{}

// New creates the bridge for this platform. It must be called on the main goroutine.
//
// Parameters:
//   - cfg: the harness configuration
//   - log: the logger, may be nil
//
// Returns:
//   - Bridge: the bridge
//   - error: error wrapping ErrInit if the window cannot be created
func New(cfg config.Config, log *zap.Logger) (Bridge, error) {
	if log == nil {
		log = zap.NewNop()
	}
	b := &nativeBridge{log: log.Named("bridge"), cfg: cfg}
	if cfg.Window.Headless {
		return b, nil
	}

	win, err := window.NewWindow(
		window.WithTitle(cfg.Window.Title),
		window.WithSize(cfg.Window.Width, cfg.Window.Height),
		window.WithMinSize(cfg.Window.MinWidth, cfg.Window.MinHeight),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInit, err)
	}
	win.SetEventCallback(func(ev input.Event) {
		if err := b.EnqueueInput(ev); err != nil {
			b.log.Debug("input dropped", zap.Stringer("kind", ev.Kind), zap.Error(err))
		}
	})
	win.SetCloseCallback(b.RequestStop)
	b.win = win
	return b, nil
}

func (b *nativeBridge) Surface() renderer.SurfaceTarget {
	if b.win == nil {
		return renderer.SurfaceTarget{Width: b.cfg.Window.Width, Height: b.cfg.Window.Height}
	}
	size := b.win.Size()
	return renderer.SurfaceTarget{
		Descriptor: b.win.SurfaceDescriptor(),
		Width:      size.Width,
		Height:     size.Height,
	}
}

func (b *nativeBridge) Entry() uint32 {
	return b.cfg.Simulation.Entry
}

func (b *nativeBridge) RendersLocally() bool {
	return true
}

func (b *nativeBridge) EnqueueInput(ev input.Event) error {
	return b.enqueue(ev)
}

func (b *nativeBridge) RequestStop() {
	b.requestStop()
}

func (b *nativeBridge) Run(s *scheduler.Scheduler) int {
	b.attach(s)

	var err error
	if b.win == nil {
		err = b.runHeadless(s)
	} else {
		err = b.runWindowed(s)
	}
	code := ExitCode(err)
	if err != nil {
		b.log.Error("run failed", zap.Error(err), zap.Int("exit_code", code))
	}
	return code
}

// runWindowed keeps the calling goroutine in the GLFW message loop while ticks run
// on a render goroutine.
func (b *nativeBridge) runWindowed(s *scheduler.Scheduler) error {
	g, ctx := errgroup.WithContext(context.Background())
	ticks := make(chan struct{})

	g.Go(func() error {
		return s.Run(ctx, ticks)
	})
	g.Go(func() error {
		pace(ctx, s.Done(), ticks, frameInterval(b.cfg.Window.FrameLimit), 0)
		return nil
	})

	go func() {
		<-s.Done()
		b.win.Wake()
	}()
	b.win.ProcessMessages(s.Done())

	err := g.Wait()
	if cerr := b.win.Close(); cerr != nil {
		b.log.Warn("close window", zap.Error(cerr))
	}
	return err
}

// runHeadless ticks at the capture frame rate until capture.max_frames frames have rendered.
func (b *nativeBridge) runHeadless(s *scheduler.Scheduler) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interval := frameInterval(b.cfg.Window.FrameLimit)
	ticks := make(chan struct{})
	go pace(ctx, s.Done(), ticks, interval, b.cfg.Capture.MaxFrames)
	return s.Run(ctx, ticks)
}

// frameInterval converts a frame limit into a tick interval; zero means unpaced.
func frameInterval(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

// pace sends ticks until done or ctx ends. With a zero interval ticks are sent as fast
// as they are consumed, leaving pacing to the present mode. With max > 0 it closes
// ticks after max sends.
func pace(ctx context.Context, done <-chan struct{}, ticks chan<- struct{}, interval time.Duration, max int) {
	var limiter <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		limiter = t.C
	}

	for sent := 0; max <= 0 || sent < max; sent++ {
		if limiter != nil {
			select {
			case <-limiter:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
		select {
		case ticks <- struct{}{}:
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
	close(ticks)
}
