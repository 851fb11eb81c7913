package engine

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-sim/engine/bridge"
	"github.com/Carmen-Shannon/oxy-sim/engine/config"
	"github.com/Carmen-Shannon/oxy-sim/engine/input"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer"
	"github.com/Carmen-Shannon/oxy-sim/engine/scheduler"
	"github.com/Carmen-Shannon/oxy-sim/engine/simulation"
)

type fakeBridge struct {
	local   bool
	entry   uint32
	code    int
	runs    int
	stops   int
	started *scheduler.Scheduler
}

func (b *fakeBridge) Surface() renderer.SurfaceTarget { return renderer.SurfaceTarget{} }
func (b *fakeBridge) Entry() uint32 { return b.entry }
func (b *fakeBridge) RendersLocally() bool { return b.local }
func (b *fakeBridge) Run(s *scheduler.Scheduler) int {
	b.runs++
	b.started = s
	return b.code
}
func (b *fakeBridge) EnqueueInput(input.Event) error { return nil }
func (b *fakeBridge) RequestStop() { b.stops++ }

func newTestEngine(t *testing.T, b bridge.Bridge, opts ...EngineBuilderOption) Engine {
	t.Helper()
	opts = append([]EngineBuilderOption{WithLogger(zap.NewNop()), WithBridge(b)}, opts...)
	e, err := NewEngine(opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestRunOnPageSideDelegatesToBridge(t *testing.T) {
	b := &fakeBridge{code: bridge.ExitSurfaceLost}
	e := newTestEngine(t, b)

	if got := e.Run(); got != bridge.ExitSurfaceLost {
		t.Errorf("Run() = %d, want %d", got, bridge.ExitSurfaceLost)
	}
	if b.runs != 1 || b.started != nil {
		t.Errorf("bridge runs = %d with scheduler %v, want 1 with nil", b.runs, b.started)
	}
	if e.Scheduler() != nil {
		t.Error("Scheduler() is set on the page side")
	}
}

func TestRunUnknownEntryFails(t *testing.T) {
	b := &fakeBridge{local: true, entry: 0xdead}
	e := newTestEngine(t, b)

	if got := e.Run(); got != bridge.ExitFailure {
		t.Errorf("Run() = %d, want %d", got, bridge.ExitFailure)
	}
	if b.runs != 0 {
		t.Errorf("bridge ran %d times for an unknown entry", b.runs)
	}
}

func TestQuitRequestsStopOnce(t *testing.T) {
	b := &fakeBridge{}
	e := newTestEngine(t, b)
	e.Quit()
	e.Quit()
	if b.stops != 1 {
		t.Errorf("RequestStop called %d times, want 1", b.stops)
	}
}

func TestInvalidConfigIsInitError(t *testing.T) {
	cfg := *config.Default()
	cfg.Window.Width = 0
	_, err := NewEngine(WithConfig(cfg), WithLogger(zap.NewNop()), WithBridge(&fakeBridge{}))
	if !errors.Is(err, bridge.ErrInit) {
		t.Errorf("NewEngine = %v, want ErrInit", err)
	}
	if got := bridge.ExitCode(err); got != bridge.ExitBridgeInit {
		t.Errorf("ExitCode = %d, want %d", got, bridge.ExitBridgeInit)
	}
}

func TestControlsNameBecomesTitle(t *testing.T) {
	const id = 0xbeef
	simulation.MustRegister(simulation.Entry{
		ID:       id,
		Name:     "titled",
		Controls: "[simulation]\nname = \"Waves\"\n",
		Factory: func(renderer.Renderer) (simulation.Simulation, error) {
			return nil, errors.New("not constructed in this test")
		},
	})

	cfg := *config.Default()
	cfg.Simulation.Entry = id
	e := newTestEngine(t, &fakeBridge{}, WithConfig(cfg))
	if got := e.Config().Window.Title; got != "Waves" {
		t.Errorf("Title = %q, want %q", got, "Waves")
	}

	cfg.Window.Title = "explicit"
	e = newTestEngine(t, &fakeBridge{}, WithConfig(cfg))
	if got := e.Config().Window.Title; got != "explicit" {
		t.Errorf("Title = %q, want %q", got, "explicit")
	}
}

func TestMalformedRegisteredControlsFail(t *testing.T) {
	const id = 0xbad
	simulation.MustRegister(simulation.Entry{
		ID:       id,
		Name:     "broken",
		Controls: "[[block]]\nx = 1\n",
		Factory: func(renderer.Renderer) (simulation.Simulation, error) {
			return nil, errors.New("unused")
		},
	})
	cfg := *config.Default()
	cfg.Simulation.Entry = id
	if _, err := NewEngine(WithConfig(cfg), WithLogger(zap.NewNop()), WithBridge(&fakeBridge{})); err == nil {
		t.Error("NewEngine accepted a malformed control schema")
	}
}

func TestRenderFrameLimitOverridesConfig(t *testing.T) {
	e := newTestEngine(t, &fakeBridge{}, WithRenderFrameLimit(30))
	if got := e.Config().Window.FrameLimit; got != 30 {
		t.Errorf("FrameLimit = %v, want 30", got)
	}
}
