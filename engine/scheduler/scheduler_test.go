package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-sim/common"
	"github.com/Carmen-Shannon/oxy-sim/engine/input"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer"
)

// trace records calls from the fakes in order.
type trace struct {
	mu    sync.Mutex
	calls []string
}

func (t *trace) add(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, fmt.Sprintf(format, args...))
}

func (t *trace) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

func (t *trace) count(call string) int {
	n := 0
	for _, c := range t.snapshot() {
		if c == call {
			n++
		}
	}
	return n
}

type fakeRenderer struct {
	renderer.Renderer
	tr        *trace
	beginErrs []error
	// reconfigureErr is returned by Reconfigure.
	reconfigureErr error
	index          uint64
	releaseMu sync.Mutex
	released  int
}

func (f *fakeRenderer) Resize(w, h int) { f.tr.add("resize %dx%d", w, h) }

func (f *fakeRenderer) Reconfigure() error {
	f.tr.add("reconfigure")
	return f.reconfigureErr
}

func (f *fakeRenderer) BeginFrame() (*renderer.FrameTarget, error) {
	f.tr.add("begin")
	if len(f.beginErrs) > 0 {
		err := f.beginErrs[0]
		f.beginErrs = f.beginErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	t := &renderer.FrameTarget{Width: 4, Height: 4, Index: f.index}
	f.index++
	return t, nil
}

func (f *fakeRenderer) Submit() error {
	f.tr.add("submit")
	return nil
}

func (f *fakeRenderer) Present() error {
	f.tr.add("present")
	return nil
}

func (f *fakeRenderer) Release() {
	f.releaseMu.Lock()
	defer f.releaseMu.Unlock()
	f.released++
	f.tr.add("release")
}

type fakeSim struct {
	tr       *trace
	onInput  func(ev input.Event)
	onRender func(values input.Values)
}

func (s *fakeSim) OnInput(ev input.Event) {
	s.tr.add("input %s", ev.Kind)
	if s.onInput != nil {
		s.onInput(ev)
	}
}

func (s *fakeSim) Render(_ renderer.Renderer, _ *renderer.FrameTarget, values input.Values) {
	s.tr.add("render")
	if s.onRender != nil {
		s.onRender(values)
	}
}

type fakeCapture struct {
	tr *trace
}

func (c *fakeCapture) Capture(_ context.Context, t *renderer.FrameTarget) error {
	c.tr.add("capture %d", t.Index)
	return nil
}

func (c *fakeCapture) Finish() error {
	c.tr.add("finish")
	return nil
}

func newTestScheduler(t *testing.T, options ...SchedulerBuilderOption) (*Scheduler, *fakeRenderer, *fakeSim, *trace) {
	t.Helper()
	tr := &trace{}
	r := &fakeRenderer{tr: tr}
	sim := &fakeSim{tr: tr}
	s, err := New(r, sim, options...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.State() != Ready {
		t.Fatalf("State() = %v, want %v", s.State(), Ready)
	}
	return s, r, sim, tr
}

func equalCalls(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestNewRejectsNil(t *testing.T) {
	if _, err := New(nil, &fakeSim{}); err == nil {
		t.Error("New(nil renderer) returned nil error")
	}
	if _, err := New(&fakeRenderer{}, nil); err == nil {
		t.Error("New(nil simulation) returned nil error")
	}
}

func TestTickOrder(t *testing.T) {
	tr := &trace{}
	r := &fakeRenderer{tr: tr}
	sim := &fakeSim{tr: tr}
	s, err := New(r, sim, WithCapture(&fakeCapture{tr: tr}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.EnqueueInput(input.Resize(10, 20)); err != nil {
		t.Fatalf("EnqueueInput: %v", err)
	}
	if err := s.EnqueueInput(input.KeyPress(common.KeySpace)); err != nil {
		t.Fatalf("EnqueueInput: %v", err)
	}
	if err := s.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	want := []string{
		"resize 10x20",
		"input window_resized",
		"input key_pressed",
		"begin",
		"render",
		"submit",
		"capture 0",
		"present",
	}
	if got := tr.snapshot(); !equalCalls(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if s.State() != Idle {
		t.Errorf("State() = %v, want %v", s.State(), Idle)
	}
	if s.Ticks() != 1 {
		t.Errorf("Ticks() = %d, want 1", s.Ticks())
	}
}

func TestInputEnqueuedDuringTickIsDeferred(t *testing.T) {
	s, _, sim, tr := newTestScheduler(t)
	delivered := 0
	sim.onInput = func(ev input.Event) {
		delivered++
		if ev.Kind == input.KeyPressed {
			if err := s.EnqueueInput(input.KeyRelease(ev.Key)); err != nil {
				t.Errorf("EnqueueInput from OnInput: %v", err)
			}
		}
	}

	_ = s.EnqueueInput(input.KeyPress(common.KeyA))
	if err := s.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if delivered != 1 {
		t.Errorf("first tick delivered %d events, want 1", delivered)
	}
	if err := s.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if delivered != 2 {
		t.Errorf("after second tick delivered %d events, want 2", delivered)
	}
	if n := tr.count("input key_released"); n != 1 {
		t.Errorf("key_released delivered %d times, want 1", n)
	}
}

func TestInputFromOtherGoroutinesKeepsOrder(t *testing.T) {
	s, _, sim, _ := newTestScheduler(t)
	var got []int
	sim.onInput = func(ev input.Event) { got = append(got, ev.Key) }

	const n = 100
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			_ = s.EnqueueInput(input.KeyPress(i))
		}
	}()
	for {
		if err := s.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		select {
		case <-done:
			if err := s.Tick(); err != nil {
				t.Fatalf("Tick: %v", err)
			}
			if len(got) != n {
				t.Fatalf("delivered %d events, want %d", len(got), n)
			}
			for i, k := range got {
				if k != i {
					t.Fatalf("event %d has key %d, want %d", i, k, i)
				}
			}
			return
		default:
		}
	}
}

func TestValuesSnapshotReachesRender(t *testing.T) {
	values := input.NewValueMap()
	values.Define("gravity", 0, 10, 9.8)
	s, _, sim, _ := newTestScheduler(t, WithValues(values))

	var seen float64
	sim.onRender = func(v input.Values) { seen = v.Scalar("gravity", -1) }
	if err := s.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if seen != 9.8 {
		t.Errorf("gravity = %v, want 9.8", seen)
	}
}

func TestSurfaceLostRetriedOnce(t *testing.T) {
	s, r, _, tr := newTestScheduler(t)
	r.beginErrs = []error{fmt.Errorf("acquire: %w", common.ErrSurfaceLost)}

	if err := s.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	want := []string{"begin", "reconfigure", "begin", "render", "submit", "present"}
	if got := tr.snapshot(); !equalCalls(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if s.State() != Idle {
		t.Errorf("State() = %v, want %v", s.State(), Idle)
	}
}

func TestSurfaceLostTwiceIsFatal(t *testing.T) {
	s, r, _, tr := newTestScheduler(t)
	r.beginErrs = []error{common.ErrSurfaceLost, common.ErrSurfaceLost}

	err := s.Tick()
	if !errors.Is(err, common.ErrSurfaceLost) {
		t.Fatalf("Tick error = %v, want ErrSurfaceLost", err)
	}
	if tr.count("render") != 0 {
		t.Error("render ran after a fatal surface loss")
	}
	if s.State() != Stopped {
		t.Errorf("State() = %v, want %v", s.State(), Stopped)
	}
	if !errors.Is(s.Err(), common.ErrSurfaceLost) {
		t.Errorf("Err() = %v, want ErrSurfaceLost", s.Err())
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done not closed after fatal error")
	}
	if r.released != 1 {
		t.Errorf("released %d times, want 1", r.released)
	}
	if err := s.Tick(); !errors.Is(err, common.ErrStopped) {
		t.Errorf("Tick after stop = %v, want ErrStopped", err)
	}
}

func TestReconfigureFailureIsSurfaceLost(t *testing.T) {
	s, r, _, tr := newTestScheduler(t)
	r.beginErrs = []error{common.ErrSurfaceLost}
	r.reconfigureErr = errors.New("device gone")

	err := s.Tick()
	if !errors.Is(err, common.ErrSurfaceLost) {
		t.Errorf("Tick error = %v, want ErrSurfaceLost", err)
	}
	if !errors.Is(err, r.reconfigureErr) {
		t.Errorf("Tick error = %v, want it to wrap %v", err, r.reconfigureErr)
	}
	if tr.count("begin") != 1 {
		t.Errorf("began %d frames, want 1", tr.count("begin"))
	}
	if !errors.Is(s.Err(), common.ErrSurfaceLost) {
		t.Errorf("Err() = %v, want ErrSurfaceLost", s.Err())
	}
}

func TestFrameSkippedIsNotFatal(t *testing.T) {
	s, r, _, tr := newTestScheduler(t)
	r.beginErrs = []error{renderer.ErrFrameSkipped}

	if err := s.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if tr.count("render") != 0 {
		t.Error("render ran for a skipped frame")
	}
	if err := s.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if tr.count("render") != 1 {
		t.Errorf("render ran %d times, want 1", tr.count("render"))
	}
}

func TestRenderPanicIsFatal(t *testing.T) {
	s, r, sim, _ := newTestScheduler(t)
	sim.onRender = func(input.Values) { panic("boom") }

	if err := s.Tick(); err == nil {
		t.Fatal("Tick returned nil after a panic in Render")
	}
	if s.State() != Stopped {
		t.Errorf("State() = %v, want %v", s.State(), Stopped)
	}
	if r.released != 1 {
		t.Errorf("released %d times, want 1", r.released)
	}
}

func TestConcurrentRequestStop(t *testing.T) {
	tr := &trace{}
	r := &fakeRenderer{tr: tr}
	s, err := New(r, &fakeSim{tr: tr}, WithCapture(&fakeCapture{tr: tr}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = s.EnqueueInput(input.KeyPress(common.KeyA))
	_ = s.EnqueueInput(input.KeyPress(common.KeyD))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RequestStop()
		}()
	}
	wg.Wait()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after RequestStop")
	}
	if r.released != 1 {
		t.Errorf("released %d times, want 1", r.released)
	}
	if n := tr.count("finish"); n != 1 {
		t.Errorf("capture finished %d times, want 1", n)
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v, want nil", s.Err())
	}
	if s.Discarded() != 2 {
		t.Errorf("Discarded() = %d, want 2", s.Discarded())
	}
	if err := s.EnqueueInput(input.KeyPress(common.KeyW)); !errors.Is(err, common.ErrStopped) {
		t.Errorf("EnqueueInput after stop = %v, want ErrStopped", err)
	}
}

func TestStopDuringTickCompletesTick(t *testing.T) {
	s, _, sim, tr := newTestScheduler(t)
	sim.onRender = func(input.Values) {
		s.RequestStop()
		_ = s.EnqueueInput(input.KeyPress(common.KeyS))
	}

	if err := s.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	want := []string{"begin", "render", "submit", "present", "release"}
	if got := tr.snapshot(); !equalCalls(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if s.State() != Stopped {
		t.Errorf("State() = %v, want %v", s.State(), Stopped)
	}
	if s.Discarded() != 1 {
		t.Errorf("Discarded() = %d, want 1", s.Discarded())
	}
}

func TestRunStopsWhenTicksClose(t *testing.T) {
	s, _, _, tr := newTestScheduler(t)
	ticks := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		ticks <- struct{}{}
	}
	close(ticks)

	if err := s.Run(context.Background(), ticks); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := tr.count("present"); n != 3 {
		t.Errorf("presented %d frames, want 3", n)
	}
	if s.State() != Stopped {
		t.Errorf("State() = %v, want %v", s.State(), Stopped)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Run(ctx, make(chan struct{})); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.State() != Stopped {
		t.Errorf("State() = %v, want %v", s.State(), Stopped)
	}
}

// slowCapture blocks in Finish until release is closed.
type slowCapture struct {
	finishing chan struct{}
	release   chan struct{}
}

func (c *slowCapture) Capture(context.Context, *renderer.FrameTarget) error { return nil }

func (c *slowCapture) Finish() error {
	close(c.finishing)
	<-c.release
	return nil
}

func TestRunWaitsForShutdownInProgress(t *testing.T) {
	c := &slowCapture{finishing: make(chan struct{}), release: make(chan struct{})}
	s, _, _, _ := newTestScheduler(t, WithCapture(c))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan error, 1)
	go func() { result <- s.Run(ctx, make(chan struct{})) }()
	time.Sleep(20 * time.Millisecond)

	// Another goroutine is mid-shutdown when the run is cancelled.
	go s.RequestStop()
	<-c.finishing
	cancel()

	select {
	case err := <-result:
		t.Fatalf("Run returned %v before capture finished", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(c.release)

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after shutdown completed")
	}
	if s.State() != Stopped {
		t.Errorf("State() = %v, want %v", s.State(), Stopped)
	}
}

func TestRunReturnsFatalError(t *testing.T) {
	s, r, _, _ := newTestScheduler(t)
	r.beginErrs = []error{common.ErrSurfaceLost, common.ErrSurfaceLost}
	ticks := make(chan struct{}, 1)
	ticks <- struct{}{}

	if err := s.Run(context.Background(), ticks); !errors.Is(err, common.ErrSurfaceLost) {
		t.Errorf("Run error = %v, want ErrSurfaceLost", err)
	}
}
