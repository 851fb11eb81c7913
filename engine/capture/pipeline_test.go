package capture

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/Carmen-Shannon/oxy-sim/common"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer"
)

type fakeReadback struct {
	mu       sync.Mutex
	reads    int
	fail     func(n int) bool
	released bool
}

func (f *fakeReadback) Read(_ context.Context, target *renderer.FrameTarget) (*FrameBuffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.reads
	f.reads++
	if f.fail != nil && f.fail(n) {
		return nil, common.ErrReadbackFailed
	}
	return &FrameBuffer{Width: 2, Height: 2, BytesPerRow: 8, Data: make([]byte, 16)}, nil
}

func (f *fakeReadback) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
}

type recordingEncoder struct {
	mu     sync.Mutex
	gate   chan struct{}
	seqs   []uint64
	err    error
	closed bool
}

func (e *recordingEncoder) Encode(frame *ConvertedBuffer) error {
	if e.gate != nil {
		<-e.gate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.seqs = append(e.seqs, frame.Seq)
	return nil
}

func (e *recordingEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *recordingEncoder) recorded() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]uint64(nil), e.seqs...)
}

func passthrough(fb *FrameBuffer, _ OutputFormat) (*ConvertedBuffer, error) {
	return &ConvertedBuffer{Seq: fb.Seq, Width: fb.Width, Height: fb.Height}, nil
}

func frame(i int) *renderer.FrameTarget {
	return &renderer.FrameTarget{Index: uint64(i), Width: 2, Height: 2}
}

func TestCaptureBlocksAtInFlightLimit(t *testing.T) {
	const k = 2
	enc := &recordingEncoder{gate: make(chan struct{})}
	p := NewPipeline(&fakeReadback{}, enc, WithInFlight(k), WithWorkers(4), WithConverter(passthrough))
	ctx := context.Background()

	for i := 0; i < k; i++ {
		if err := p.Capture(ctx, frame(i)); err != nil {
			t.Fatalf("Capture(%d): %v", i, err)
		}
	}

	blocked := make(chan error, 1)
	go func() { blocked <- p.Capture(ctx, frame(k)) }()

	select {
	case err := <-blocked:
		t.Fatalf("Capture %d returned %v before a slot was free", k+1, err)
	case <-time.After(50 * time.Millisecond):
	}

	close(enc.gate)
	select {
	case err := <-blocked:
		if err != nil {
			t.Fatalf("Capture(%d): %v", k, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Capture stayed blocked after the encoder drained")
	}

	if err := p.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	got := enc.recorded()
	if len(got) != k+1 {
		t.Fatalf("encoded %d frames, want %d", len(got), k+1)
	}
	for i, seq := range got {
		if seq != uint64(i) {
			t.Errorf("frame %d has seq %d", i, seq)
		}
	}
	if p.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", p.Dropped())
	}
}

func TestCaptureCancelledWhileBlocked(t *testing.T) {
	enc := &recordingEncoder{gate: make(chan struct{})}
	p := NewPipeline(&fakeReadback{}, enc, WithInFlight(1), WithConverter(passthrough))

	if err := p.Capture(context.Background(), frame(0)); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Capture(ctx, frame(1)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Capture = %v, want deadline exceeded", err)
	}
	close(enc.gate)
	if err := p.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func TestCaptureEmitsInOrder(t *testing.T) {
	const frames = 64
	enc := &recordingEncoder{}
	slow := func(fb *FrameBuffer, out OutputFormat) (*ConvertedBuffer, error) {
		time.Sleep(time.Duration(rand.IntN(3000)) * time.Microsecond)
		return passthrough(fb, out)
	}
	p := NewPipeline(&fakeReadback{}, enc, WithInFlight(8), WithWorkers(6), WithConverter(slow))

	for i := 0; i < frames; i++ {
		if err := p.Capture(context.Background(), frame(i)); err != nil {
			t.Fatalf("Capture(%d): %v", i, err)
		}
	}
	if err := p.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got := enc.recorded()
	if len(got) != frames {
		t.Fatalf("encoded %d frames, want %d", len(got), frames)
	}
	for i, seq := range got {
		if seq != uint64(i) {
			t.Fatalf("position %d has seq %d", i, seq)
		}
	}
	if p.Captured() != frames {
		t.Errorf("Captured() = %d, want %d", p.Captured(), frames)
	}
	if !enc.closed {
		t.Error("encoder not closed by Finish")
	}
}

// stopCountingPool counts Stop calls on the wrapped pool.
type stopCountingPool struct {
	worker.DynamicWorkerPool
	stops int
}

func (p *stopCountingPool) Stop() {
	p.stops++
	p.DynamicWorkerPool.Stop()
}

func TestFinishStopsWorkerPool(t *testing.T) {
	enc := &recordingEncoder{}
	p := NewPipeline(&fakeReadback{}, enc, WithWorkers(2))
	pool := &stopCountingPool{DynamicWorkerPool: p.pool}
	p.pool = pool

	for i := 0; i < 4; i++ {
		if err := p.Capture(context.Background(), frame(i)); err != nil {
			t.Fatalf("Capture(%d): %v", i, err)
		}
	}
	if err := p.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := p.Finish(); err != nil {
		t.Fatalf("second Finish: %v", err)
	}
	if pool.stops != 1 {
		t.Errorf("pool stopped %d times, want 1", pool.stops)
	}
	if got := enc.recorded(); len(got) != 4 {
		t.Errorf("encoded %d frames, want 4", len(got))
	}
}

func TestReadbackFailuresDisableCapture(t *testing.T) {
	rb := &fakeReadback{fail: func(int) bool { return true }}
	enc := &recordingEncoder{}
	p := NewPipeline(rb, enc, WithFailureThreshold(3), WithConverter(passthrough))

	for i := 0; i < 5; i++ {
		if err := p.Capture(context.Background(), frame(i)); err != nil {
			t.Fatalf("Capture(%d): %v", i, err)
		}
	}
	if !p.Disabled() {
		t.Error("Disabled() = false, want true")
	}
	if rb.reads != 3 {
		t.Errorf("reads = %d, want 3", rb.reads)
	}
	if p.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", p.Dropped())
	}
	if err := p.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !rb.released {
		t.Error("readback not released by Finish")
	}
}

func TestReadbackFailureCountResets(t *testing.T) {
	rb := &fakeReadback{fail: func(n int) bool { return n%3 != 2 }}
	enc := &recordingEncoder{}
	p := NewPipeline(rb, enc, WithFailureThreshold(3), WithConverter(passthrough))

	for i := 0; i < 9; i++ {
		if err := p.Capture(context.Background(), frame(i)); err != nil {
			t.Fatalf("Capture(%d): %v", i, err)
		}
	}
	if err := p.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if p.Disabled() {
		t.Error("Disabled() = true, want false")
	}
	if p.Dropped() != 6 {
		t.Errorf("Dropped() = %d, want 6", p.Dropped())
	}
	got := enc.recorded()
	if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Errorf("encoded seqs = %v, want [0 1 2]", got)
	}
}

func TestConvertFailureSkipsFrame(t *testing.T) {
	enc := &recordingEncoder{}
	failOne := func(fb *FrameBuffer, out OutputFormat) (*ConvertedBuffer, error) {
		if fb.Seq == 1 {
			return nil, errors.New("bad frame")
		}
		return passthrough(fb, out)
	}
	p := NewPipeline(&fakeReadback{}, enc, WithConverter(failOne))

	for i := 0; i < 3; i++ {
		if err := p.Capture(context.Background(), frame(i)); err != nil {
			t.Fatalf("Capture(%d): %v", i, err)
		}
	}
	if err := p.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	got := enc.recorded()
	if len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("encoded seqs = %v, want [0 2]", got)
	}
	if p.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", p.Dropped())
	}
}

func TestEncoderErrorSurfaces(t *testing.T) {
	encErr := errors.New("disk full")
	enc := &recordingEncoder{err: encErr}
	p := NewPipeline(&fakeReadback{}, enc, WithConverter(passthrough))

	if err := p.Capture(context.Background(), frame(0)); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := p.Finish(); !errors.Is(err, encErr) {
		t.Errorf("Finish = %v, want %v", err, encErr)
	}
	if err := p.Capture(context.Background(), frame(1)); !errors.Is(err, common.ErrStopped) {
		t.Errorf("Capture after Finish = %v, want ErrStopped", err)
	}
	if err := p.Finish(); !errors.Is(err, encErr) {
		t.Errorf("second Finish = %v, want %v", err, encErr)
	}
}
