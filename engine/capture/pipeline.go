package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Carmen-Shannon/oxy-sim/common"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer"
)

// converted is a conversion result waiting for its turn at the encoder.
type converted struct {
	frame *ConvertedBuffer
	err   error
}

// Pipeline reads frames back on the render goroutine, converts them in parallel and
// hands them to the encoder in submission order.
type Pipeline struct {
	log      *zap.Logger
	readback Readback
	enc      Encoder
	convert  Converter
	out      OutputFormat

	inFlight         int
	workers          int
	failureThreshold int

	sem  *semaphore.Weighted
	pool worker.DynamicWorkerPool
	wg   sync.WaitGroup

	// seq and failures are only touched by Capture, which runs on one goroutine.
	seq      uint64
	failures int

	// mu is held while encoding so frames reach the encoder one at a time.
	mu       sync.Mutex
	pending  map[uint64]converted
	nextEmit uint64

	errMu     sync.Mutex
	encodeErr error

	disabled atomic.Bool
	finished atomic.Bool
	captured atomic.Int64
	dropped  atomic.Int64

	finishOnce sync.Once
	finishErr  error
}

// NewPipeline creates a capture pipeline.
//
// Parameters:
//   - readback: copies frames out of GPU memory
//   - enc: receives converted frames in order; closed by Finish
//   - options: functional options for pipeline configuration
//
// Returns:
//   - *Pipeline: the pipeline
func NewPipeline(readback Readback, enc Encoder, options ...PipelineBuilderOption) *Pipeline {
	p := &Pipeline{
		log:              zap.NewNop(),
		readback:         readback,
		enc:              enc,
		convert:          Convert,
		inFlight:         4,
		workers:          4,
		failureThreshold: 8,
		pending:          make(map[uint64]converted),
	}
	for _, opt := range options {
		opt(p)
	}
	p.sem = semaphore.NewWeighted(int64(p.inFlight))
	p.pool = worker.NewDynamicWorkerPool(p.workers, 256, 1*time.Second)
	return p
}

// Captured returns the number of frames handed to the encoder.
func (p *Pipeline) Captured() int64 { return p.captured.Load() }

// Dropped returns the number of frames skipped because readback or conversion failed.
func (p *Pipeline) Dropped() int64 { return p.dropped.Load() }

// Disabled reports whether capture turned itself off after repeated readback failures.
func (p *Pipeline) Disabled() bool { return p.disabled.Load() }

// Capture reads target back and schedules it for conversion. It blocks while the
// in-flight limit is reached. A readback failure skips the frame and returns nil.
//
// Parameters:
//   - ctx: cancels a blocked wait for an in-flight slot
//   - target: the submitted frame
//
// Returns:
//   - error: common.ErrStopped after Finish, the encoder's error once encoding has failed,
//     or ctx's error
func (p *Pipeline) Capture(ctx context.Context, target *renderer.FrameTarget) error {
	if p.finished.Load() {
		return common.ErrStopped
	}
	if p.disabled.Load() {
		return nil
	}
	if err := p.encoderErr(); err != nil {
		return err
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for capture slot: %w", err)
	}

	fb, err := p.readback.Read(ctx, target)
	if err != nil {
		p.sem.Release(1)
		p.dropped.Add(1)
		p.failures++
		p.log.Warn("readback failed, frame skipped",
			zap.Uint64("frame", target.Index),
			zap.Int("consecutive", p.failures),
			zap.Error(err))
		if p.failureThreshold > 0 && p.failures >= p.failureThreshold {
			p.disabled.Store(true)
			p.log.Error("capture disabled after repeated readback failures", zap.Int("failures", p.failures))
		}
		return nil
	}
	p.failures = 0

	seq := p.seq
	p.seq++
	fb.Seq = seq

	p.wg.Add(1)
	p.pool.SubmitTask(worker.Task{
		ID: int(seq),
		Do: func() (any, error) {
			defer p.wg.Done()
			frame, err := p.convert(fb, p.out)
			p.complete(seq, frame, err)
			return nil, err
		},
	})
	return nil
}

// complete stores a conversion result and emits every result that is next in order.
func (p *Pipeline) complete(seq uint64, frame *ConvertedBuffer, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending[seq] = converted{frame: frame, err: err}
	for {
		next, ok := p.pending[p.nextEmit]
		if !ok {
			return
		}
		delete(p.pending, p.nextEmit)

		switch {
		case next.err != nil:
			p.dropped.Add(1)
			p.log.Warn("convert failed, frame skipped", zap.Uint64("seq", p.nextEmit), zap.Error(next.err))
		case p.encoderErr() != nil:
			p.dropped.Add(1)
		default:
			if eerr := p.enc.Encode(next.frame); eerr != nil {
				p.errMu.Lock()
				p.encodeErr = eerr
				p.errMu.Unlock()
				p.dropped.Add(1)
				p.log.Error("encode failed", zap.Uint64("seq", p.nextEmit), zap.Error(eerr))
			} else {
				p.captured.Add(1)
			}
		}
		p.nextEmit++
		p.sem.Release(1)
	}
}

func (p *Pipeline) encoderErr() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.encodeErr
}

// Finish waits for every in-flight frame to be encoded, then stops the worker pool,
// closes the encoder and releases the readback. Safe to call more than once.
//
// Returns:
//   - error: the first encoder error, if any
func (p *Pipeline) Finish() error {
	p.finishOnce.Do(func() {
		p.finished.Store(true)
		// Holding every slot means nothing is left between readback and encode.
		_ = p.sem.Acquire(context.Background(), int64(p.inFlight))
		p.wg.Wait()
		p.pool.Stop()

		err := errors.Join(p.encoderErr(), p.enc.Close())
		if p.readback != nil {
			p.readback.Release()
		}
		if err != nil {
			p.finishErr = fmt.Errorf("finish capture: %w", err)
		}
		p.log.Info("capture finished",
			zap.Int64("captured", p.Captured()),
			zap.Int64("dropped", p.Dropped()),
			zap.Bool("disabled", p.Disabled()))
	})
	return p.finishErr
}
