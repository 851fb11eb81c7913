package scheduler

import (
	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-sim/engine/input"
	"github.com/Carmen-Shannon/oxy-sim/engine/profiler"
)

// SchedulerBuilderOption is a functional option for configuring a Scheduler.
type SchedulerBuilderOption func(*Scheduler)

// WithLogger sets the logger used by the scheduler.
//
// Parameters:
//   - log: the parent logger; the scheduler logs under the "scheduler" name
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the logger option
func WithLogger(log *zap.Logger) SchedulerBuilderOption {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log.Named("scheduler")
		}
	}
}

// WithValues sets the control values snapshotted into every Render call.
// Defaults to an empty map.
//
// Parameters:
//   - values: the shared value map
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the values option
func WithValues(values *input.ValueMap) SchedulerBuilderOption {
	return func(s *Scheduler) {
		if values != nil {
			s.values = values
		}
	}
}

// WithCapture enables frame capture after Submit of every tick.
//
// Parameters:
//   - c: the capture sink, normally a *capture.Pipeline
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the capture option
func WithCapture(c Capturer) SchedulerBuilderOption {
	return func(s *Scheduler) {
		s.capture = c
	}
}

// WithProfiler ticks p once per completed tick.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the profiler option
func WithProfiler(p *profiler.Profiler) SchedulerBuilderOption {
	return func(s *Scheduler) {
		s.profiler = p
	}
}

// WithQueueCapacity sets the initial capacity of the input double buffer.
//
// Parameters:
//   - n: number of events each buffer holds before growing
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the capacity option
func WithQueueCapacity(n int) SchedulerBuilderOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.queueCapacity = n
		}
	}
}
