package capture

import (
	"go.uber.org/zap"
)

// PipelineBuilderOption is a functional option for configuring a Pipeline.
type PipelineBuilderOption func(*Pipeline)

// WithLogger sets the logger used by the pipeline.
func WithLogger(log *zap.Logger) PipelineBuilderOption {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log.Named("capture")
		}
	}
}

// WithConverter replaces Convert, the function run on the worker pool for every frame.
func WithConverter(c Converter) PipelineBuilderOption {
	return func(p *Pipeline) {
		if c != nil {
			p.convert = c
		}
	}
}

// WithInFlight sets how many frames may be read back but not yet encoded.
// Capture blocks while the limit is reached. Defaults to 4.
func WithInFlight(n int) PipelineBuilderOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.inFlight = n
		}
	}
}

// WithWorkers sets the maximum number of conversion workers. Defaults to 4.
func WithWorkers(n int) PipelineBuilderOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithFailureThreshold disables capture after n consecutive readback failures.
// Zero never disables. Defaults to 8.
func WithFailureThreshold(n int) PipelineBuilderOption {
	return func(p *Pipeline) {
		if n >= 0 {
			p.failureThreshold = n
		}
	}
}

// WithScale sets the output size; zero keeps the rendered size.
func WithScale(width, height int) PipelineBuilderOption {
	return func(p *Pipeline) {
		p.out = OutputFormat{Width: width, Height: height}
	}
}
