//go:build !js

package capture

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-sim/common"
	"github.com/Carmen-Shannon/oxy-sim/engine/config"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer"
)

// NewEncoder creates the encoder named by cfg.Format.
//
// Parameters:
//   - cfg: the capture configuration
//   - log: logger for encoder diagnostics
//
// Returns:
//   - Encoder: the encoder
//   - error: error if the output cannot be created or the format is unknown
func NewEncoder(cfg config.CaptureConfig, log *zap.Logger) (Encoder, error) {
	switch cfg.Format {
	case config.CaptureFormatY4M:
		f, err := os.Create(cfg.Output)
		if err != nil {
			return nil, fmt.Errorf("create capture output: %w", err)
		}
		return NewY4MEncoder(f, cfg.FPS, cfg.Compress), nil
	case config.CaptureFormatFFmpeg:
		return NewFFmpegEncoder(common.Coalesce(cfg.FFmpegPath, "ffmpeg"), cfg.Output, cfg.Bitrate, cfg.FPS, log), nil
	default:
		return nil, fmt.Errorf("unknown capture format %q", cfg.Format)
	}
}

// Open builds a Pipeline reading frames from r and writing them as cfg describes.
//
// Parameters:
//   - cfg: the capture configuration
//   - r: the renderer, created with capture source usage
//   - log: the parent logger
//
// Returns:
//   - *Pipeline: the pipeline
//   - error: error if the encoder cannot be created
func Open(cfg config.CaptureConfig, r renderer.Renderer, log *zap.Logger) (*Pipeline, error) {
	enc, err := NewEncoder(cfg, log)
	if err != nil {
		return nil, err
	}
	return NewPipeline(NewWGPUReadback(r), enc,
		WithLogger(log),
		WithInFlight(cfg.InFlight),
		WithWorkers(cfg.Workers),
		WithFailureThreshold(cfg.FailureThreshold),
		WithScale(cfg.ScaleWidth, cfg.ScaleHeight),
	), nil
}
