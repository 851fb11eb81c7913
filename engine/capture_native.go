//go:build !js

package engine

import (
	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-sim/engine/capture"
	"github.com/Carmen-Shannon/oxy-sim/engine/config"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer"
)

func openCapture(cfg config.CaptureConfig, r renderer.Renderer, log *zap.Logger) (*capture.Pipeline, error) {
	return capture.Open(cfg, r, log)
}
