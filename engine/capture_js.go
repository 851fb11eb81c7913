//go:build js

package engine

import (
	"errors"

	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-sim/engine/capture"
	"github.com/Carmen-Shannon/oxy-sim/engine/config"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer"
)

var errCaptureUnsupported = errors.New("frame capture is not supported in the browser")

func openCapture(config.CaptureConfig, renderer.Renderer, *zap.Logger) (*capture.Pipeline, error) {
	return nil, errCaptureUnsupported
}
