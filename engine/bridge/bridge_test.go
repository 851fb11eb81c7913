package bridge

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Carmen-Shannon/oxy-sim/common"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"clean", nil, ExitOK},
		{"generic", errors.New("boom"), ExitFailure},
		{"device", fmt.Errorf("request adapter: %w", common.ErrDeviceInit), ExitDeviceInit},
		{"bridge", fmt.Errorf("%w: no display", ErrInit), ExitBridgeInit},
		{"surface", fmt.Errorf("begin frame: %w", common.ErrSurfaceLost), ExitSurfaceLost},
		{"protocol", fmt.Errorf("submit: %w", common.ErrProtocolViolation), ExitProtocolViolation},
		{"transport", common.ErrTransportClosed, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
