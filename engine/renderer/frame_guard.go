package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-sim/common"
)

// framePhase is the position of the renderer within the BeginFrame/Submit/Present protocol.
type framePhase int

const (
	phaseIdle framePhase = iota
	phaseRecording
	phaseSubmitted
)

func (p framePhase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseRecording:
		return "recording"
	case phaseSubmitted:
		return "submitted"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// frameGuard enforces BeginFrame -> Submit -> Present ordering.
// It is not safe for concurrent use; the renderer serializes access.
type frameGuard struct {
	phase framePhase
}

func (g *frameGuard) begin() error {
	if g.phase != phaseIdle {
		return fmt.Errorf("begin frame while %s: %w", g.phase, common.ErrProtocolViolation)
	}
	g.phase = phaseRecording
	return nil
}

func (g *frameGuard) submit() error {
	if g.phase != phaseRecording {
		return fmt.Errorf("submit while %s: %w", g.phase, common.ErrProtocolViolation)
	}
	g.phase = phaseSubmitted
	return nil
}

func (g *frameGuard) present() error {
	if g.phase != phaseSubmitted {
		return fmt.Errorf("present while %s: %w", g.phase, common.ErrProtocolViolation)
	}
	g.phase = phaseIdle
	return nil
}

// abort returns to idle after a frame could not be acquired or recorded.
func (g *frameGuard) abort() {
	g.phase = phaseIdle
}
