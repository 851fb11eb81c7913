package bridge

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-sim/common"
	"github.com/Carmen-Shannon/oxy-sim/engine/input"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer"
	"github.com/Carmen-Shannon/oxy-sim/engine/scheduler"
)

// Process exit codes returned by Bridge.Run.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitDeviceInit        = 2
	ExitBridgeInit        = 3
	ExitSurfaceLost       = 4
	ExitProtocolViolation = 5
)

// ErrInit is wrapped by errors from New when the platform side cannot be set up.
var ErrInit = errors.New("bridge initialization failed")

// Bridge connects a scheduler to a platform: it provides the drawing surface,
// feeds platform input into the scheduler and paces ticks.
type Bridge interface {
	// Surface returns the target the renderer should draw to.
	Surface() renderer.SurfaceTarget

	// Entry returns the id of the simulation to construct.
	Entry() uint32

	// RendersLocally reports whether this process renders. It is false for the
	// page side of a worker split, which only forwards input.
	RendersLocally() bool

	// Run drives s until it stops and returns the process exit code.
	// On the page side s is nil and Run returns when the worker stops.
	//
	// Parameters:
	//   - s: the scheduler to drive
	//
	// Returns:
	//   - int: the exit code, see ExitCode
	Run(s *scheduler.Scheduler) int

	// EnqueueInput delivers ev to the scheduler, or forwards it to the worker.
	EnqueueInput(ev input.Event) error

	// RequestStop asks the run to end. Safe to call more than once.
	RequestStop()
}

// ExitCode maps an error from the harness onto a process exit code.
//
// Parameters:
//   - err: the error that ended the run, or nil
//
// Returns:
//   - int: the exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, common.ErrDeviceInit):
		return ExitDeviceInit
	case errors.Is(err, ErrInit):
		return ExitBridgeInit
	case errors.Is(err, common.ErrSurfaceLost):
		return ExitSurfaceLost
	case errors.Is(err, common.ErrProtocolViolation):
		return ExitProtocolViolation
	default:
		return ExitFailure
	}
}
