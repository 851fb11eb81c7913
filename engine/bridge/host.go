package bridge

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-sim/common"
	"github.com/Carmen-Shannon/oxy-sim/engine/scheduler"
)

// Host is the worker side of a worker split: it applies page messages to the scheduler.
type Host struct {
	log *zap.Logger
	s   *scheduler.Scheduler

	mu        sync.Mutex
	violation error
}

// NewHost creates a Host for s.
func NewHost(s *scheduler.Scheduler, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{log: log.Named("host"), s: s}
}

// Handle applies msg. Input after shutdown is dropped with common.ErrStopped.
// A message that breaks the protocol is recorded as the run's violation and stops the scheduler.
//
// Parameters:
//   - msg: a decoded page message
//
// Returns:
//   - error: error if msg is invalid for a worker or the scheduler has stopped
func (h *Host) Handle(msg Message) error {
	err := h.apply(msg)
	if errors.Is(err, common.ErrProtocolViolation) {
		h.Reject(err)
	}
	return err
}

func (h *Host) apply(msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	switch msg.Kind {
	case KindInput:
		return h.s.EnqueueInput(*msg.Event)
	case KindValue:
		h.s.Values().Set(msg.Name, *msg.Value)
		return nil
	case KindStop:
		h.log.Debug("stop requested by page")
		h.s.RequestStop()
		return nil
	default:
		return fmt.Errorf("%w: worker received %q", common.ErrProtocolViolation, msg.Kind)
	}
}

// Reject records err as the run's protocol violation, keeping the first one, and stops the scheduler.
//
// Parameters:
//   - err: the violation
func (h *Host) Reject(err error) {
	h.mu.Lock()
	if h.violation == nil {
		h.violation = err
	}
	h.mu.Unlock()
	h.log.Error("protocol violation", zap.Error(err))
	h.s.RequestStop()
}

// Violation returns the first protocol violation seen, or nil.
func (h *Host) Violation() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.violation
}

// Result combines the scheduler's error with a recorded violation. A clean stop
// caused by a violation is reported as that violation.
//
// Parameters:
//   - err: the error returned by the scheduler's run
//
// Returns:
//   - error: the error the run ended with
func (h *Host) Result(err error) error {
	if err != nil {
		return err
	}
	return h.Violation()
}

// Finished returns the message reporting how the run ended.
//
// Parameters:
//   - err: the error that ended the run, or nil
//
// Returns:
//   - Message: a stopped message, or an error message carrying the exit code
func Finished(err error) Message {
	if err == nil {
		return Message{Kind: KindStopped}
	}
	return Message{Kind: KindError, Error: err.Error(), Code: ExitCode(err)}
}
