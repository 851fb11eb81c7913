package bridge

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-sim/common"
	"github.com/Carmen-Shannon/oxy-sim/engine/input"
	"github.com/Carmen-Shannon/oxy-sim/engine/scheduler"
)

// attachment holds the scheduler a bridge drives. Input and stop requests that
// arrive before Run attaches the scheduler are held and replayed in order.
type attachment struct {
	mu        sync.Mutex
	s         *scheduler.Scheduler
	pending   []input.Event
	stopEarly bool
}

// enqueue delivers ev to the attached scheduler, or holds it until attach.
//
// Returns:
//   - error: common.ErrStopped once a stop was requested before attach, or the scheduler's error
func (a *attachment) enqueue(ev input.Event) error {
	a.mu.Lock()
	if a.s == nil {
		defer a.mu.Unlock()
		if a.stopEarly {
			return common.ErrStopped
		}
		a.pending = append(a.pending, ev)
		return nil
	}
	s := a.s
	a.mu.Unlock()
	return s.EnqueueInput(ev)
}

// requestStop stops the attached scheduler, or records the request for attach.
func (a *attachment) requestStop() {
	a.mu.Lock()
	s := a.s
	if s == nil {
		a.stopEarly = true
		a.pending = nil
	}
	a.mu.Unlock()
	if s != nil {
		s.RequestStop()
	}
}

// attach makes s the target of later calls, replays held input into it and
// applies an early stop request.
//
// Parameters:
//   - s: the scheduler passed to Run
//
// Returns:
//   - bool: true if a stop was requested before attach
func (a *attachment) attach(s *scheduler.Scheduler) bool {
	a.mu.Lock()
	a.s = s
	for _, ev := range a.pending {
		// A fresh scheduler accepts input until it is stopped, which has not happened yet.
		_ = s.EnqueueInput(ev)
	}
	a.pending = nil
	early := a.stopEarly
	a.mu.Unlock()
	if early {
		s.RequestStop()
	}
	return early
}
