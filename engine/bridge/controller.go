package bridge

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-sim/common"
	"github.com/Carmen-Shannon/oxy-sim/engine/input"
)

// Transport posts one message to the other side of a worker split.
type Transport interface {
	Post(msg Message) error
}

// Controller is the page side of a worker split. Messages sent before the worker's
// handshake are buffered and flushed in order once it arrives.
type Controller struct {
	log *zap.Logger
	t   Transport

	mu      sync.Mutex
	ready   bool
	closed  bool
	pending []Message
	err     error
	code    int

	doneOnce sync.Once
	done     chan struct{}
}

// NewController creates a Controller posting through t.
//
// Parameters:
//   - t: the transport to the worker
//   - log: the logger, may be nil
//
// Returns:
//   - *Controller: the controller
func NewController(t Transport, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		log:  log.Named("controller"),
		t:    t,
		done: make(chan struct{}),
	}
}

// Ready reports whether the handshake has arrived.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Pending returns the number of buffered messages.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Done is closed when the worker has stopped or the transport has closed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the controller finished, or nil after a clean stop.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// ExitCode returns the worker's reported exit code, or the code for Err.
func (c *Controller) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.code != 0 {
		return c.code
	}
	return ExitCode(c.err)
}

// Send posts msg, or buffers it until the handshake.
//
// Returns:
//   - error: common.ErrTransportClosed once the transport has failed or the worker stopped
func (c *Controller) Send(msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return common.ErrTransportClosed
	}
	if !c.ready {
		c.pending = append(c.pending, msg)
		return nil
	}
	return c.postLocked(msg)
}

// SendInput forwards ev to the worker.
func (c *Controller) SendInput(ev input.Event) error {
	return c.Send(InputMessage(ev))
}

// SetValue forwards a control value to the worker.
func (c *Controller) SetValue(name string, v input.Value) error {
	return c.Send(ValueMessage(name, v))
}

// Stop asks the worker to stop.
func (c *Controller) Stop() error {
	return c.Send(Message{Kind: KindStop})
}

// Receive handles a message from the worker. A message that breaks the protocol
// ends the run with ExitProtocolViolation.
//
// Returns:
//   - error: the worker's reported error, or a protocol violation
func (c *Controller) Receive(msg Message) error {
	if err := msg.Validate(); err != nil {
		c.Reject(err)
		return err
	}
	switch msg.Kind {
	case KindHandshake:
		return c.handshake()
	case KindStopped:
		c.finish(nil, msg.Code)
		return nil
	case KindError:
		err := fmt.Errorf("worker: %s", msg.Error)
		c.log.Error("worker failed", zap.String("error", msg.Error), zap.Int("code", msg.Code))
		c.finish(err, msg.Code)
		return err
	default:
		err := fmt.Errorf("%w: page received %q", common.ErrProtocolViolation, msg.Kind)
		c.Reject(err)
		return err
	}
}

func (c *Controller) handshake() error {
	c.mu.Lock()
	if c.ready {
		c.mu.Unlock()
		err := fmt.Errorf("%w: repeated handshake", common.ErrProtocolViolation)
		c.Reject(err)
		return err
	}
	c.ready = true
	pending := c.pending
	c.pending = nil
	for _, m := range pending {
		if err := c.postLocked(m); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	c.mu.Unlock()
	c.log.Debug("worker ready", zap.Int("flushed", len(pending)))
	return nil
}

// Reject ends the run because the worker broke the protocol, for example with
// a message that could not be decoded.
//
// Parameters:
//   - err: the violation
func (c *Controller) Reject(err error) {
	c.log.Error("protocol violation", zap.Error(err))
	c.finish(err, ExitProtocolViolation)
}

// Close marks the transport as gone, for example when the worker errored.
func (c *Controller) Close(cause error) {
	if cause == nil {
		cause = common.ErrTransportClosed
	} else if !errors.Is(cause, common.ErrTransportClosed) {
		cause = fmt.Errorf("%w: %v", common.ErrTransportClosed, cause)
	}
	c.finish(cause, 0)
}

func (c *Controller) postLocked(msg Message) error {
	if err := c.t.Post(msg); err != nil {
		c.closed = true
		c.err = fmt.Errorf("%w: %v", common.ErrTransportClosed, err)
		c.doneOnce.Do(func() { close(c.done) })
		return c.err
	}
	return nil
}

func (c *Controller) finish(err error, code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.err == nil {
		c.err = err
	}
	if c.code == 0 {
		c.code = code
	}
	c.pending = nil
	c.doneOnce.Do(func() { close(c.done) })
}
