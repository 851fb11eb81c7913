package bridge

import (
	"errors"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-sim/common"
	"github.com/Carmen-Shannon/oxy-sim/engine/input"
)

type fakeTransport struct {
	mu     sync.Mutex
	posted []Message
	err    error
}

func (f *fakeTransport) Post(msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.posted = append(f.posted, msg)
	return nil
}

func (f *fakeTransport) sent() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.posted...)
}

func isDone(c *Controller) bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}

func TestControllerBuffersUntilHandshake(t *testing.T) {
	tr := &fakeTransport{}
	c := NewController(tr, nil)

	for i := 0; i < 3; i++ {
		if err := c.SendInput(input.KeyPress(common.Key0 + i)); err != nil {
			t.Fatalf("SendInput(%d): %v", i, err)
		}
	}
	if err := c.SetValue("drag", input.SliderValue(0.1)); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if n := len(tr.sent()); n != 0 {
		t.Fatalf("posted %d messages before handshake, want 0", n)
	}
	if c.Pending() != 4 {
		t.Errorf("Pending() = %d, want 4", c.Pending())
	}

	if err := c.Receive(Message{Kind: KindHandshake}); err != nil {
		t.Fatalf("Receive(handshake): %v", err)
	}
	if !c.Ready() || c.Pending() != 0 {
		t.Errorf("Ready() = %v, Pending() = %d after handshake", c.Ready(), c.Pending())
	}

	if err := c.SendInput(input.KeyPress(common.Key9)); err != nil {
		t.Fatalf("SendInput after handshake: %v", err)
	}
	sent := tr.sent()
	if len(sent) != 5 {
		t.Fatalf("posted %d messages, want 5", len(sent))
	}
	for i := 0; i < 3; i++ {
		if sent[i].Event.Key != common.Key0+i {
			t.Errorf("message %d key = %d, want %d", i, sent[i].Event.Key, common.Key0+i)
		}
	}
	if sent[3].Kind != KindValue || sent[4].Event.Key != common.Key9 {
		t.Errorf("tail messages = %+v, %+v", sent[3], sent[4])
	}

	if err := c.Receive(Message{Kind: KindHandshake}); !errors.Is(err, common.ErrProtocolViolation) {
		t.Errorf("repeated handshake error = %v, want ErrProtocolViolation", err)
	}
	assertViolation(t, c)
}

func assertViolation(t *testing.T, c *Controller) {
	t.Helper()
	if !isDone(c) {
		t.Fatal("Done not closed after protocol violation")
	}
	if !errors.Is(c.Err(), common.ErrProtocolViolation) {
		t.Errorf("Err() = %v, want ErrProtocolViolation", c.Err())
	}
	if c.ExitCode() != ExitProtocolViolation {
		t.Errorf("ExitCode() = %d, want %d", c.ExitCode(), ExitProtocolViolation)
	}
	if err := c.SendInput(input.Focus(true)); err == nil {
		t.Error("SendInput succeeded after protocol violation")
	}
}

func TestControllerUnexpectedKindIsFatal(t *testing.T) {
	c := NewController(&fakeTransport{}, nil)
	_ = c.Receive(Message{Kind: KindHandshake})
	if err := c.Receive(InputMessage(input.KeyPress(common.KeyA))); !errors.Is(err, common.ErrProtocolViolation) {
		t.Errorf("Receive(input) = %v, want ErrProtocolViolation", err)
	}
	assertViolation(t, c)
}

func TestControllerInvalidMessageIsFatal(t *testing.T) {
	c := NewController(&fakeTransport{}, nil)
	if err := c.Receive(Message{Kind: "reload"}); !errors.Is(err, common.ErrProtocolViolation) {
		t.Errorf("Receive(unknown kind) = %v, want ErrProtocolViolation", err)
	}
	assertViolation(t, c)
}

func TestControllerRejectUndecodable(t *testing.T) {
	c := NewController(&fakeTransport{}, nil)
	_, err := Decode([]byte("{not json"))
	if err == nil {
		t.Fatal("Decode accepted malformed JSON")
	}
	c.Reject(err)
	assertViolation(t, c)

	// The first cause is kept.
	c.Reject(errors.New("later"))
	if !errors.Is(c.Err(), common.ErrProtocolViolation) {
		t.Errorf("Err() = %v after second Reject", c.Err())
	}
}

func TestControllerTransportFailureCloses(t *testing.T) {
	tr := &fakeTransport{err: errors.New("port closed")}
	c := NewController(tr, nil)
	_ = c.Stop()

	if err := c.Receive(Message{Kind: KindHandshake}); !errors.Is(err, common.ErrTransportClosed) {
		t.Errorf("flush error = %v, want ErrTransportClosed", err)
	}
	if !isDone(c) {
		t.Error("Done not closed after transport failure")
	}
	if err := c.SendInput(input.Focus(true)); !errors.Is(err, common.ErrTransportClosed) {
		t.Errorf("SendInput = %v, want ErrTransportClosed", err)
	}
	if !errors.Is(c.Err(), common.ErrTransportClosed) {
		t.Errorf("Err() = %v, want ErrTransportClosed", c.Err())
	}
}

func TestControllerWorkerStopped(t *testing.T) {
	c := NewController(&fakeTransport{}, nil)
	_ = c.Receive(Message{Kind: KindHandshake})
	if err := c.Receive(Message{Kind: KindStopped}); err != nil {
		t.Fatalf("Receive(stopped): %v", err)
	}
	if !isDone(c) {
		t.Error("Done not closed after stopped")
	}
	if c.Err() != nil || c.ExitCode() != ExitOK {
		t.Errorf("Err() = %v, ExitCode() = %d", c.Err(), c.ExitCode())
	}
	if err := c.Stop(); !errors.Is(err, common.ErrTransportClosed) {
		t.Errorf("Stop after stopped = %v, want ErrTransportClosed", err)
	}
}

func TestControllerWorkerError(t *testing.T) {
	c := NewController(&fakeTransport{}, nil)
	if err := c.Receive(Finished(common.ErrSurfaceLost)); err == nil {
		t.Error("Receive(error) returned nil")
	}
	if !isDone(c) {
		t.Error("Done not closed after error")
	}
	if c.ExitCode() != ExitSurfaceLost {
		t.Errorf("ExitCode() = %d, want %d", c.ExitCode(), ExitSurfaceLost)
	}
}

func TestControllerClose(t *testing.T) {
	c := NewController(&fakeTransport{}, nil)
	c.Close(errors.New("worker crashed"))
	c.Close(nil)
	if !errors.Is(c.Err(), common.ErrTransportClosed) {
		t.Errorf("Err() = %v, want ErrTransportClosed", c.Err())
	}
	if err := c.Receive(Message{Kind: KindInput}); !errors.Is(err, common.ErrProtocolViolation) {
		t.Errorf("Receive(input without event) = %v, want ErrProtocolViolation", err)
	}
}
