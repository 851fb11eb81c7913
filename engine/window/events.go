package window

import (
	"github.com/Carmen-Shannon/oxy-sim/common"
	"github.com/Carmen-Shannon/oxy-sim/engine/input"
)

// keyAction is a platform-neutral key or button transition.
type keyAction int

const (
	actionPress keyAction = iota
	actionRelease
	actionRepeat
)

// eventTranslator turns raw platform callbacks into input events.
// Pointer positions arrive in window coordinates and are normalised against the window size.
type eventTranslator struct {
	emit    func(ev input.Event)
	close   func()
	cursorX float64
	cursorY float64
	size    common.Size
}

func (t *eventTranslator) send(ev input.Event) {
	if t.emit != nil {
		t.emit(ev)
	}
}

func (t *eventTranslator) requestClose() {
	if t.close != nil {
		t.close()
	}
}

func (t *eventTranslator) pointer() (float32, float32) {
	return common.NormalizePointer(t.cursorX, t.cursorY, t.size)
}

func (t *eventTranslator) key(key int, action keyAction) {
	switch action {
	case actionPress, actionRepeat:
		t.send(input.KeyPress(key))
		if key == common.KeyEsc && action == actionPress {
			t.requestClose()
		}
	case actionRelease:
		t.send(input.KeyRelease(key))
	}
}

func (t *eventTranslator) button(button int, action keyAction) {
	x, y := t.pointer()
	switch action {
	case actionPress:
		t.send(input.PointerPress(x, y, button))
	case actionRelease:
		t.send(input.PointerRelease(x, y, button))
	}
}

func (t *eventTranslator) cursor(x, y float64, windowSize common.Size) {
	t.cursorX, t.cursorY, t.size = x, y, windowSize
	nx, ny := t.pointer()
	t.send(input.PointerMove(nx, ny))
}

func (t *eventTranslator) resize(width, height int) {
	t.send(input.Resize(width, height))
}

func (t *eventTranslator) focus(focused bool) {
	t.send(input.Focus(focused))
}
