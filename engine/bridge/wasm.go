//go:build js && wasm

package bridge

import (
	"context"
	"fmt"
	"sync"
	"syscall/js"

	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-sim/common"
	"github.com/Carmen-Shannon/oxy-sim/engine/config"
	"github.com/Carmen-Shannon/oxy-sim/engine/input"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer"
	"github.com/Carmen-Shannon/oxy-sim/engine/scheduler"
)

// New creates the bridge for this platform. In a document it returns the page side,
// which creates the canvas and spawns the worker. In a worker it blocks until the
// page's init message has arrived and returns the worker side.
//
// Parameters:
//   - cfg: the harness configuration
//   - log: the logger, may be nil
//
// Returns:
//   - Bridge: the bridge
//   - error: error wrapping ErrInit if the page or worker cannot be set up
func New(cfg config.Config, log *zap.Logger) (Bridge, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("bridge")
	if js.Global().Get("document").Truthy() {
		b, err := newPageBridge(cfg, log)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	b, err := newWorkerBridge(cfg, log)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// guard converts a thrown JavaScript exception into an error.
func guard(err *error) {
	if r := recover(); r != nil {
		if jsErr, ok := r.(js.Error); ok {
			*err = jsErr
			return
		}
		*err = fmt.Errorf("%v", r)
	}
}

// postTransport posts JSON messages through a MessagePort-like value.
type postTransport struct {
	target js.Value
}

func (t postTransport) Post(msg Message) (err error) {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	defer guard(&err)
	t.target.Call("postMessage", string(data))
	return nil
}

// pageBridge owns the canvas and forwards DOM input to the worker.
type pageBridge struct {
	log    *zap.Logger
	cfg    config.Config
	canvas js.Value
	worker js.Value
	ctrl   *Controller
	funcs  []js.Func
}

func newPageBridge(cfg config.Config, log *zap.Logger) (b *pageBridge, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrInit, err)
		}
	}()
	defer guard(&err)

	doc := js.Global().Get("document")
	canvas := doc.Call("getElementById", cfg.Worker.CanvasID)
	if !canvas.Truthy() {
		canvas = doc.Call("createElement", "canvas")
		canvas.Set("id", cfg.Worker.CanvasID)
		doc.Get("body").Call("appendChild", canvas)
	}
	canvas.Set("width", cfg.Window.Width)
	canvas.Set("height", cfg.Window.Height)
	canvas.Set("tabIndex", 0)

	offscreen := canvas.Call("transferControlToOffscreen")
	worker := js.Global().Get("Worker").New(cfg.Worker.Script)

	b = &pageBridge{log: log, cfg: cfg, canvas: canvas, worker: worker}
	b.ctrl = NewController(postTransport{target: worker}, log)

	b.listen(worker, "message", func(ev js.Value) {
		data := ev.Get("data")
		if data.Type() != js.TypeString {
			b.ctrl.Reject(fmt.Errorf("%w: non-text message from worker", common.ErrProtocolViolation))
			return
		}
		msg, err := Decode([]byte(data.String()))
		if err != nil {
			b.ctrl.Reject(err)
			return
		}
		if err := b.ctrl.Receive(msg); err != nil {
			b.log.Debug("worker message ended the run", zap.String("kind", string(msg.Kind)), zap.Error(err))
		}
	})
	b.listen(worker, "error", func(ev js.Value) {
		b.ctrl.Close(fmt.Errorf("worker error: %s", ev.Get("message").String()))
	})
	b.listenInput()

	initMsg := js.Global().Get("Object").New()
	initMsg.Set("kind", string(KindInit))
	initMsg.Set("entry", cfg.Simulation.Entry)
	initMsg.Set("canvas", offscreen)
	initMsg.Set("memory", wasmMemory())
	transfer := js.Global().Get("Array").New(offscreen)
	worker.Call("postMessage", initMsg, transfer)

	log.Info("worker spawned", zap.String("script", cfg.Worker.Script), zap.Uint32("entry", cfg.Simulation.Entry))
	return b, nil
}

// wasmMemory returns the module's linear memory when the page exposes its Go instance.
func wasmMemory() js.Value {
	g := js.Global().Get("go")
	if !g.Truthy() || !g.Get("_inst").Truthy() {
		return js.Undefined()
	}
	return g.Get("_inst").Get("exports").Get("mem")
}

func (b *pageBridge) listen(target js.Value, event string, fn func(ev js.Value)) {
	f := js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) > 0 {
			fn(args[0])
		}
		return nil
	})
	b.funcs = append(b.funcs, f)
	target.Call("addEventListener", event, f)
}

// pointer returns the event position in normalised device coordinates of the canvas.
func (b *pageBridge) pointer(ev js.Value) (float32, float32) {
	rect := b.canvas.Call("getBoundingClientRect")
	x := ev.Get("clientX").Float() - rect.Get("left").Float()
	y := ev.Get("clientY").Float() - rect.Get("top").Float()
	size := common.Size{Width: rect.Get("width").Int(), Height: rect.Get("height").Int()}
	return common.NormalizePointer(x, y, size)
}

func (b *pageBridge) listenInput() {
	send := func(ev input.Event) {
		if err := b.EnqueueInput(ev); err != nil {
			b.log.Debug("input dropped", zap.Stringer("kind", ev.Kind), zap.Error(err))
		}
	}
	b.listen(b.canvas, "pointermove", func(ev js.Value) {
		send(input.PointerMove(b.pointer(ev)))
	})
	b.listen(b.canvas, "pointerdown", func(ev js.Value) {
		x, y := b.pointer(ev)
		send(input.PointerPress(x, y, ev.Get("button").Int()))
	})
	b.listen(b.canvas, "pointerup", func(ev js.Value) {
		x, y := b.pointer(ev)
		send(input.PointerRelease(x, y, ev.Get("button").Int()))
	})
	b.listen(b.canvas, "focus", func(js.Value) { send(input.Focus(true)) })
	b.listen(b.canvas, "blur", func(js.Value) { send(input.Focus(false)) })

	win := js.Global().Get("window")
	b.listen(win, "keydown", func(ev js.Value) {
		key := common.KeyFromBrowser(ev.Get("key").String())
		if key == common.KeyUnknown {
			return
		}
		send(input.KeyPress(key))
		if key == common.KeyEsc && !ev.Get("repeat").Bool() {
			b.RequestStop()
		}
	})
	b.listen(win, "keyup", func(ev js.Value) {
		if key := common.KeyFromBrowser(ev.Get("key").String()); key != common.KeyUnknown {
			send(input.KeyRelease(key))
		}
	})
	b.listen(win, "resize", func(js.Value) {
		ratio := win.Get("devicePixelRatio").Float()
		w := int(b.canvas.Get("clientWidth").Float() * ratio)
		h := int(b.canvas.Get("clientHeight").Float() * ratio)
		send(input.Resize(w, h))
	})
}

func (b *pageBridge) Surface() renderer.SurfaceTarget {
	return renderer.SurfaceTarget{}
}

func (b *pageBridge) Entry() uint32 {
	return b.cfg.Simulation.Entry
}

func (b *pageBridge) RendersLocally() bool {
	return false
}

func (b *pageBridge) EnqueueInput(ev input.Event) error {
	return b.ctrl.SendInput(ev)
}

func (b *pageBridge) RequestStop() {
	if err := b.ctrl.Stop(); err != nil {
		b.log.Debug("stop not delivered", zap.Error(err))
	}
}

// Run waits for the worker to stop. s is ignored.
func (b *pageBridge) Run(*scheduler.Scheduler) int {
	<-b.ctrl.Done()
	for _, f := range b.funcs {
		f.Release()
	}
	b.worker.Call("terminate")
	code := b.ctrl.ExitCode()
	if err := b.ctrl.Err(); err != nil {
		b.log.Error("worker ended", zap.Error(err), zap.Int("exit_code", code))
	}
	return code
}

// workerBridge renders into the transferred canvas and applies page messages.
type workerBridge struct {
	log    *zap.Logger
	cfg    config.Config
	self   js.Value
	port   postTransport
	canvas js.Value
	memory js.Value
	entry  uint32
	width  int
	height int

	attachment

	mu   sync.Mutex
	host *Host
	// violation is the first protocol violation seen before Run created the host.
	violation error
	onMessage js.Func
}

func newWorkerBridge(cfg config.Config, log *zap.Logger) (*workerBridge, error) {
	self := js.Global().Get("self")
	if !self.Truthy() {
		return nil, fmt.Errorf("%w: no document and no worker scope", ErrInit)
	}
	b := &workerBridge{log: log, cfg: cfg, self: self, port: postTransport{target: self}}

	initDone := make(chan error, 1)
	var once sync.Once
	b.onMessage = js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) == 0 {
			return nil
		}
		data := args[0].Get("data")
		if data.Type() == js.TypeObject && data.Get("kind").String() == string(KindInit) {
			once.Do(func() { initDone <- b.init(data) })
			return nil
		}
		if data.Type() != js.TypeString {
			b.reject(fmt.Errorf("%w: non-text message from page", common.ErrProtocolViolation))
			return nil
		}
		msg, err := Decode([]byte(data.String()))
		if err != nil {
			b.reject(err)
			return nil
		}
		// Handling may shut the scheduler down, which must not run inside a JS callback.
		go b.handle(msg)
		return nil
	})
	self.Call("addEventListener", "message", b.onMessage)

	if err := <-initDone; err != nil {
		self.Call("removeEventListener", "message", b.onMessage)
		b.onMessage.Release()
		return nil, fmt.Errorf("%w: %v", ErrInit, err)
	}
	return b, nil
}

func (b *workerBridge) init(data js.Value) (err error) {
	defer guard(&err)
	b.canvas = data.Get("canvas")
	if !b.canvas.Truthy() {
		return fmt.Errorf("%w: init message without canvas", common.ErrProtocolViolation)
	}
	b.memory = data.Get("memory")
	b.entry = uint32(data.Get("entry").Int())
	b.width = b.canvas.Get("width").Int()
	b.height = b.canvas.Get("height").Int()
	b.log.Debug("init received", zap.Uint32("entry", b.entry), zap.Int("width", b.width), zap.Int("height", b.height))
	return nil
}

// reject ends the run because the page broke the protocol. Before Run the
// violation is held and applied as soon as the host exists.
func (b *workerBridge) reject(err error) {
	b.mu.Lock()
	host := b.host
	if host == nil && b.violation == nil {
		b.violation = err
	}
	b.mu.Unlock()
	if host == nil {
		b.log.Error("protocol violation before run", zap.Error(err))
		b.requestStop()
		return
	}
	go host.Reject(err)
}

func (b *workerBridge) handle(msg Message) {
	b.mu.Lock()
	host := b.host
	b.mu.Unlock()
	if host == nil {
		b.reject(fmt.Errorf("%w: %q before handshake", common.ErrProtocolViolation, msg.Kind))
		return
	}
	// Violations are recorded by the host and stop the run.
	if err := host.Handle(msg); err != nil {
		b.log.Debug("message not applied", zap.String("kind", string(msg.Kind)), zap.Error(err))
	}
}

// Surface returns a descriptor for the transferred canvas.
func (b *workerBridge) Surface() renderer.SurfaceTarget {
	return renderer.SurfaceTarget{
		Descriptor: &wgpu.SurfaceDescriptor{Canvas: b.canvas},
		Width:      b.width,
		Height:     b.height,
	}
}

func (b *workerBridge) Entry() uint32 {
	return b.entry
}

func (b *workerBridge) RendersLocally() bool {
	return true
}

func (b *workerBridge) EnqueueInput(ev input.Event) error {
	return b.enqueue(ev)
}

func (b *workerBridge) RequestStop() {
	b.requestStop()
}

// Run replies with the handshake and ticks once per animation frame until s stops.
// A protocol violation ends the run with ExitProtocolViolation.
func (b *workerBridge) Run(s *scheduler.Scheduler) int {
	host := NewHost(s, b.log)
	b.mu.Lock()
	b.host = host
	violation := b.violation
	b.mu.Unlock()
	b.attach(s)
	if violation != nil {
		host.Reject(violation)
	}

	if err := b.port.Post(Message{Kind: KindHandshake}); err != nil {
		b.log.Error("handshake not delivered", zap.Error(err))
		s.RequestStop()
	}

	ticks := make(chan struct{}, 1)
	var frame js.Func
	frame = js.FuncOf(func(this js.Value, args []js.Value) any {
		select {
		case ticks <- struct{}{}:
		default:
		}
		select {
		case <-s.Done():
		default:
			b.self.Call("requestAnimationFrame", frame)
		}
		return nil
	})
	b.self.Call("requestAnimationFrame", frame)

	err := host.Result(s.Run(context.Background(), ticks))
	frame.Release()
	b.self.Call("removeEventListener", "message", b.onMessage)
	b.onMessage.Release()

	if perr := b.port.Post(Finished(err)); perr != nil {
		b.log.Warn("final message not delivered", zap.Error(perr))
	}
	code := ExitCode(err)
	if err != nil {
		b.log.Error("run failed", zap.Error(err), zap.Int("exit_code", code))
	}
	return code
}
