package simulation

import (
	"github.com/Carmen-Shannon/oxy-sim/engine/input"
	"github.com/Carmen-Shannon/oxy-sim/engine/renderer"
)

// Simulation is the user-supplied step and draw logic driven by the scheduler.
type Simulation interface {
	// Render advances the simulation and records draw commands into target.Pass.
	// target is only valid for the duration of the call.
	//
	// Parameters:
	//   - r: the renderer that owns the frame
	//   - target: the open frame
	//   - values: a snapshot of control values taken for this tick
	Render(r renderer.Renderer, target *renderer.FrameTarget, values input.Values)
}

// InputHandler is implemented by simulations that react to input events.
// OnInput runs before the Render call of the same tick.
type InputHandler interface {
	OnInput(ev input.Event)
}

// Factory constructs a Simulation once the renderer exists.
type Factory func(r renderer.Renderer) (Simulation, error)

// Base is an embeddable no-op InputHandler.
type Base struct{}

func (Base) OnInput(input.Event) {}

// DeliverInput calls sim.OnInput when sim implements InputHandler.
func DeliverInput(sim Simulation, ev input.Event) {
	if h, ok := sim.(InputHandler); ok {
		h.OnInput(ev)
	}
}
