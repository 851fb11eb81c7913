//go:build js && wasm

package renderer

import (
	"errors"
	"syscall/js"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-sim/common"
)

// withNavigator replaces the global navigator for the duration of the test.
func withNavigator(t *testing.T, gpu js.Value) {
	t.Helper()
	nav := js.Global().Get("Object").New()
	nav.Set("gpu", gpu)
	prev := js.Global().Get("navigator")
	js.Global().Set("navigator", nav)
	t.Cleanup(func() { js.Global().Set("navigator", prev) })
}

func TestNewRendererWithoutWebGPU(t *testing.T) {
	withNavigator(t, js.Undefined())

	_, err := NewRenderer(SurfaceTarget{})
	if !errors.Is(err, common.ErrDeviceInit) {
		t.Errorf("NewRenderer = %v, want ErrDeviceInit", err)
	}
}

func TestNewRendererWithoutCanvas(t *testing.T) {
	withNavigator(t, js.Global().Get("Object").New())

	target := SurfaceTarget{Descriptor: &wgpu.SurfaceDescriptor{}, Width: 4, Height: 4}
	r, err := NewRenderer(target)
	if r != nil {
		t.Error("NewRenderer returned a renderer for a descriptor without a canvas")
	}
	if !errors.Is(err, common.ErrDeviceInit) {
		t.Errorf("NewRenderer = %v, want ErrDeviceInit", err)
	}
}
