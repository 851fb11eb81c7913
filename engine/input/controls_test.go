package input

import "testing"

func TestParseControlsEmpty(t *testing.T) {
	if _, err := ParseControls(""); err == nil {
		t.Error("ParseControls(\"\") returned nil error")
	}
}

func TestParseControlsMetadata(t *testing.T) {
	s, err := ParseControls(`
[simulation]
name = "test"
description = "testing"
`)
	if err != nil {
		t.Fatalf("ParseControls: %v", err)
	}
	if s.Simulation.Name != "test" || s.Simulation.Description != "testing" {
		t.Errorf("Simulation = %+v", s.Simulation)
	}
	if len(s.Blocks) != 0 {
		t.Errorf("Blocks = %d, want 0", len(s.Blocks))
	}
}

func TestParseControlsBlocks(t *testing.T) {
	s, err := ParseControls(`
[simulation]
name = "test"

[[block]]
_name = "test block"
_size = [400.0, 400.0]
slider = { SLIDER = [0.0, 1.0] }
checkbox = "CHECKBOX"

[block.group]
inner_slider = { SLIDER = [1, 2, 1.5] }
inner_checkbox = "CHECKBOX"
`)
	if err != nil {
		t.Fatalf("ParseControls: %v", err)
	}
	if len(s.Blocks) != 1 {
		t.Fatalf("Blocks = %d, want 1", len(s.Blocks))
	}
	b := s.Blocks[0]
	if b.Name != "test block" || !b.HasSize || b.Size != [2]float32{400, 400} {
		t.Errorf("block header = %q %v %v", b.Name, b.HasSize, b.Size)
	}
	want := []Control{
		{Name: "checkbox", Kind: ControlCheckbox},
		{Name: "group.inner_checkbox", Kind: ControlCheckbox},
		{Name: "group.inner_slider", Kind: ControlSlider, Min: 1, Max: 2, Default: 1.5, HasDefault: true},
		{Name: "slider", Kind: ControlSlider, Min: 0, Max: 1},
	}
	if len(b.Controls) != len(want) {
		t.Fatalf("Controls = %+v, want %+v", b.Controls, want)
	}
	for i := range want {
		if b.Controls[i] != want[i] {
			t.Errorf("Controls[%d] = %+v, want %+v", i, b.Controls[i], want[i])
		}
	}

	vals := s.Values().Snapshot()
	if got := vals.Scalar("slider", -1); got != 0 {
		t.Errorf("slider initial = %v, want lower bound 0", got)
	}
	if got := vals.Scalar("group.inner_slider", -1); got != 1.5 {
		t.Errorf("inner_slider initial = %v, want default 1.5", got)
	}
	if got := vals.Bool("checkbox", true); got {
		t.Error("checkbox initial = true, want false")
	}
}

func TestParseControlsRejects(t *testing.T) {
	docs := map[string]string{
		"unknown kind":   "[simulation]\nname = \"x\"\n[[block]]\nfoo = \"DIAL\"\n",
		"short slider":   "[simulation]\nname = \"x\"\n[[block]]\nfoo = { SLIDER = [1] }\n",
		"bad size":       "[simulation]\nname = \"x\"\n[[block]]\n_size = [1]\n",
		"numeric leaf":   "[simulation]\nname = \"x\"\n[[block]]\nfoo = 3\n",
		"no simulation":  "[[block]]\nfoo = \"CHECKBOX\"\n",
		"slider strings": "[simulation]\nname = \"x\"\n[[block]]\nfoo = { SLIDER = [\"a\", \"b\"] }\n",
	}
	for name, doc := range docs {
		if _, err := ParseControls(doc); err == nil {
			t.Errorf("%s: ParseControls returned nil error", name)
		}
	}
}
