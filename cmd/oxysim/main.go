// Command oxysim runs one registered simulation in a window, headless with
// frame capture, or as the page or worker half of a browser build.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/Carmen-Shannon/oxy-sim/engine"
	"github.com/Carmen-Shannon/oxy-sim/engine/bridge"
	"github.com/Carmen-Shannon/oxy-sim/engine/config"
	"github.com/Carmen-Shannon/oxy-sim/engine/simulation"

	_ "github.com/Carmen-Shannon/oxy-sim/examples/particles"
	_ "github.com/Carmen-Shannon/oxy-sim/examples/triangle"
)

func init() {
	// GLFW and the surface it creates belong to the main thread.
	runtime.LockOSThread()
}

var (
	configPath  = flag.String("config", "", "Config file (.toml, .yaml or .yml)")
	envFile     = flag.String("env", ".env", "Dotenv file loaded before the config")
	entry       = flag.Int("entry", -1, "Simulation entry id (-1 = from config)")
	headless    = flag.Bool("headless", false, "Render offscreen; requires -capture")
	capturePath = flag.String("capture", "", "Write captured frames to this file")
	frames      = flag.Int("frames", 0, "Stop after N frames when headless (0 = unlimited)")
	fps         = flag.Float64("fps", 0, "Tick rate cap in frames per second (0 = config)")
	profile     = flag.Bool("profile", false, "Log frame statistics")
	list        = flag.Bool("list", false, "List registered simulations and exit")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	if *list {
		for _, e := range simulation.Entries() {
			fmt.Printf("%d\t%s\n", e.ID, e.Name)
		}
		return bridge.ExitOK
	}

	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return bridge.ExitFailure
	}
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return bridge.ExitFailure
		}
		cfg = loaded
	}
	applyFlags(cfg)

	e, err := engine.NewEngine(
		engine.WithConfig(*cfg),
		engine.WithProfiling(*profile),
		engine.WithRenderFrameLimit(*fps),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return bridge.ExitCode(err)
	}
	return e.Run()
}

// applyFlags overrides config values with the flags that were set.
func applyFlags(cfg *config.Config) {
	if *entry >= 0 {
		cfg.Simulation.Entry = uint32(*entry)
	}
	if *headless {
		cfg.Window.Headless = true
	}
	if *capturePath != "" {
		cfg.Capture.Enabled = true
		cfg.Capture.Output = *capturePath
	}
	if *frames > 0 {
		cfg.Capture.MaxFrames = *frames
	}
}
