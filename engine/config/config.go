package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted after the config document is decoded.
const (
	EnvLogLevel      = "OXYSIM_LOG_LEVEL"
	EnvCaptureOutput = "OXYSIM_CAPTURE_OUTPUT"
)

// DefaultTitle is the window title used when neither the config nor the control schema names one.
const DefaultTitle = "oxy-sim"

// Capture output formats.
const (
	CaptureFormatY4M    = "y4m"
	CaptureFormatFFmpeg = "ffmpeg"
)

type Config struct {
	Window     WindowConfig     `toml:"window" yaml:"window"`
	Renderer   RendererConfig   `toml:"renderer" yaml:"renderer"`
	Capture    CaptureConfig    `toml:"capture" yaml:"capture"`
	Worker     WorkerConfig     `toml:"worker" yaml:"worker"`
	Logging    LoggingConfig    `toml:"logging" yaml:"logging"`
	Simulation SimulationConfig `toml:"simulation" yaml:"simulation"`
}

type WindowConfig struct {
	Title      string  `toml:"title" yaml:"title"`
	Width      int     `toml:"width" yaml:"width"`
	Height     int     `toml:"height" yaml:"height"`
	MinWidth   int     `toml:"min_width" yaml:"min_width"`
	MinHeight  int     `toml:"min_height" yaml:"min_height"`
	Headless   bool    `toml:"headless" yaml:"headless"`
	FrameLimit float64 `toml:"frame_limit" yaml:"frame_limit"` // ticks per second, 0 = paced by present
}

type RendererConfig struct {
	PresentMode   string     `toml:"present_mode" yaml:"present_mode"` // "vsync" or "uncapped"
	ForceFallback bool       `toml:"force_fallback" yaml:"force_fallback"`
	ClearColor    [4]float64 `toml:"clear_color" yaml:"clear_color"`
	Profiling     bool       `toml:"profiling" yaml:"profiling"`
}

type CaptureConfig struct {
	Enabled          bool   `toml:"enabled" yaml:"enabled"`
	Output           string `toml:"output" yaml:"output"`
	Format           string `toml:"format" yaml:"format"` // "y4m" or "ffmpeg"
	Compress         bool   `toml:"compress" yaml:"compress"`
	FPS              int    `toml:"fps" yaml:"fps"`
	Bitrate          string `toml:"bitrate" yaml:"bitrate"`
	FFmpegPath       string `toml:"ffmpeg_path" yaml:"ffmpeg_path"`
	InFlight         int    `toml:"in_flight" yaml:"in_flight"`
	Workers          int    `toml:"workers" yaml:"workers"`
	FailureThreshold int    `toml:"failure_threshold" yaml:"failure_threshold"`
	MaxFrames        int    `toml:"max_frames" yaml:"max_frames"` // 0 = unlimited
	ScaleWidth       int    `toml:"scale_width" yaml:"scale_width"`
	ScaleHeight      int    `toml:"scale_height" yaml:"scale_height"`
}

type WorkerConfig struct {
	Script   string `toml:"script" yaml:"script"`
	CanvasID string `toml:"canvas_id" yaml:"canvas_id"`
}

type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"` // "json" or "console"
}

type SimulationConfig struct {
	Entry    uint32 `toml:"entry" yaml:"entry"`
	Controls string `toml:"controls" yaml:"controls"` // path to a control schema document
}

// Load reads the config document at path, decoding it as YAML when the extension is
// .yaml or .yml and as TOML otherwise. Defaults are applied before decoding and
// environment overrides after.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides applied.
func Default() *Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

// LoadEnv loads KEY=value pairs from the given dotenv files into the process
// environment without overriding variables that are already set. Missing files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env %s: %w", f, err)
		}
	}
	return nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}
	switch c.Renderer.PresentMode {
	case "vsync", "uncapped":
	default:
		return fmt.Errorf("unknown present_mode %q", c.Renderer.PresentMode)
	}
	if c.Capture.Enabled {
		switch c.Capture.Format {
		case CaptureFormatY4M, CaptureFormatFFmpeg:
		default:
			return fmt.Errorf("unknown capture format %q", c.Capture.Format)
		}
		if c.Capture.Output == "" {
			return errors.New("capture enabled without output path")
		}
		if c.Capture.FPS <= 0 {
			return fmt.Errorf("capture fps %d must be positive", c.Capture.FPS)
		}
		if c.Capture.InFlight <= 0 {
			return fmt.Errorf("capture in_flight %d must be positive", c.Capture.InFlight)
		}
	}
	if c.Window.Headless && !c.Capture.Enabled {
		return errors.New("headless rendering requires capture to be enabled")
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvCaptureOutput); v != "" {
		c.Capture.Output = v
	}
}

func defaults() *Config {
	return &Config{
		Window: WindowConfig{
			Title:     DefaultTitle,
			Width:     1280,
			Height:    720,
			MinWidth:  320,
			MinHeight: 200,
		},
		Renderer: RendererConfig{
			PresentMode: "vsync",
			ClearColor:  [4]float64{0.1, 0.1, 0.1, 1.0},
		},
		Capture: CaptureConfig{
			Output:           "capture.y4m",
			Format:           CaptureFormatY4M,
			FPS:              60,
			Bitrate:          "8M",
			FFmpegPath:       "ffmpeg",
			InFlight:         4,
			Workers:          4,
			FailureThreshold: 8,
		},
		Worker: WorkerConfig{
			Script:   "worker.js",
			CanvasID: "oxysim",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
