// Package config loads born-harness settings from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/harness/internal/native"
)

// DefaultPath is read when no config file is given. It may be absent.
const DefaultPath = "born-harness.yaml"

// Default locations of the probe model and the inference inputs.
const (
	DefaultPoseConfig     = "./models/dwpose/rtmpose-l_8xb32-270e_coco-ubody-wholebody-384x288.yaml"
	DefaultPoseCheckpoint = "./models/dwpose/dw-ll_ucoco_384.born"
	DefaultVideo          = "data/video/sun.mp4"
	DefaultAudio          = "data/audio/input_audio.wav"
)

// Config holds all born-harness configuration.
type Config struct {
	// Representative model loaded by the diagnostic load probe
	Probe ProbeConfig `yaml:"probe"`

	// Native libraries checked before inference
	Native NativeConfig `yaml:"native"`

	// Accelerator probe
	WebGPU WebGPUConfig `yaml:"webgpu"`

	// Input files that must exist before inference
	Assets []Asset `yaml:"assets"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ProbeConfig names the model used by the load probe.
type ProbeConfig struct {
	PoseConfig     string `yaml:"pose_config"`
	PoseCheckpoint string `yaml:"pose_checkpoint"`
	Device         string `yaml:"device"`
}

// NativeConfig configures the native library checks.
type NativeConfig struct {
	SearchPaths []string      `yaml:"search_paths"`
	Extension   LibraryConfig `yaml:"extension"`
	Dependency  LibraryConfig `yaml:"dependency"`
}

// LibraryConfig describes one shared library.
type LibraryConfig struct {
	Label         string `yaml:"label"`
	Library       string `yaml:"library"`        // Name or path, see native.Find
	Symbol        string `yaml:"symbol"`         // Export that must be present
	VersionSymbol string `yaml:"version_symbol"` // Optional `const char *fn(void)` export
}

// WebGPUConfig configures the accelerator probe.
type WebGPUConfig struct {
	LibraryPath string `yaml:"library_path"` // File or directory list, like WGPU_NATIVE_PATH
}

// Asset is an input file checked by the diagnostics.
type Asset struct {
	Label string `yaml:"label"`
	Path  string `yaml:"path"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Probe: ProbeConfig{
			PoseConfig:     DefaultPoseConfig,
			PoseCheckpoint: DefaultPoseCheckpoint,
			Device:         "cpu",
		},

		Native: NativeConfig{
			SearchPaths: []string{"./lib"},
			Extension: LibraryConfig{
				Label:         "born-ops",
				Library:       "born_ops",
				Symbol:        "born_ms_deform_attn_forward",
				VersionSymbol: "born_ops_version",
			},
			Dependency: LibraryConfig{
				Label:         "born-pose",
				Library:       "born_pose",
				VersionSymbol: "born_pose_version",
			},
		},

		Assets: []Asset{
			{Label: "Video", Path: DefaultVideo},
			{Label: "Audio", Path: DefaultAudio},
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration. An empty path reads DefaultPath when it exists; an explicit
// path must exist. A .env file in the working directory is loaded first, and
// environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	//nolint:gosec // G304: config path is chosen by the operator
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// Defaults only.
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // G306: config is not secret
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BORN_HARNESS_POSE_CONFIG"); v != "" {
		c.Probe.PoseConfig = v
	}
	if v := os.Getenv("BORN_HARNESS_POSE_CHECKPOINT"); v != "" {
		c.Probe.PoseCheckpoint = v
	}
	if v := os.Getenv("BORN_HARNESS_DEVICE"); v != "" {
		c.Probe.Device = v
	}
	if v := os.Getenv("BORN_HARNESS_LIB_PATH"); v != "" {
		c.Native.SearchPaths = native.SplitPathList(v)
	}
	if v := os.Getenv("BORN_HARNESS_VIDEO"); v != "" {
		c.setAsset("Video", v)
	}
	if v := os.Getenv("BORN_HARNESS_AUDIO"); v != "" {
		c.setAsset("Audio", v)
	}
	if v := os.Getenv("BORN_HARNESS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	// WebGPU
	if v := os.Getenv("WGPU_NATIVE_PATH"); v != "" {
		c.WebGPU.LibraryPath = v
	}
}

func (c *Config) setAsset(label, path string) {
	for i := range c.Assets {
		if c.Assets[i].Label == label {
			c.Assets[i].Path = path
			return
		}
	}
	c.Assets = append(c.Assets, Asset{Label: label, Path: path})
}

// WebGPUDirs returns the configured accelerator library locations.
func (c *Config) WebGPUDirs() []string {
	return native.SplitPathList(c.WebGPU.LibraryPath)
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Probe.PoseConfig == "" || c.Probe.PoseCheckpoint == "" {
		return fmt.Errorf("probe.pose_config and probe.pose_checkpoint must be set")
	}
	if c.Native.Extension.Library == "" || c.Native.Extension.Symbol == "" {
		return fmt.Errorf("native.extension needs a library and a symbol")
	}
	if c.Native.Dependency.Library == "" {
		return fmt.Errorf("native.dependency needs a library")
	}

	seen := make(map[string]bool, len(c.Assets))
	for i, a := range c.Assets {
		if a.Label == "" || a.Path == "" {
			return fmt.Errorf("assets[%d]: label and path must be set", i)
		}
		if seen[a.Label] {
			return fmt.Errorf("assets[%d]: duplicate label %q", i, a.Label)
		}
		seen[a.Label] = true
	}

	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			return nil
		}
	}
	return fmt.Errorf("invalid logging level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
}
