// Package pose initialises the whole-body pose estimator used to crop faces before
// lip-sync inference. Only model construction lives here: the config is parsed, the
// checkpoint is loaded and its tensors are checked against the config.
package pose

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/harness/internal/serialization"
)

// MetadataDatasetMeta is the checkpoint metadata key holding the encoded dataset description.
const MetadataDatasetMeta = "dataset_meta"

// Supported devices.
var Devices = []string{"cpu", "webgpu"}

// ErrTensorMismatch is returned when a checkpoint does not match its config.
var ErrTensorMismatch = errors.New("checkpoint does not match model config")

// Config describes a pose model.
type Config struct {
	ModelType    string       `yaml:"model_type"`
	Name         string       `yaml:"name"`
	InputSize    [2]int       `yaml:"input_size"` // width, height
	NumKeypoints int          `yaml:"num_keypoints"`
	Tensors      []TensorSpec `yaml:"tensors"`
}

// TensorSpec is a tensor the checkpoint must provide.
type TensorSpec struct {
	Name  string `yaml:"name"`
	DType string `yaml:"dtype"`
	Shape []int  `yaml:"shape"`
}

// Model is an initialised pose model.
type Model struct {
	Config      Config
	Device      string
	Checkpoint  *serialization.Checkpoint
	DatasetMeta map[string]any // nil when the checkpoint has none
}

// LoadConfig reads and validates a model config.
func LoadConfig(path string) (*Config, error) {
	//nolint:gosec // G304: config path is chosen by the caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pose config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse pose config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pose config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the config for missing fields.
func (c *Config) Validate() error {
	if c.ModelType == "" {
		return errors.New("model_type is required")
	}
	if c.InputSize[0] <= 0 || c.InputSize[1] <= 0 {
		return fmt.Errorf("input_size must be positive, got %v", c.InputSize)
	}
	if c.NumKeypoints <= 0 {
		return fmt.Errorf("num_keypoints must be positive, got %d", c.NumKeypoints)
	}
	for i, t := range c.Tensors {
		if t.Name == "" {
			return fmt.Errorf("tensors[%d]: name is required", i)
		}
	}
	return nil
}

// InitModel builds a pose model from a config file and a checkpoint.
//
// The checkpoint is loaded with the runtime's default policy. Encoded dataset metadata
// is decoded under the same policy, but through the decoder's legacy WeightsOnly
// option, which current runtimes reject unless the compatibility shim is installed.
func InitModel(ctx context.Context, configPath, checkpointPath, device string) (*Model, error) {
	if !slices.Contains(Devices, device) {
		return nil, fmt.Errorf("unsupported device %q (valid: %v)", device, Devices)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	ckpt, err := serialization.Load(ctx, checkpointPath, serialization.LoadOptions{Device: device})
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if err := checkTensors(cfg, ckpt); err != nil {
		return nil, err
	}

	meta, err := decodeDatasetMeta(ckpt)
	if err != nil {
		return nil, err
	}

	m := &Model{Config: *cfg, Device: device, Checkpoint: ckpt, DatasetMeta: meta}
	zap.L().Debug("pose model initialised",
		zap.String("model", cfg.Name),
		zap.String("device", device),
		zap.Int("tensors", len(ckpt.Tensors)),
		zap.String("digest", ckpt.Digest),
	)
	return m, nil
}

func checkTensors(cfg *Config, ckpt *serialization.Checkpoint) error {
	for _, spec := range cfg.Tensors {
		t, err := ckpt.Tensor(spec.Name)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTensorMismatch, err)
		}
		if spec.DType != "" && t.DType != spec.DType {
			return fmt.Errorf("%w: tensor %s has dtype %s, want %s", ErrTensorMismatch, spec.Name, t.DType, spec.DType)
		}
		if spec.Shape != nil && !slices.Equal(t.Shape, spec.Shape) {
			return fmt.Errorf("%w: tensor %s has shape %v, want %v", ErrTensorMismatch, spec.Name, t.Shape, spec.Shape)
		}
	}
	return nil
}

func decodeDatasetMeta(ckpt *serialization.Checkpoint) (map[string]any, error) {
	raw, ok := ckpt.Header.Metadata[MetadataDatasetMeta]
	if !ok {
		return nil, nil
	}
	dec, err := serialization.NewObjectDecoder(strings.NewReader(raw), serialization.DecoderOptions{
		Permissive:  !ckpt.WeightsOnly,
		WeightsOnly: serialization.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", MetadataDatasetMeta, err)
	}
	meta, err := dec.DecodeObjects()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", MetadataDatasetMeta, err)
	}
	return meta, nil
}

// Describe returns a one-line summary of the model.
func (m *Model) Describe() string {
	name := m.Config.Name
	if name == "" {
		name = m.Config.ModelType
	}
	return fmt.Sprintf("%s (%d keypoints, input %dx%d, %d tensors, %s)",
		name, m.Config.NumKeypoints, m.Config.InputSize[0], m.Config.InputSize[1],
		len(m.Checkpoint.Tensors), m.Device)
}
