package inference

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/born-ml/harness/internal/config"
)

// Args are the command-line options of the inference entry point.
type Args struct {
	InferenceConfig string
	ResultDir       string
	UNetModelPath   string
	PoseConfig      string
	PoseCheckpoint  string
	Device          string
	Version         string
	FPS             int
	BatchSize       int
	BBoxShift       int
	UseFloat16      bool
}

// Supported model versions.
var Versions = []string{"v1", "v15"}

// DefaultArgs returns the built-in option defaults.
func DefaultArgs() Args {
	return Args{
		InferenceConfig: "configs/inference/test.yaml",
		ResultDir:       "./results",
		UNetModelPath:   "./models/musetalkV15/unet.born",
		PoseConfig:      config.DefaultPoseConfig,
		PoseCheckpoint:  config.DefaultPoseCheckpoint,
		Device:          "cpu",
		Version:         "v15",
		FPS:             25,
		BatchSize:       8,
	}
}

// NewFlagSet binds the inference flags to args. The values args holds on entry become
// the flag defaults.
func NewFlagSet(args *Args) *pflag.FlagSet {
	d := *args
	fs := pflag.NewFlagSet("infer", pflag.ContinueOnError)
	fs.StringVar(&args.InferenceConfig, "inference_config", d.InferenceConfig, "YAML file listing the inference tasks")
	fs.StringVar(&args.ResultDir, "result_dir", d.ResultDir, "Directory for results")
	fs.StringVar(&args.UNetModelPath, "unet_model_path", d.UNetModelPath, "UNet checkpoint")
	fs.StringVar(&args.PoseConfig, "pose_config", d.PoseConfig, "Pose model config")
	fs.StringVar(&args.PoseCheckpoint, "pose_checkpoint", d.PoseCheckpoint, "Pose model checkpoint")
	fs.StringVar(&args.Device, "device", d.Device, "Device to run on (cpu, webgpu)")
	fs.StringVar(&args.Version, "version", d.Version, "Model version (v1, v15)")
	fs.IntVar(&args.FPS, "fps", d.FPS, "Video frames per second")
	fs.IntVar(&args.BatchSize, "batch_size", d.BatchSize, "Inference batch size")
	fs.IntVar(&args.BBoxShift, "bbox_shift", d.BBoxShift, "Default face box shift in pixels")
	fs.BoolVar(&args.UseFloat16, "use_float16", d.UseFloat16, "Run the UNet in float16")
	return fs
}

// ParseArgs parses argv (without the program name) over DefaultArgs.
func ParseArgs(argv []string) (*Args, error) {
	return ParseArgsWithDefaults(argv, DefaultArgs())
}

// ParseArgsWithDefaults parses argv with flags that are not given taking their value
// from defaults.
func ParseArgsWithDefaults(argv []string, defaults Args) (*Args, error) {
	args := defaults
	fs := NewFlagSet(&args)
	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}
	return &args, nil
}

// Validate checks option values.
func (a *Args) Validate() error {
	valid := false
	for _, v := range Versions {
		if a.Version == v {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid version: %s (valid: %v)", a.Version, Versions)
	}
	if a.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", a.FPS)
	}
	if a.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", a.BatchSize)
	}
	return nil
}
