// Package inference is the lip-sync inference entry point wrapped by `born-harness infer`.
//
// It parses its own flags, initialises the pose model and the UNet checkpoint, checks
// each task's inputs and hands the resulting jobs to a Runner. A failing task does not
// stop the others; all task errors are returned together.
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/born-ml/harness/internal/pose"
	"github.com/born-ml/harness/internal/serialization"
)

// Job is a task with its inputs resolved.
type Job struct {
	Task       Task
	BBoxShift  int
	VideoSize  int64
	AudioSize  int64
	OutputPath string // Where the rendered video goes
	Args       *Args
	Pose       *pose.Model
	UNet       *serialization.Checkpoint
}

// Runner executes one job.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job Job) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// Main parses argv over defaults and runs all tasks with the ManifestRunner.
func Main(ctx context.Context, argv []string, defaults Args) error {
	args, err := ParseArgsWithDefaults(argv, defaults)
	if err != nil {
		return err
	}
	return Run(ctx, args, ManifestRunner{})
}

// Run loads the models once and runs every task of args.InferenceConfig.
func Run(ctx context.Context, args *Args, runner Runner) error {
	tasks, err := LoadTasks(args.InferenceConfig)
	if err != nil {
		return err
	}

	poseModel, err := pose.InitModel(ctx, args.PoseConfig, args.PoseCheckpoint, args.Device)
	if err != nil {
		return fmt.Errorf("failed to initialise pose model: %w", err)
	}

	unet, err := serialization.Load(ctx, args.UNetModelPath, serialization.LoadOptions{Device: args.Device})
	if err != nil {
		return fmt.Errorf("failed to load unet: %w", err)
	}

	logger := zap.L().With(zap.String("version", args.Version), zap.String("device", args.Device))
	logger.Info("models loaded",
		zap.String("pose", poseModel.Describe()),
		zap.Int("unet_tensors", len(unet.Tensors)),
	)

	var errs error
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		job, err := newJob(task, args, poseModel, unet)
		if err == nil {
			err = runner.Run(ctx, job)
		}
		if err != nil {
			logger.Error("task failed", zap.String("task", task.Name), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("task %s: %w", task.Name, err))
			continue
		}
		logger.Info("task done", zap.String("task", task.Name), zap.String("output", job.OutputPath))
	}
	return errs
}

func newJob(task Task, args *Args, poseModel *pose.Model, unet *serialization.Checkpoint) (Job, error) {
	video, err := os.Stat(task.VideoPath)
	if err != nil {
		return Job{}, fmt.Errorf("video: %w", err)
	}
	audio, err := os.Stat(task.AudioPath)
	if err != nil {
		return Job{}, fmt.Errorf("audio: %w", err)
	}

	shift := args.BBoxShift
	if task.BBoxShift != nil {
		shift = *task.BBoxShift
	}
	name := task.ResultName
	if name == "" {
		name = stem(task.VideoPath) + "_" + stem(task.AudioPath)
	}

	return Job{
		Task:       task,
		BBoxShift:  shift,
		VideoSize:  video.Size(),
		AudioSize:  audio.Size(),
		OutputPath: filepath.Join(args.ResultDir, args.Version, name+".mp4"),
		Args:       args,
		Pose:       poseModel,
		UNet:       unet,
	}, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Manifest describes a prepared job.
type Manifest struct {
	Task       string    `json:"task"`
	Video      string    `json:"video"`
	VideoSize  string    `json:"video_size"`
	Audio      string    `json:"audio"`
	AudioSize  string    `json:"audio_size"`
	Output     string    `json:"output"`
	BBoxShift  int       `json:"bbox_shift"`
	FPS        int       `json:"fps"`
	BatchSize  int       `json:"batch_size"`
	Float16    bool      `json:"use_float16"`
	Version    string    `json:"version"`
	Device     string    `json:"device"`
	PoseModel  string    `json:"pose_model"`
	UNet       string    `json:"unet"`
	UNetDigest string    `json:"unet_digest"`
	CreatedAt  time.Time `json:"created_at"`
}

// ManifestRunner writes a JSON manifest next to each job's output path.
type ManifestRunner struct {
	Now func() time.Time // nil uses time.Now
}

// ManifestPath returns where the manifest of job is written.
func ManifestPath(job Job) string {
	return strings.TrimSuffix(job.OutputPath, filepath.Ext(job.OutputPath)) + ".json"
}

// Run implements Runner.
func (r ManifestRunner) Run(_ context.Context, job Job) error {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	m := Manifest{
		Task:       job.Task.Name,
		Video:      job.Task.VideoPath,
		VideoSize:  humanize.Bytes(uint64(job.VideoSize)), //nolint:gosec // G115: file sizes are non-negative
		Audio:      job.Task.AudioPath,
		AudioSize:  humanize.Bytes(uint64(job.AudioSize)), //nolint:gosec // G115: file sizes are non-negative
		Output:     job.OutputPath,
		BBoxShift:  job.BBoxShift,
		FPS:        job.Args.FPS,
		BatchSize:  job.Args.BatchSize,
		Float16:    job.Args.UseFloat16,
		Version:    job.Args.Version,
		Device:     job.Args.Device,
		PoseModel:  job.Pose.Describe(),
		UNet:       job.UNet.Path,
		UNetDigest: job.UNet.Digest,
		CreatedAt:  now().UTC(),
	}

	path := ManifestPath(job)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create result directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil { //nolint:gosec // G306: results are shared
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
