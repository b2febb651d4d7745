package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/born-ml/harness/internal/pose"
	"github.com/born-ml/harness/internal/serialization"
	"github.com/born-ml/harness/internal/shim"
	"github.com/born-ml/harness/internal/warnings"
)

const poseConfig = `
model_type: rtmpose
name: rtmpose-l
input_size: [288, 384]
num_keypoints: 133
`

type workspace struct {
	dir  string
	args *Args
}

func write(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func newWorkspace(t *testing.T, tasks string, objects []byte) *workspace {
	t.Helper()
	t.Cleanup(warnings.SetHandler(func(warnings.Warning) {}))
	dir := t.TempDir()

	args, err := ParseArgs([]string{
		"--inference_config", filepath.Join(dir, "tasks.yaml"),
		"--result_dir", filepath.Join(dir, "results"),
		"--unet_model_path", filepath.Join(dir, "unet.born"),
		"--pose_config", filepath.Join(dir, "pose.yaml"),
		"--pose_checkpoint", filepath.Join(dir, "pose.born"),
		"--bbox_shift", "5",
	})
	require.NoError(t, err)

	write(t, args.InferenceConfig, []byte(tasks))
	write(t, args.PoseConfig, []byte(poseConfig))
	tensor := []*serialization.Tensor{serialization.Float32Tensor("w", []int{1}, []float32{1})}
	require.NoError(t, serialization.WriteFile(args.PoseCheckpoint, tensor, serialization.Header{Objects: objects}))
	require.NoError(t, serialization.WriteFile(args.UNetModelPath, tensor, serialization.Header{Objects: objects}))

	write(t, filepath.Join(dir, "data/video/sun.mp4"), make([]byte, 1500))
	write(t, filepath.Join(dir, "data/audio/input_audio.wav"), make([]byte, 300))
	t.Chdir(dir)
	return &workspace{dir: dir, args: args}
}

const twoTasks = `
task_0:
  video_path: data/video/sun.mp4
  audio_path: data/audio/input_audio.wav
task_1:
  video_path: data/video/sun.mp4
  audio_path: data/audio/missing.wav
  bbox_shift: -7
`

func TestParseArgs_Defaults(t *testing.T) {
	args, err := ParseArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, "v15", args.Version)
	assert.Equal(t, 25, args.FPS)
	assert.Equal(t, "cpu", args.Device)
	assert.False(t, args.UseFloat16)
}

func TestParseArgsWithDefaults(t *testing.T) {
	defaults := DefaultArgs()
	defaults.PoseConfig = "configured/pose.yaml"
	defaults.PoseCheckpoint = "configured/pose.born"

	args, err := ParseArgsWithDefaults(nil, defaults)
	require.NoError(t, err)
	assert.Equal(t, "configured/pose.yaml", args.PoseConfig)
	assert.Equal(t, "configured/pose.born", args.PoseCheckpoint)
	assert.Equal(t, "v15", args.Version)

	args, err = ParseArgsWithDefaults([]string{"--pose_checkpoint", "cli.born"}, defaults)
	require.NoError(t, err)
	assert.Equal(t, "configured/pose.yaml", args.PoseConfig)
	assert.Equal(t, "cli.born", args.PoseCheckpoint)
	assert.Equal(t, "configured/pose.born", defaults.PoseCheckpoint)
}

func TestParseArgs_Errors(t *testing.T) {
	for _, argv := range [][]string{
		{"--version", "v3"},
		{"--fps", "0"},
		{"--batch_size", "-1"},
		{"--no_such_flag"},
		{"stray"},
	} {
		_, err := ParseArgs(argv)
		assert.Error(t, err, "%v", argv)
	}

	args, err := ParseArgs([]string{"--use_float16", "--version=v1", "--batch_size", "4"})
	require.NoError(t, err)
	assert.True(t, args.UseFloat16)
	assert.Equal(t, "v1", args.Version)
	assert.Equal(t, 4, args.BatchSize)
}

func TestLoadTasks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.yaml")
	write(t, path, []byte(twoTasks))

	tasks, err := LoadTasks(path)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "task_0", tasks[0].Name)
	assert.Nil(t, tasks[0].BBoxShift)
	require.NotNil(t, tasks[1].BBoxShift)
	assert.Equal(t, -7, *tasks[1].BBoxShift)

	write(t, path, []byte("task_0:\n  video_path: a.mp4\n"))
	_, err = LoadTasks(path)
	assert.Error(t, err)

	write(t, path, []byte("{}\n"))
	_, err = LoadTasks(path)
	assert.Error(t, err)

	_, err = LoadTasks(filepath.Join(dir, "absent.yaml"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRun_TaskFailuresAreCollected(t *testing.T) {
	ws := newWorkspace(t, twoTasks, nil)

	var jobs []Job
	runner := RunnerFunc(func(_ context.Context, job Job) error {
		jobs = append(jobs, job)
		return nil
	})

	err := Run(context.Background(), ws.args, runner)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Contains(t, err.Error(), "task task_1: audio:")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.Len(t, jobs, 1)
	assert.Equal(t, 5, jobs[0].BBoxShift)
	assert.Equal(t, int64(1500), jobs[0].VideoSize)
	assert.Equal(t, filepath.Join(ws.args.ResultDir, "v15", "sun_input_audio.mp4"), jobs[0].OutputPath)
}

func TestRun_RunnerErrorsDoNotStopOtherTasks(t *testing.T) {
	tasks := `
a:
  video_path: data/video/sun.mp4
  audio_path: data/audio/input_audio.wav
b:
  video_path: data/video/sun.mp4
  audio_path: data/audio/input_audio.wav
  result_name: second
`
	ws := newWorkspace(t, tasks, nil)
	boom := errors.New("render failed")

	var ran []string
	err := Run(context.Background(), ws.args, RunnerFunc(func(_ context.Context, job Job) error {
		ran = append(ran, job.Task.Name)
		if job.Task.Name == "a" {
			return boom
		}
		return nil
	}))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, ran)
}

func TestRun_ModelErrors(t *testing.T) {
	ws := newWorkspace(t, twoTasks, nil)
	require.NoError(t, os.Remove(ws.args.UNetModelPath))
	err := Run(context.Background(), ws.args, RunnerFunc(func(context.Context, Job) error { return nil }))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load unet")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRun_LegacyCheckpointsNeedShim(t *testing.T) {
	objects, err := serialization.EncodeObjects(map[string]any{
		"message_hub": &serialization.Object{Type: "mmengine.MessageHub", State: map[string]any{}},
	})
	require.NoError(t, err)
	ws := newWorkspace(t, twoTasks, objects)
	noop := RunnerFunc(func(context.Context, Job) error { return nil })

	err = Run(context.Background(), ws.args, noop)
	assert.ErrorIs(t, err, serialization.ErrWeightsOnly)

	load, decoder := serialization.LoadHook(), serialization.DecoderHook()
	t.Cleanup(func() {
		serialization.SetLoadHook(load)
		serialization.SetDecoderHook(decoder)
	})
	shim.Install()

	err = Run(context.Background(), ws.args, noop)
	require.Error(t, err, "task_1 still lacks its audio")
	assert.NotErrorIs(t, err, serialization.ErrWeightsOnly)
	assert.Len(t, multierr.Errors(err), 1)
}

func TestMain_WritesManifests(t *testing.T) {
	tasks := `
task_0:
  video_path: data/video/sun.mp4
  audio_path: data/audio/input_audio.wav
`
	ws := newWorkspace(t, tasks, nil)
	argv := []string{
		"--inference_config", ws.args.InferenceConfig,
		"--result_dir", ws.args.ResultDir,
		"--unet_model_path", ws.args.UNetModelPath,
		"--pose_config", ws.args.PoseConfig,
		"--pose_checkpoint", ws.args.PoseCheckpoint,
		"--fps", "30",
	}
	require.NoError(t, Main(context.Background(), argv, DefaultArgs()))

	data, err := os.ReadFile(filepath.Join(ws.args.ResultDir, "v15", "sun_input_audio.json"))
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "task_0", m.Task)
	assert.Equal(t, "1.5 kB", m.VideoSize)
	assert.Equal(t, "300 B", m.AudioSize)
	assert.Equal(t, 30, m.FPS)
	assert.Len(t, m.UNetDigest, 64)
	assert.Contains(t, m.PoseModel, "rtmpose-l")
}

func TestManifestRunner_Clock(t *testing.T) {
	ws := newWorkspace(t, twoTasks, nil)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	poseModel, err := pose.InitModel(context.Background(), ws.args.PoseConfig, ws.args.PoseCheckpoint, "cpu")
	require.NoError(t, err)
	unet, err := serialization.Load(context.Background(), ws.args.UNetModelPath, serialization.LoadOptions{})
	require.NoError(t, err)

	job := Job{
		Task:       Task{Name: "t", VideoPath: "v.mp4", AudioPath: "a.wav"},
		OutputPath: filepath.Join(ws.dir, "out", "v_a.mp4"),
		Args:       ws.args,
		Pose:       poseModel,
		UNet:       unet,
	}
	path := ManifestPath(job)
	assert.Equal(t, filepath.Join(ws.dir, "out", "v_a.json"), path)
	require.NoError(t, ManifestRunner{Now: func() time.Time { return fixed }}.Run(context.Background(), job))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, fixed, m.CreatedAt)
	assert.Equal(t, ws.args.UNetModelPath, m.UNet)
}
