package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/born-ml/harness/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestInfer_RootFlagsAnyPosition(t *testing.T) {
	for _, tc := range []struct {
		name        string
		args        []string
		wantVerbose bool
		wantConfig  bool
	}{
		{"verbose before", []string{"-v", "infer", "--inference_config", "nope.yaml"}, true, false},
		{"verbose after", []string{"infer", "-v", "--inference_config", "nope.yaml"}, true, false},
		{"long verbose after", []string{"infer", "--inference_config", "nope.yaml", "--verbose"}, true, false},
		{"config before", []string{"--config", "harness.yaml", "infer", "--inference_config", "nope.yaml"}, false, true},
		{"config after", []string{"infer", "--config=harness.yaml", "--inference_config", "nope.yaml"}, false, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			isolate(t)
			writeFile(t, "harness.yaml", "logging:\n  level: warn\n")

			_, err := executeHere(t, tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "nope.yaml")
			assert.NotContains(t, err.Error(), "unknown")
			assert.Equal(t, tc.wantVerbose, verbose)
			if tc.wantConfig {
				assert.Equal(t, "harness.yaml", configPath)
				require.NotNil(t, cfg)
				assert.Equal(t, "warn", cfg.Logging.Level)
			}
		})
	}
}

func TestInfer_ConfigMissingAfterSubcommand(t *testing.T) {
	isolate(t)
	_, err := executeHere(t, "infer", "--config", "absent.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.yaml")
}

func TestInfer_PoseDefaultsFromConfig(t *testing.T) {
	dir := isolate(t)
	writeFile(t, "harness.yaml", `
probe:
  pose_config: configured/pose.yaml
  pose_checkpoint: configured/pose.born
`)
	writeFile(t, "tasks.yaml", "task_0:\n  video_path: v.mp4\n  audio_path: a.wav\n")

	_, err := executeHere(t, "--config", filepath.Join(dir, "harness.yaml"), "infer", "--inference_config", "tasks.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configured/pose.yaml")

	t.Setenv("BORN_HARNESS_POSE_CONFIG", "from-env/pose.yaml")
	_, err = executeHere(t, "infer", "--inference_config", "tasks.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from-env/pose.yaml")
}

func TestExtractFlags(t *testing.T) {
	root := newRootCmd()
	fs := root.PersistentFlags()
	t.Cleanup(func() { verbose, configPath = false, "" })

	rest, found, err := extractFlags(fs, []string{"--fps", "30", "-v", "--config", "x.yaml", "--device=cpu", "--", "-v"})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"--fps", "30", "--device=cpu", "--", "-v"}, rest)
	assert.True(t, verbose)
	assert.Equal(t, "x.yaml", configPath)

	rest, found, err = extractFlags(fs, []string{"--fps", "30"})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []string{"--fps", "30"}, rest)

	_, _, err = extractFlags(fs, []string{"--config"})
	assert.Error(t, err)
	_, _, err = extractFlags(fs, []string{"--verbose=maybe"})
	assert.Error(t, err)
}

type countingSyncer struct {
	bytes.Buffer
	syncs int
}

func (s *countingSyncer) Sync() error {
	s.syncs++
	return nil
}

func TestRun_SyncsLoggerOnFailure(t *testing.T) {
	isolate(t)
	sink := &countingSyncer{}
	prev := buildLogger
	buildLogger = func(config.LoggingConfig, bool) (*zap.Logger, error) {
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		return zap.New(zapcore.NewCore(enc, sink, zapcore.DebugLevel)), nil
	}
	t.Cleanup(func() { buildLogger = prev })

	var stderr bytes.Buffer
	code := run([]string{"doctor", "--json"}, &stderr)
	assert.Equal(t, 1, code)
	assert.GreaterOrEqual(t, sink.syncs, 1)
	assert.Empty(t, stderr.String())

	code = run([]string{"--config", "absent.yaml", "version"}, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Error:")
}
