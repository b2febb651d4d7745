package shim

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/harness/internal/serialization"
	"github.com/born-ml/harness/internal/warnings"
)

// uninstall undoes Install at the end of a test.
func uninstall(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		if shimLoad != nil {
			serialization.SetLoadHook(origLoad)
			serialization.SetDecoderHook(origDecoder)
			shimLoad, shimDecoder = nil, nil
		}
	})
}

func captureWarnings(t *testing.T) *[]warnings.Warning {
	t.Helper()
	var got []warnings.Warning
	t.Cleanup(warnings.SetHandler(func(w warnings.Warning) { got = append(got, w) }))
	return &got
}

// writeLegacyCheckpoint writes a checkpoint whose object section holds a type that
// weights-only decoding refuses.
func writeLegacyCheckpoint(t *testing.T) string {
	t.Helper()
	objects, err := serialization.EncodeObjects(map[string]any{
		"meta":        map[string]any{"epoch": 270},
		"message_hub": &serialization.Object{Type: "mmengine.MessageHub", State: map[string]any{"iter": 1}},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "legacy.born")
	tensors := []*serialization.Tensor{serialization.Float32Tensor("w", []int{2}, []float32{1, 2})}
	require.NoError(t, serialization.WriteFile(path, tensors, serialization.Header{Objects: objects}))
	return path
}

var registryIdentity = cmp.Comparer(func(a, b *serialization.Registry) bool { return a == b })

func TestStripWeightsOnly_PassesOtherOptions(t *testing.T) {
	reg := serialization.NewRegistry()
	src := strings.NewReader("{}")

	for _, weightsOnly := range []*bool{nil, serialization.Bool(true), serialization.Bool(false)} {
		var gotReader io.Reader
		var gotOpts serialization.DecoderOptions
		fake := func(r io.Reader, opts serialization.DecoderOptions) (*serialization.ObjectDecoder, error) {
			gotReader, gotOpts = r, opts
			return nil, nil
		}

		in := serialization.DecoderOptions{Registry: reg, Permissive: true, MaxDepth: 7, WeightsOnly: weightsOnly}
		_, err := StripWeightsOnly(fake)(src, in)
		require.NoError(t, err)

		want := in
		want.WeightsOnly = nil
		assert.Same(t, src, gotReader)
		if diff := cmp.Diff(want, gotOpts, registryIdentity); diff != "" {
			t.Errorf("options mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestDefaultPermissive_Policy(t *testing.T) {
	tests := []struct {
		name string
		in   *bool
		want bool
	}{
		{"unset becomes permissive", nil, false},
		{"explicit strict kept", serialization.Bool(true), true},
		{"explicit permissive kept", serialization.Bool(false), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got serialization.LoadOptions
			var gotPath string
			fake := func(_ context.Context, path string, opts serialization.LoadOptions) (*serialization.Checkpoint, error) {
				gotPath, got = path, opts
				return nil, nil
			}

			in := serialization.LoadOptions{Device: "cpu", WeightsOnly: tt.in, SkipChecksum: true, Mmap: true}
			_, err := DefaultPermissive(fake)(context.Background(), "m.born", in)
			require.NoError(t, err)

			require.NotNil(t, got.WeightsOnly)
			assert.Equal(t, tt.want, *got.WeightsOnly)
			assert.Equal(t, "m.born", gotPath)

			got.WeightsOnly, in.WeightsOnly = nil, nil
			if diff := cmp.Diff(in, got, registryIdentity); diff != "" {
				t.Errorf("options mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDefaultPermissive_WarningScope(t *testing.T) {
	got := captureWarnings(t)
	fake := func(ctx context.Context, _ string, _ serialization.LoadOptions) (*serialization.Checkpoint, error) {
		warnings.Emit(ctx, warnings.PermissiveLoad, "test", "permissive")
		warnings.Emit(ctx, warnings.Deprecation, "test", "old format")
		return nil, nil
	}

	_, err := DefaultPermissive(fake)(context.Background(), "m.born", serialization.LoadOptions{})
	require.NoError(t, err)
	require.Len(t, *got, 1)
	assert.Equal(t, warnings.Deprecation, (*got)[0].Category)

	// Suppression ends with the call.
	warnings.Emit(context.Background(), warnings.PermissiveLoad, "test", "after")
	assert.Len(t, *got, 2)
}

func TestWrappers_ReturnErrorsUnchanged(t *testing.T) {
	sentinel := errors.New("boom")

	load := DefaultPermissive(func(context.Context, string, serialization.LoadOptions) (*serialization.Checkpoint, error) {
		return nil, sentinel
	})
	_, err := load(context.Background(), "x", serialization.LoadOptions{})
	assert.Same(t, sentinel, err)

	dec := StripWeightsOnly(func(io.Reader, serialization.DecoderOptions) (*serialization.ObjectDecoder, error) {
		return nil, sentinel
	})
	_, err = dec(strings.NewReader(""), serialization.DecoderOptions{})
	assert.Same(t, sentinel, err)
}

func TestInstall_Idempotent(t *testing.T) {
	uninstall(t)
	before := serialization.LoadHook()
	beforeDecoder := serialization.DecoderHook()

	Install()
	require.True(t, Installed())
	first := serialization.LoadHook()
	firstDecoder := serialization.DecoderHook()
	assert.NotSame(t, before, first)
	assert.NotSame(t, beforeDecoder, firstDecoder)

	Install()
	assert.Same(t, first, serialization.LoadHook())
	assert.Same(t, firstDecoder, serialization.DecoderHook())
	assert.Same(t, before, origLoad)
	assert.Same(t, beforeDecoder, origDecoder)
}

func TestInstall_LegacyCheckpointLoads(t *testing.T) {
	uninstall(t)
	got := captureWarnings(t)
	path := writeLegacyCheckpoint(t)

	_, err := serialization.Load(context.Background(), path, serialization.LoadOptions{})
	require.ErrorIs(t, err, serialization.ErrWeightsOnly)

	Install()
	ckpt, err := serialization.Load(context.Background(), path, serialization.LoadOptions{})
	require.NoError(t, err)
	assert.False(t, ckpt.WeightsOnly)
	assert.IsType(t, &serialization.Object{}, ckpt.Objects["message_hub"])
	assert.Empty(t, *got, "permissive-load warning should be suppressed")
}

func TestInstall_ExplicitStrictStillFails(t *testing.T) {
	uninstall(t)
	captureWarnings(t)
	path := writeLegacyCheckpoint(t)

	Install()
	_, err := serialization.Load(context.Background(), path, serialization.LoadOptions{WeightsOnly: serialization.Bool(true)})
	assert.ErrorIs(t, err, serialization.ErrWeightsOnly)
}

func TestInstall_DecoderAcceptsLegacyOption(t *testing.T) {
	uninstall(t)
	src := `{"d": {"$type": "born.OrderedDict", "$state": [["k", 1]]}}`

	_, err := serialization.NewObjectDecoder(strings.NewReader(src), serialization.DecoderOptions{WeightsOnly: serialization.Bool(false)})
	require.ErrorIs(t, err, serialization.ErrPolicyMisuse)

	Install()
	dec, err := serialization.NewObjectDecoder(strings.NewReader(src), serialization.DecoderOptions{WeightsOnly: serialization.Bool(false)})
	require.NoError(t, err)
	objs, err := dec.DecodeObjects()
	require.NoError(t, err)
	assert.IsType(t, &serialization.OrderedDict{}, objs["d"])
}

func TestInstall_MissingFileErrorUnchanged(t *testing.T) {
	uninstall(t)
	Install()
	_, err := serialization.Load(context.Background(), filepath.Join(t.TempDir(), "none.born"), serialization.LoadOptions{})
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestWithPermissiveLoad_Restores(t *testing.T) {
	captureWarnings(t)
	path := writeLegacyCheckpoint(t)
	before := serialization.LoadHook()

	err := WithPermissiveLoad(func() error {
		assert.NotSame(t, before, serialization.LoadHook())
		_, err := serialization.Load(context.Background(), path, serialization.LoadOptions{WeightsOnly: serialization.Bool(true)})
		return err
	})
	require.NoError(t, err)
	assert.Same(t, before, serialization.LoadHook())

	sentinel := errors.New("probe failed")
	err = WithPermissiveLoad(func() error { return sentinel })
	assert.Same(t, sentinel, err)
	assert.Same(t, before, serialization.LoadHook())

	assert.PanicsWithValue(t, "probe panic", func() {
		_ = WithPermissiveLoad(func() error { panic("probe panic") })
	})
	assert.Same(t, before, serialization.LoadHook())

	_, err = serialization.Load(context.Background(), path, serialization.LoadOptions{})
	assert.ErrorIs(t, err, serialization.ErrWeightsOnly)
}

func TestWithPermissiveLoad_NestsInsideInstall(t *testing.T) {
	uninstall(t)
	Install()
	installedHook := serialization.LoadHook()

	require.NoError(t, WithPermissiveLoad(func() error { return nil }))
	assert.Same(t, installedHook, serialization.LoadHook())
}

func TestInstall_InsideScopedOverride(t *testing.T) {
	uninstall(t)
	captureWarnings(t)
	path := writeLegacyCheckpoint(t)
	before := serialization.LoadHook()

	require.NoError(t, WithPermissiveLoad(func() error {
		Install()
		return nil
	}))
	assert.True(t, Installed())
	assert.Same(t, shimLoad, serialization.LoadHook())
	assert.Same(t, before, origLoad)

	_, err := serialization.Load(context.Background(), path, serialization.LoadOptions{})
	require.NoError(t, err)

	Install()
	assert.Same(t, shimLoad, serialization.LoadHook())
}

func TestInstall_InsideNestedScopes(t *testing.T) {
	uninstall(t)
	captureWarnings(t)
	path := writeLegacyCheckpoint(t)

	var inner *serialization.LoadFunc
	require.NoError(t, WithPermissiveLoad(func() error {
		outer := serialization.LoadHook()
		err := WithPermissiveLoad(func() error {
			Install()
			assert.True(t, Installed())
			return nil
		})
		inner = serialization.LoadHook()
		assert.Same(t, outer, inner, "inner scope restores the outer override")
		return err
	}))
	assert.NotSame(t, inner, serialization.LoadHook())
	assert.Same(t, shimLoad, serialization.LoadHook())

	_, err := serialization.Load(context.Background(), path, serialization.LoadOptions{})
	require.NoError(t, err)
}

func TestInstall_AfterHooksReplaced(t *testing.T) {
	uninstall(t)
	captureWarnings(t)
	path := writeLegacyCheckpoint(t)
	before := serialization.LoadHook()

	Install()
	serialization.SetLoadHook(before)
	assert.False(t, Installed())

	Install()
	assert.True(t, Installed())
	_, err := serialization.Load(context.Background(), path, serialization.LoadOptions{})
	require.NoError(t, err)
}
