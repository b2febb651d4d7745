package loader_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/harness/loader"
	"github.com/born-ml/harness/shim"
)

func writeLegacy(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.born")
	w, err := loader.NewTensor("w", "float32", []int{2}, make([]byte, 8))
	require.NoError(t, err)
	tensors := []*loader.Tensor{w}
	objects := map[string]any{
		"meta": &loader.Object{Type: "train.MessageHub", State: map[string]any{"epoch": 3}},
	}
	require.NoError(t, loader.WriteFile(path, tensors, objects))
	return path
}

func TestLoad_LegacyNeedsPermissive(t *testing.T) {
	path := writeLegacy(t)

	_, err := loader.Load(context.Background(), path, loader.Options{})
	var unsafe *loader.UnsafeTypeError
	require.True(t, errors.As(err, &unsafe))
	assert.Equal(t, "train.MessageHub", unsafe.Type)
	assert.ErrorIs(t, err, loader.ErrWeightsOnly)

	ckpt, err := loader.Load(context.Background(), path, loader.Options{WeightsOnly: loader.Bool(false)})
	require.NoError(t, err)
	assert.Equal(t, []string{"w"}, ckpt.TensorNames())
}

func TestLoad_ScopedShim(t *testing.T) {
	path := writeLegacy(t)

	err := shim.WithPermissiveLoad(func() error {
		_, err := loader.Load(context.Background(), path, loader.Options{})
		return err
	})
	require.NoError(t, err)

	_, err = loader.Load(context.Background(), path, loader.Options{})
	assert.ErrorIs(t, err, loader.ErrWeightsOnly)
}
