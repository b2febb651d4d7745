// Package loader loads Born .born checkpoints.
//
// Since runtime 0.6 a load without an explicit policy is weights-only: the object
// section may only contain safe types (ordered dicts and tensor references).
// Checkpoints that carry arbitrary objects need an explicit permissive load, or the
// compatibility shim in package shim.
//
// Example usage:
//
//	ckpt, err := loader.Load(ctx, "models/pose.born", loader.Options{})
//	if err != nil {
//	    var unsafe *loader.UnsafeTypeError
//	    if errors.As(err, &unsafe) {
//	        log.Fatalf("checkpoint needs a permissive load: %s", unsafe.Type)
//	    }
//	    log.Fatal(err)
//	}
//	for _, name := range ckpt.TensorNames() {
//	    fmt.Println(name)
//	}
package loader

import (
	"context"

	"github.com/born-ml/harness/internal/serialization"
)

// Options configures Load. The zero value loads weights-only on the CPU.
type Options = serialization.LoadOptions

// Checkpoint is a loaded checkpoint.
type Checkpoint = serialization.Checkpoint

// Tensor is a named tensor with its raw little-endian data.
type Tensor = serialization.Tensor

// Object is a typed node with no registered constructor, kept by permissive loads.
type Object = serialization.Object

// UnsafeTypeError reports an object type a weights-only load refused to rebuild.
type UnsafeTypeError = serialization.UnsafeTypeError

// PolicyMisuseError reports a load policy passed where it is not accepted.
type PolicyMisuseError = serialization.PolicyMisuseError

// Sentinel errors for errors.Is.
var (
	ErrWeightsOnly      = serialization.ErrWeightsOnly
	ErrPolicyMisuse     = serialization.ErrPolicyMisuse
	ErrChecksumMismatch = serialization.ErrChecksumMismatch
	ErrTensorNotFound   = serialization.ErrTensorNotFound
)

// DefaultWeightsOnly is the policy applied when Options.WeightsOnly is nil.
const DefaultWeightsOnly = serialization.DefaultWeightsOnly

// Load reads the checkpoint at path through the active loader, so an installed
// shim applies here too.
func Load(ctx context.Context, path string, opts Options) (*Checkpoint, error) {
	return serialization.Load(ctx, path, opts)
}

// Bool returns a pointer to b, for Options.WeightsOnly.
func Bool(b bool) *bool {
	return serialization.Bool(b)
}

// NewTensor creates a tensor, checking that data matches dtype and shape.
func NewTensor(name, dtype string, shape []int, data []byte) (*Tensor, error) {
	return serialization.NewTensor(name, dtype, shape, data)
}

// WriteFile writes tensors and an optional object section as a v2 checkpoint.
func WriteFile(path string, tensors []*Tensor, objects map[string]any) error {
	header := serialization.Header{}
	if len(objects) > 0 {
		raw, err := serialization.EncodeObjects(objects)
		if err != nil {
			return err
		}
		header.Objects = raw
	}
	return serialization.WriteFile(path, tensors, header)
}
