package serialization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync/atomic"

	"github.com/born-ml/harness/internal/parallel"
	"github.com/born-ml/harness/internal/warnings"
)

// DefaultWeightsOnly is the policy Load applies when LoadOptions.WeightsOnly is nil.
const DefaultWeightsOnly = true

// DefaultDevice is the placement recorded when LoadOptions.Device is empty.
const DefaultDevice = "cpu"

// LoadOptions configures Load.
type LoadOptions struct {
	Device       string          // Placement tag recorded on the checkpoint ("cpu", "webgpu")
	WeightsOnly  *bool           // nil applies DefaultWeightsOnly
	SkipChecksum bool            // Skip v2 checksum validation
	Validation   ValidationLevel // Header validation level
	Mmap         bool            // Map the file instead of reading it, where supported
	Registry     *Registry       // nil uses DefaultRegistry
}

// Bool returns a pointer to b, for LoadOptions.WeightsOnly.
func Bool(b bool) *bool {
	return &b
}

// Checkpoint is a loaded .born file.
type Checkpoint struct {
	Path        string
	Version     uint32
	Header      Header
	Tensors     map[string]*Tensor
	Objects     map[string]any // Rebuilt object section, nil when absent
	Digest      string         // HeaderDigest of the stored header
	Device      string
	WeightsOnly bool // Policy the checkpoint was decoded with
}

// TensorNames returns the sorted tensor names.
func (c *Checkpoint) TensorNames() []string {
	names := make([]string, 0, len(c.Tensors))
	for name := range c.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tensor returns a tensor by name.
func (c *Checkpoint) Tensor(name string) (*Tensor, error) {
	t, ok := c.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	return t, nil
}

// LoadFunc is the signature of the Load entry point.
type LoadFunc func(ctx context.Context, path string, opts LoadOptions) (*Checkpoint, error)

// DecoderFunc is the signature of the object decoder constructor.
type DecoderFunc func(r io.Reader, opts DecoderOptions) (*ObjectDecoder, error)

var (
	loadHook    atomic.Pointer[LoadFunc]
	decoderHook atomic.Pointer[DecoderFunc]
)

func init() {
	l := LoadFunc(load)
	loadHook.Store(&l)
	d := DecoderFunc(newObjectDecoder)
	decoderHook.Store(&d)
}

// Load reads a checkpoint through the active load hook.
func Load(ctx context.Context, path string, opts LoadOptions) (*Checkpoint, error) {
	return (*loadHook.Load())(ctx, path, opts)
}

// NewObjectDecoder creates an object decoder through the active decoder hook.
func NewObjectDecoder(r io.Reader, opts DecoderOptions) (*ObjectDecoder, error) {
	return (*decoderHook.Load())(r, opts)
}

// LoadHook returns the active load function. The pointer identifies the hook: two
// calls return the same pointer until SetLoadHook is called.
func LoadHook() *LoadFunc {
	return loadHook.Load()
}

// SetLoadHook installs fn as the load function and returns the previous one.
func SetLoadHook(fn *LoadFunc) *LoadFunc {
	if fn == nil || *fn == nil {
		panic("serialization: nil load hook")
	}
	return loadHook.Swap(fn)
}

// DecoderHook returns the active decoder constructor.
func DecoderHook() *DecoderFunc {
	return decoderHook.Load()
}

// SetDecoderHook installs fn as the decoder constructor and returns the previous one.
func SetDecoderHook(fn *DecoderFunc) *DecoderFunc {
	if fn == nil || *fn == nil {
		panic("serialization: nil decoder hook")
	}
	return decoderHook.Swap(fn)
}

// load is the load function installed by default.
func load(ctx context.Context, path string, opts LoadOptions) (*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	weightsOnly := DefaultWeightsOnly
	if opts.WeightsOnly != nil {
		weightsOnly = *opts.WeightsOnly
	}
	if !weightsOnly {
		warnings.Emit(ctx, warnings.PermissiveLoad, "serialization.Load", fmt.Sprintf(
			"loading %s with WeightsOnly=false: the object section may rebuild arbitrary types; "+
				"only load checkpoints from trusted sources", path))
	}

	data, release, err := readCheckpoint(path, opts.Mmap)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	defer func() { _ = release() }()

	r, err := NewReader(data, ReaderOptions{
		SkipChecksumValidation: opts.SkipChecksum,
		ValidationLevel:        opts.Validation,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	if r.Version() == FormatVersion {
		warnings.Emit(ctx, warnings.Deprecation, "serialization.Load", fmt.Sprintf(
			"%s uses format v1, which carries no checksum; re-save it to upgrade to v2", path))
	}

	names := r.TensorNames()
	loaded := make([]*Tensor, len(names))
	err = parallel.ForErr(len(names), func(i int) error {
		t, err := r.Tensor(names[i])
		if err != nil {
			return fmt.Errorf("failed to load tensor %s: %w", names[i], err)
		}
		loaded[i] = t
		return nil
	}, parallel.DefaultConfig())
	if err != nil {
		return nil, err
	}
	tensors := make(map[string]*Tensor, len(names))
	for _, t := range loaded {
		tensors[t.Name] = t
	}

	header := r.Header()
	objects, err := decodeObjects(header.Objects, weightsOnly, opts.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	digest, err := HeaderDigest(r.HeaderJSON())
	if err != nil {
		return nil, err
	}

	device := opts.Device
	if device == "" {
		device = DefaultDevice
	}
	return &Checkpoint{
		Path:        path,
		Version:     r.Version(),
		Header:      header,
		Tensors:     tensors,
		Objects:     objects,
		Digest:      digest,
		Device:      device,
		WeightsOnly: weightsOnly,
	}, nil
}

func decodeObjects(raw json.RawMessage, weightsOnly bool, reg *Registry) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	dec, err := NewObjectDecoder(bytes.NewReader(raw), DecoderOptions{
		Registry:   reg,
		Permissive: !weightsOnly,
	})
	if err != nil {
		return nil, err
	}
	return dec.DecodeObjects()
}

// readCheckpoint returns the file contents and a release func. Mapping falls back to a
// plain read when the platform or file does not support it.
func readCheckpoint(path string, useMmap bool) ([]byte, func() error, error) {
	if useMmap {
		data, release, err := mmapFile(path)
		if err == nil {
			return data, release, nil
		}
		if os.IsNotExist(err) {
			return nil, nil, err
		}
	}
	//nolint:gosec // G304: path is chosen by the caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return data, func() error { return nil }, nil
}
