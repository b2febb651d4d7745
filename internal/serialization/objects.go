package serialization

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Type names registered in DefaultRegistry.
const (
	TypeOrderedDict = "born.OrderedDict"
	TypeTensorRef   = "born.TensorRef"
)

// Object is a typed node kept as-is because no constructor is registered for its type.
// Only permissive decoding produces it.
type Object struct {
	Type  string `json:"$type"`
	State any    `json:"$state"`
}

// OrderedDict is a mapping that keeps insertion order.
type OrderedDict struct {
	Keys   []string
	Values map[string]any
}

// MarshalJSON encodes the dict as a typed node with [key, value] pairs as state.
func (d *OrderedDict) MarshalJSON() ([]byte, error) {
	pairs := make([][2]any, len(d.Keys))
	for i, k := range d.Keys {
		pairs[i] = [2]any{k, d.Values[k]}
	}
	return json.Marshal(Object{Type: TypeOrderedDict, State: pairs})
}

// TensorRef points at a tensor of the same checkpoint by name.
type TensorRef struct {
	Name string
}

// MarshalJSON encodes the reference as a typed node.
func (r TensorRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(Object{Type: TypeTensorRef, State: r.Name})
}

// Constructor rebuilds a typed node from its already-decoded state.
type Constructor func(state any) (any, error)

// Registry maps type names to constructors and records which types are safe to rebuild
// under weights-only decoding.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
	safe  map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ctors: make(map[string]Constructor),
		safe:  make(map[string]bool),
	}
}

// DefaultRegistry is used when options leave Registry nil.
var DefaultRegistry = newDefaultRegistry()

func newDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TypeOrderedDict, newOrderedDict, true)
	r.Register(TypeTensorRef, newTensorRef, true)
	return r
}

// Register adds or replaces a constructor. Safe types are rebuilt in weights-only mode.
func (r *Registry) Register(typeName string, ctor Constructor, safe bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[typeName] = ctor
	r.safe[typeName] = safe
}

// SafeTypes returns the sorted names of types allowed in weights-only mode.
func (r *Registry) SafeTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.safe))
	for name, ok := range r.safe {
		if ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(typeName string) (Constructor, bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.ctors[typeName]
	return ctor, ok, r.safe[typeName]
}

func newOrderedDict(state any) (any, error) {
	pairs, ok := state.([]any)
	if !ok {
		return nil, fmt.Errorf("state must be a list of pairs, got %T", state)
	}
	d := &OrderedDict{Keys: make([]string, 0, len(pairs)), Values: make(map[string]any, len(pairs))}
	for i, p := range pairs {
		kv, ok := p.([]any)
		if !ok || len(kv) != 2 {
			return nil, fmt.Errorf("pair %d must be [key, value]", i)
		}
		key, ok := kv[0].(string)
		if !ok {
			return nil, fmt.Errorf("pair %d: key must be a string, got %T", i, kv[0])
		}
		if _, dup := d.Values[key]; !dup {
			d.Keys = append(d.Keys, key)
		}
		d.Values[key] = kv[1]
	}
	return d, nil
}

func newTensorRef(state any) (any, error) {
	name, ok := state.(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("state must be a tensor name, got %T", state)
	}
	return TensorRef{Name: name}, nil
}

// EncodeObjects encodes an object graph for Header.Objects.
// Values may be JSON-encodable Go values, *Object, *OrderedDict or TensorRef.
func EncodeObjects(objects map[string]any) (json.RawMessage, error) {
	raw, err := json.Marshal(objects)
	if err != nil {
		return nil, fmt.Errorf("failed to encode objects: %w", err)
	}
	return raw, nil
}

// DecoderOptions configures an ObjectDecoder.
type DecoderOptions struct {
	Registry   *Registry // nil uses DefaultRegistry
	Permissive bool      // Rebuild any type; the zero value allows only safe types
	MaxDepth   int       // 0 uses MaxObjectDepth

	// Deprecated: the decoding policy is chosen by LoadOptions.WeightsOnly and
	// Permissive. NewObjectDecoder fails with ErrPolicyMisuse when this is set.
	WeightsOnly *bool
}

// ObjectDecoder rebuilds object graphs from a JSON stream.
type ObjectDecoder struct {
	dec        *json.Decoder
	reg        *Registry
	permissive bool
	maxDepth   int
}

// newObjectDecoder is the decoder constructor installed by default.
func newObjectDecoder(r io.Reader, opts DecoderOptions) (*ObjectDecoder, error) {
	if opts.WeightsOnly != nil {
		return nil, &PolicyMisuseError{Func: "serialization.NewObjectDecoder", Option: "WeightsOnly"}
	}
	reg := opts.Registry
	if reg == nil {
		reg = DefaultRegistry
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = MaxObjectDepth
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &ObjectDecoder{dec: dec, reg: reg, permissive: opts.Permissive, maxDepth: maxDepth}, nil
}

// Decode reads and rebuilds the next value of the stream.
func (d *ObjectDecoder) Decode() (any, error) {
	var node any
	if err := d.dec.Decode(&node); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to decode object graph: %w", err)
	}
	return d.rebuild(node, "objects", 0)
}

// DecodeObjects reads a top-level mapping of named objects. The mapping must be the
// only value of the stream.
func (d *ObjectDecoder) DecodeObjects() (map[string]any, error) {
	v, err := d.Decode()
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("object section must be a mapping, got %T", v)
	}
	if _, err := d.dec.Token(); !errors.Is(err, io.EOF) {
		return nil, ErrTrailingData
	}
	return m, nil
}

func (d *ObjectDecoder) rebuild(node any, path string, depth int) (any, error) {
	if depth > d.maxDepth {
		return nil, fmt.Errorf("%w (%d) at %s", ErrObjectTooDeep, d.maxDepth, path)
	}
	switch v := node.(type) {
	case map[string]any:
		if typeName, ok := v["$type"].(string); ok {
			return d.rebuildTyped(typeName, v["$state"], path, depth)
		}
		out := make(map[string]any, len(v))
		for k, child := range v {
			rebuilt, err := d.rebuild(child, path+"."+k, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = rebuilt
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			rebuilt, err := d.rebuild(child, fmt.Sprintf("%s[%d]", path, i), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = rebuilt
		}
		return out, nil
	default:
		return v, nil
	}
}

func (d *ObjectDecoder) rebuildTyped(typeName string, rawState any, path string, depth int) (any, error) {
	ctor, registered, safe := d.reg.lookup(typeName)
	if !d.permissive && !safe {
		return nil, &UnsafeTypeError{Type: typeName, Path: path}
	}
	state, err := d.rebuild(rawState, path+".$state", depth+1)
	if err != nil {
		return nil, err
	}
	if !registered {
		return &Object{Type: typeName, State: state}, nil
	}
	v, err := ctor(state)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild %s at %s: %w", typeName, path, err)
	}
	return v, nil
}
