package serialization

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Tensor is a named tensor as stored in a checkpoint: dtype, shape and little-endian bytes.
type Tensor struct {
	Name  string
	DType string
	Shape []int
	Data  []byte
}

// NewTensor validates that data matches dtype and shape.
func NewTensor(name, dtype string, shape []int, data []byte) (*Tensor, error) {
	size, ok := dtypeSize(dtype)
	if !ok {
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}
	if err := validateShape(shape); err != nil {
		return nil, fmt.Errorf("invalid shape for tensor %s: %w", name, err)
	}
	want := numElements(shape) * size
	if len(data) != want {
		return nil, fmt.Errorf("tensor %s: got %d bytes, shape %v of %s needs %d", name, len(data), shape, dtype, want)
	}
	return &Tensor{Name: name, DType: dtype, Shape: append([]int(nil), shape...), Data: data}, nil
}

// Float32Tensor encodes values as a float32 tensor. It panics if len(values) does not
// match shape.
func Float32Tensor(name string, shape []int, values []float32) *Tensor {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	t, err := NewTensor(name, DTypeFloat32, shape, data)
	if err != nil {
		panic(err)
	}
	return t
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return numElements(t.Shape)
}

// Float32s decodes a float32 tensor.
func (t *Tensor) Float32s() ([]float32, error) {
	if t.DType != DTypeFloat32 {
		return nil, fmt.Errorf("tensor %s has dtype %s, not %s", t.Name, t.DType, DTypeFloat32)
	}
	out := make([]float32, len(t.Data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.Data[4*i:]))
	}
	return out, nil
}

func numElements(shape []int) int {
	n := 1 // Scalar has 1 element
	for _, dim := range shape {
		n *= dim
	}
	return n
}

func validateShape(shape []int) error {
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}
