package serialization

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrOffsetOverlap      = errors.New("tensor offsets overlap")
	ErrOutOfBounds        = errors.New("tensor extends beyond data section")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrTensorNotFound     = errors.New("tensor not found")
	ErrObjectTooDeep      = errors.New("object graph exceeds maximum depth")
	ErrTrailingData       = errors.New("object section has data after the top-level mapping")

	// ErrWeightsOnly is matched by every rejection made by weights-only decoding.
	ErrWeightsOnly = errors.New("weights-only load failed")

	// ErrPolicyMisuse is matched when a load policy is passed to a function that
	// does not take one.
	ErrPolicyMisuse = errors.New("load policy passed to a function that does not accept it")
)

// ValidationError provides detailed information about validation failures.
type ValidationError struct {
	Type    string // Type of error (e.g., "offset_overlap", "out_of_bounds")
	Tensor  string // Primary tensor name involved
	Tensor2 string // Secondary tensor name (for overlap errors)
	Details string // Additional details
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Tensor2 != "" {
		return fmt.Sprintf("%s: tensors %q and %q: %s", e.Type, e.Tensor, e.Tensor2, e.Details)
	}
	if e.Tensor != "" {
		return fmt.Sprintf("%s: tensor %q: %s", e.Type, e.Tensor, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}

// UnsafeTypeError reports an object type that weights-only decoding refused to rebuild.
type UnsafeTypeError struct {
	Type string
	Path string // Location of the node in the object graph, e.g. "objects.message_hub"
}

// Error implements the error interface.
func (e *UnsafeTypeError) Error() string {
	return fmt.Sprintf("%v: unsupported object type %q at %s; "+
		"load with WeightsOnly=false only if the checkpoint comes from a trusted source",
		ErrWeightsOnly, e.Type, e.Path)
}

// Unwrap makes errors.Is(err, ErrWeightsOnly) true.
func (e *UnsafeTypeError) Unwrap() error { return ErrWeightsOnly }

// PolicyMisuseError names the function and option that was rejected.
type PolicyMisuseError struct {
	Func   string
	Option string
}

// Error implements the error interface.
func (e *PolicyMisuseError) Error() string {
	return fmt.Sprintf("%s: unexpected option %s", e.Func, e.Option)
}

// Unwrap makes errors.Is(err, ErrPolicyMisuse) true.
func (e *PolicyMisuseError) Unwrap() error { return ErrPolicyMisuse }
