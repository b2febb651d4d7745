package diagnose

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/born-ml/harness/internal/serialization"
)

// PolicyNote is attached to load probe failures caused by the runtime's security defaults.
const PolicyNote = "expected due to runtime security defaults"

// DependencyError reports an unavailable native library or symbol.
type DependencyError struct {
	Component string // Label of the checked component
	Library   string
	Symbol    string // Empty when the library itself failed to open
	Err       error
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("%s: symbol %s in %s: %v", e.Component, e.Symbol, e.Library, e.Err)
	}
	return fmt.Sprintf("%s: library %s: %v", e.Component, e.Library, e.Err)
}

// Unwrap returns the loader error.
func (e *DependencyError) Unwrap() error {
	return e.Err
}

// Classify maps a load probe error to a failure kind and detail. Missing files name
// the missing path.
func Classify(err error) (Kind, string) {
	var pathErr *fs.PathError
	switch {
	case err == nil:
		return KindNone, ""
	case errors.Is(err, fs.ErrNotExist):
		if errors.As(err, &pathErr) {
			return KindMissing, "not found: " + pathErr.Path
		}
		return KindMissing, err.Error()
	case errors.Is(err, serialization.ErrWeightsOnly), errors.Is(err, serialization.ErrPolicyMisuse):
		return KindPolicy, err.Error()
	case errors.As(err, new(*DependencyError)):
		return KindDependency, err.Error()
	default:
		return KindUnknown, err.Error()
	}
}
