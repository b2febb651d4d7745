// Package shim keeps checkpoints written before weights-only loading became the
// runtime default loadable.
//
// Install patches checkpoint loading for the rest of the process. Call it once,
// before any checkpoint is loaded:
//
//	import "github.com/born-ml/harness/shim"
//
//	func main() {
//	    shim.Install()
//	    model, err := pose.InitModel(ctx, cfgPath, ckptPath, "cpu")
//	    ...
//	}
//
// WithPermissiveLoad applies the permissive policy only while a function runs:
//
//	err := shim.WithPermissiveLoad(func() error {
//	    _, err := loader.Load(ctx, path, loader.Options{})
//	    return err
//	})
package shim

import (
	"github.com/born-ml/harness/internal/shim"
)

// Install makes loads without an explicit policy permissive, suppresses the
// resulting warning, and lets the object decoder accept the legacy WeightsOnly
// option. It is idempotent and lasts for the lifetime of the process.
func Install() {
	shim.Install()
}

// Installed reports whether Install has run.
func Installed() bool {
	return shim.Installed()
}

// WithPermissiveLoad runs fn with every checkpoint load forced to the permissive
// policy and restores the previous loader afterwards, even if fn panics.
// Errors from fn are returned unchanged.
func WithPermissiveLoad(fn func() error) error {
	return shim.WithPermissiveLoad(fn)
}
