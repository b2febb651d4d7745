// Package shim keeps checkpoints written before weights-only decoding became the
// default loadable. It patches the two entry points of the serialization runtime:
//
//   - the object decoder constructor, which rejects the deprecated WeightsOnly option
//     that older collaborators still pass; and
//   - Load, which defaults to weights-only decoding when the caller leaves the policy
//     unset.
//
// Install patches both for the rest of the process. WithPermissiveLoad patches Load
// for the duration of one call only.
package shim

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/born-ml/harness/internal/serialization"
	"github.com/born-ml/harness/internal/warnings"
)

var (
	mu sync.Mutex

	// Hooks set by Install and the functions they wrap.
	shimLoad    *serialization.LoadFunc
	shimDecoder *serialization.DecoderFunc
	origLoad    *serialization.LoadFunc
	origDecoder *serialization.DecoderFunc

	// Open WithPermissiveLoad calls, outermost first.
	scopes []*scope
)

type scope struct {
	restore *serialization.LoadFunc // Load hook to reinstate when the scope ends
}

// baseLoad returns the load hook that is active once every open scope has ended.
// Callers hold mu.
func baseLoad() *serialization.LoadFunc {
	if len(scopes) > 0 {
		return scopes[0].restore
	}
	return serialization.LoadHook()
}

// StripWeightsOnly wraps a decoder constructor so the deprecated WeightsOnly option
// never reaches it. All other options pass through unchanged.
func StripWeightsOnly(orig serialization.DecoderFunc) serialization.DecoderFunc {
	return func(r io.Reader, opts serialization.DecoderOptions) (*serialization.ObjectDecoder, error) {
		opts.WeightsOnly = nil
		return orig(r, opts)
	}
}

// DefaultPermissive wraps a load function so that an unset WeightsOnly policy means
// permissive decoding. An explicit policy is passed through as given. The wrapped call
// runs with permissive-load warnings suppressed; other warnings are delivered.
func DefaultPermissive(orig serialization.LoadFunc) serialization.LoadFunc {
	return func(ctx context.Context, path string, opts serialization.LoadOptions) (*serialization.Checkpoint, error) {
		if opts.WeightsOnly == nil {
			opts.WeightsOnly = serialization.Bool(false)
		}
		return orig(warnings.Ignore(ctx, warnings.PermissiveLoad), path, opts)
	}
}

// forcePermissive wraps a load function so every call decodes permissively.
func forcePermissive(orig serialization.LoadFunc) serialization.LoadFunc {
	return func(ctx context.Context, path string, opts serialization.LoadOptions) (*serialization.Checkpoint, error) {
		opts.WeightsOnly = serialization.Bool(false)
		return orig(warnings.Ignore(ctx, warnings.PermissiveLoad), path, opts)
	}
}

// Install patches both entry points for the rest of the process. Calling it again
// while its hooks are active does nothing. Inside WithPermissiveLoad the load hook is
// installed beneath the scoped override and takes effect when the outermost scope ends.
func Install() {
	mu.Lock()
	defer mu.Unlock()

	if base := baseLoad(); shimLoad == nil || base != shimLoad {
		origLoad = base
		load := DefaultPermissive(*base)
		shimLoad = &load
		if len(scopes) > 0 {
			scopes[0].restore = shimLoad
		} else {
			serialization.SetLoadHook(shimLoad)
		}
	}
	if current := serialization.DecoderHook(); shimDecoder == nil || current != shimDecoder {
		origDecoder = current
		decoder := StripWeightsOnly(*current)
		shimDecoder = &decoder
		serialization.SetDecoderHook(shimDecoder)
	}

	zap.L().Debug("serialization shim installed",
		zap.Bool("default_weights_only", serialization.DefaultWeightsOnly),
		zap.Bool("scoped_override_open", len(scopes) > 0),
		zap.String("runtime_version", serialization.RuntimeVersion),
	)
}

// Installed reports whether the hooks set by Install are in effect.
func Installed() bool {
	mu.Lock()
	defer mu.Unlock()
	return shimLoad != nil && baseLoad() == shimLoad && serialization.DecoderHook() == shimDecoder
}

// WithPermissiveLoad runs fn with Load forced to permissive decoding, then restores the
// load function that was active before, also when fn fails or panics.
// The error of fn is returned as is.
func WithPermissiveLoad(fn func() error) error {
	mu.Lock()
	prev := serialization.LoadHook()
	s := &scope{restore: prev}
	scopes = append(scopes, s)
	scoped := forcePermissive(*prev)
	serialization.SetLoadHook(&scoped)
	mu.Unlock()

	defer func() {
		mu.Lock()
		defer mu.Unlock()
		scopes = scopes[:len(scopes)-1]
		serialization.SetLoadHook(s.restore)
	}()

	return fn()
}
