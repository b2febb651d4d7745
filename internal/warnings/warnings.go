// Package warnings carries non-fatal runtime notices (deprecated formats, permissive
// checkpoint loads) from library code to the process logger.
//
// Filtering is scoped to a context: a caller derives a context with Ignore and only
// warnings emitted under that context are dropped. Nothing is filtered process-wide.
package warnings

import (
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// Category groups warnings that can be filtered together.
type Category string

// Known categories.
const (
	// Deprecation marks use of a format or API scheduled for removal.
	Deprecation Category = "deprecation"
	// PermissiveLoad is emitted whenever a checkpoint is decoded with arbitrary
	// object reconstruction enabled.
	PermissiveLoad Category = "permissive-load"
	// Runtime covers everything else.
	Runtime Category = "runtime"
)

// Warning is a single emitted notice.
type Warning struct {
	Category Category
	Source   string // Emitting function, e.g. "serialization.Load"
	Message  string
}

// Handler receives warnings that survive filtering.
type Handler func(Warning)

// Filter reports whether a warning should be dropped.
type Filter func(Warning) bool

type filterKey struct{}

var handler atomic.Pointer[Handler]

func init() {
	h := Handler(logHandler)
	handler.Store(&h)
}

// logHandler writes the warning to the global zap logger.
func logHandler(w Warning) {
	zap.L().Warn(w.Message,
		zap.String("category", string(w.Category)),
		zap.String("source", w.Source),
	)
}

// SetHandler replaces the process handler and returns a func restoring the previous one.
func SetHandler(h Handler) (restore func()) {
	prev := handler.Swap(&h)
	return func() { handler.Store(prev) }
}

// Emit delivers a warning unless a filter attached to ctx drops it.
func Emit(ctx context.Context, category Category, source, message string) {
	w := Warning{Category: category, Source: source, Message: message}
	if ctx != nil {
		if filters, ok := ctx.Value(filterKey{}).([]Filter); ok {
			for _, f := range filters {
				if f(w) {
					return
				}
			}
		}
	}
	(*handler.Load())(w)
}

// WithFilter returns a context that drops warnings matched by f, in addition to
// any filters already attached to ctx.
func WithFilter(ctx context.Context, f Filter) context.Context {
	prev, _ := ctx.Value(filterKey{}).([]Filter)
	filters := make([]Filter, 0, len(prev)+1)
	filters = append(filters, prev...)
	filters = append(filters, f)
	return context.WithValue(ctx, filterKey{}, filters)
}

// Ignore returns a context that drops warnings of the given categories.
func Ignore(ctx context.Context, categories ...Category) context.Context {
	set := make(map[Category]struct{}, len(categories))
	for _, c := range categories {
		set[c] = struct{}{}
	}
	return WithFilter(ctx, func(w Warning) bool {
		_, ok := set[w.Category]
		return ok
	})
}

// IgnoreMessage returns a context that drops warnings whose message contains substr.
func IgnoreMessage(ctx context.Context, substr string) context.Context {
	return WithFilter(ctx, func(w Warning) bool {
		return strings.Contains(w.Message, substr)
	})
}
