// Package attribution carries the network origin of a change through a
// request, so that changes applied on someone else's behalf are recorded with
// the original author's address and headers.
package attribution

import (
	"context"

	"wikimod/internal/models"
)

type originKey struct{}

// WithOrigin returns a context that attributes writes to origin.
func WithOrigin(ctx context.Context, origin models.Origin) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// FromContext returns the origin stored in ctx.
func FromContext(ctx context.Context) (models.Origin, bool) {
	origin, ok := ctx.Value(originKey{}).(models.Origin)
	return origin, ok
}

// Scoped runs fn with writes attributed to origin. The override ends when fn
// returns, whatever the outcome.
func Scoped[T any](ctx context.Context, origin models.Origin, fn func(context.Context) (T, error)) (T, error) {
	return fn(WithOrigin(ctx, origin))
}
