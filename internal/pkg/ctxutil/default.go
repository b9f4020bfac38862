package ctxutil

import "context"

// Default substitutes context.Background() for a nil ctx so callers can
// pass contexts through without guarding every hop.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
