package auth

import "context"

type contextKey struct{}

// WithServiceID records the verified caller on ctx.
func WithServiceID(ctx context.Context, serviceID string) context.Context {
	return context.WithValue(ctx, contextKey{}, serviceID)
}

// ServiceIDFrom returns the verified caller, if the request passed signature
// verification.
func ServiceIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}
