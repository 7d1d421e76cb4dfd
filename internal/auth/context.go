package auth

import "context"

type ctxKey struct{}

// WithSession stores s in the context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// SessionFromContext returns the session stored by the auth middleware.
// The zero Session is unauthenticated.
func SessionFromContext(ctx context.Context) Session {
	s, _ := ctx.Value(ctxKey{}).(Session)
	return s
}
