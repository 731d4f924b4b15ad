package actorctx

import "context"

type ctxKey struct{}

// Caller is the authenticated account behind a request.
type Caller struct {
	AccountID string
	Username  string
}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)

	return c, ok && c.AccountID != ""
}
