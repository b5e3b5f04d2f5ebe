package contaconmigo

import "context"

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "contaconmigo_request_id"
)

// WithRequestID stores a request ID in the context. The dispatcher sends it
// as X-Request-ID instead of generating a new one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}
