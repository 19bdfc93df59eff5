package audit

import "context"

type ctxKey string

const (
	endpointKey  ctxKey = "audit_endpoint"
	requestIDKey ctxKey = "audit_request_id"
)

// WithRequest tags ctx with the endpoint and request id that audit events are
// attributed to.
func WithRequest(ctx context.Context, endpoint, requestID string) context.Context {
	ctx = context.WithValue(ctx, endpointKey, endpoint)
	return context.WithValue(ctx, requestIDKey, requestID)
}

func EndpointFromContext(ctx context.Context) string {
	v, _ := ctx.Value(endpointKey).(string)
	return v
}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
