package httpx

import (
	"context"
	"log/slog"
)

// requestIDKey はパッケージ外から衝突しないよう空構造体型をキーにする。
type requestIDKey struct{}

// RequestIDLogKey is the attribute name used for request ids in logs and error bodies.
const RequestIDLogKey = "request_id"

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromCtx(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey{}).(string)
	return s
}

// RequestIDAttr returns the request id as a log attribute; ok is false outside a request.
func RequestIDAttr(ctx context.Context) (slog.Attr, bool) {
	id := RequestIDFromCtx(ctx)
	if id == "" {
		return slog.Attr{}, false
	}
	return slog.String(RequestIDLogKey, id), true
}
