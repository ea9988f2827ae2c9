package httpx

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware assigns a request id (X-Request-Id or a new UUID) and logs each request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: 200}
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)
		// リクエストIDをContextへ紐付けて以降の処理で参照可能にする
		ctx := WithRequestID(r.Context(), reqID)
		next.ServeHTTP(rw, r.WithContext(ctx))
		dur := time.Since(start)
		attrs := []any{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Int("duration_ms", int(dur.Milliseconds())),
			slog.String(RequestIDLogKey, reqID),
		}
		// フォーム送信は運用上追いたいので Info、それ以外は Debug
		if strings.HasPrefix(r.URL.Path, "/api/") {
			slog.InfoContext(ctx, fmt.Sprintf("%s %d %s", r.Method, rw.status, r.URL.Path), attrs...)
			return
		}
		slog.DebugContext(ctx, fmt.Sprintf("%s %d %s", r.Method, rw.status, r.URL.Path), attrs...)
	})
}

// MaintenanceMiddleware returns 503 for everything except static assets and probes while enabled.
func MaintenanceMiddleware(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled || isStaticAsset(r.URL.Path) || r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "maintenance")
		})
	}
}

func isStaticAsset(p string) bool {
	return strings.HasPrefix(p, "/assets/") ||
		strings.HasSuffix(p, ".js") ||
		strings.HasSuffix(p, ".css") ||
		strings.HasSuffix(p, ".ico") ||
		strings.HasSuffix(p, ".png") ||
		strings.HasPrefix(p, "/favicon")
}

func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.ErrorContext(r.Context(), "panic",
					slog.Any("error", rec),
					slog.String("path", r.URL.Path),
					slog.String("method", r.Method),
					slog.String(RequestIDLogKey, RequestIDFromCtx(r.Context())),
					slog.String("stack", string(debug.Stack())),
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
