package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

// maxRequestIDLen bounds client-supplied ids; anything longer is replaced.
const maxRequestIDLen = 64

type (
	ctxKeyRequestID struct{}
	ctxKeyLogger    struct{}
)

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID{}).(string)
	return v
}

// WithRequestID returns a copy of ctx carrying id. Work a request hands off
// (position writes, analytics events) keeps the id that way.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID{}, id)
}

// LogFields returns the request_id field for ctx, or nothing outside a request.
func LogFields(ctx context.Context) []zap.Field {
	if rid := RequestIDFromContext(ctx); rid != "" {
		return []zap.Field{zap.String("request_id", rid)}
	}
	return nil
}

// LoggerFromContext returns the request-scoped logger set by the router, or
// fallback tagged with the request id when there is none.
func LoggerFromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(ctxKeyLogger{}).(*zap.Logger); ok {
		return l
	}
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return fallback.With(LogFields(ctx)...)
}

// requestContext accepts a well-formed client request id or mints one, echoes
// it in the response and attaches it, with a logger tagged with it, to the
// request context.
func requestContext(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if !validRequestID(rid) {
				rid = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, rid)
			ctx := WithRequestID(r.Context(), rid)
			ctx = context.WithValue(ctx, ctxKeyLogger{}, log.With(zap.String("request_id", rid)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validRequestID allows ids that are safe to echo and log verbatim.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.' || c == ':':
		default:
			return false
		}
	}
	return true
}
