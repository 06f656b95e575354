package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type requestIdKey string

const RequestIdKey requestIdKey = "requestId"

// WithRequestId reuses an incoming X-Request-ID when present.
func WithRequestId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqId := r.Header.Get("X-Request-ID")
		if reqId == "" || len(reqId) > 64 {
			reqId = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), RequestIdKey, reqId)
		r = r.WithContext(ctx)
		r.Header.Set("X-Request-ID", reqId)
		w.Header().Set("X-Request-ID", reqId)

		next.ServeHTTP(w, r)
	})
}

func GetRequestId(ctx context.Context) string {
	reqId, ok := ctx.Value(RequestIdKey).(string)
	if !ok {
		return "unknown"
	}
	return reqId
}
