package httpapi

import (
	"net/http"

	"github.com/demoody/missed-call-responder/internal/requestid"
)

// requestIDMiddleware honors an incoming X-Request-ID header or assigns a
// fresh id, and stores it in the context so scoped loggers carry it.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = requestid.New()
		}
		ctx := requestid.WithRequestID(r.Context(), id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
