// Package requestid assigns each request a correlation ID. Inbound
// X-Request-ID headers are honored so upstream proxies can stitch traces.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"civitas/pkg/requestcontext"
)

const headerName = "X-Request-ID"

// Middleware injects a request ID into the context and echoes it in the
// response header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerName)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(headerName, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
