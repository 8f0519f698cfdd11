// Package apikey gates service-account routes (controller, owner) behind
// bcrypt-hashed API keys from config.
package apikey

import (
	"log/slog"
	"net/http"

	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/httputil"
	"civitas/pkg/platform/secrets"
	"civitas/pkg/requestcontext"
)

const headerName = "X-Api-Key"

// Require verifies the X-Api-Key header against the bcrypt digest configured
// for the named service account. bcrypt comparison is constant-time, so the
// key cannot be probed byte by byte.
func Require(role string, keyHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if keyHash == "" {
				logger.ErrorContext(ctx, "api key gate misconfigured, rejecting",
					"role", role,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, role+" key not configured"))
				return
			}

			key := r.Header.Get(headerName)
			if key == "" || secrets.Verify(key, keyHash) != nil {
				logger.WarnContext(ctx, "api key mismatch",
					"role", role,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, role+" key required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
