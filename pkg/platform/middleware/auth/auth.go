// Package auth authenticates holder requests with JWT bearer tokens and
// injects the caller account into the request context.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
	"civitas/pkg/platform/httputil"
	"civitas/pkg/requestcontext"
)

// Validator validates a bearer token and returns the authenticated account.
type Validator interface {
	Validate(tokenString string) (id.AccountID, error)
}

// RequireAuth rejects requests without a valid bearer token. On success the
// caller account is available via requestcontext.Account.
func RequireAuth(validator Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			const bearerPrefix = "Bearer "
			tokenString, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || tokenString == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "bearer token required"))
				return
			}

			account, err := validator.Validate(tokenString)
			if err != nil {
				logger.WarnContext(ctx, "rejected invalid bearer token",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithAccount(ctx, account)))
		})
	}
}
