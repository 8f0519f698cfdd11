// Package httptransport assembles the HTTP surface: middleware chain, health
// and metrics endpoints, and the per-module route registrations.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"civitas/pkg/platform/httputil"
	"civitas/pkg/platform/middleware/metadata"
	"civitas/pkg/platform/middleware/requestid"
	"civitas/pkg/platform/middleware/requesttime"
	"civitas/pkg/requestcontext"
)

// Registrar is implemented by every module handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck probes one dependency. Checks run with a short deadline so a
// hung dependency degrades the health report instead of the endpoint.
type HealthCheck func(ctx context.Context) error

// New builds the router. Handlers register their own routes and gates; the
// router only owns the ambient middleware and the operational endpoints.
func New(logger *slog.Logger, health map[string]HealthCheck, handlers ...Registrar) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(requestLogger(logger))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthHandler(health))

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}

// requestLogger logs one line per request. Reads at debug, mutations and
// failures at info/warn so the default level stays quiet under display load.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", requestcontext.RequestID(r.Context()),
			}
			switch {
			case ww.Status() >= http.StatusInternalServerError:
				logger.ErrorContext(r.Context(), "request", attrs...)
			case ww.Status() >= http.StatusBadRequest:
				logger.WarnContext(r.Context(), "request", attrs...)
			case r.Method == http.MethodGet:
				logger.DebugContext(r.Context(), "request", attrs...)
			default:
				logger.InfoContext(r.Context(), "request", attrs...)
			}
		})
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(health map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(health))}
		status := http.StatusOK
		for name, check := range health {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
			} else {
				resp.Checks[name] = "ok"
			}
		}
		httputil.WriteJSON(w, status, resp)
	}
}
