// Package metadata extracts client IP and User-Agent for audit enrichment.
package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"civitas/pkg/requestcontext"
)

// ClientMetadata extracts the client IP address and a normalized User-Agent
// from the request and adds them to the context for handlers and audit
// publishers. Apply early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIPFromRequest(r)
		ua := NormalizeUserAgent(r.Header.Get("User-Agent"))

		ctx := requestcontext.WithClientMetadata(r.Context(), ip, ua)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// NormalizeUserAgent reduces a raw User-Agent header to "browser/version on
// os" for audit records, which keeps them readable without storing the full
// fingerprint string. Non-browser agents (curl, SDKs, bots) pass through
// truncated.
func NormalizeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}

	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" || ua.Bot() {
		if len(raw) > 64 {
			return raw[:64]
		}
		return raw
	}

	normalized := name
	if version != "" {
		normalized += "/" + version
	}
	if os := ua.OS(); os != "" {
		normalized += " on " + os
	}
	return normalized
}

// ClientIPFromRequest extracts the real client IP from the request, handling
// proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...);
	// the first is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" for IPv4 and "[::1]:port" for IPv6.
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
