// Package metadata extracts client metadata (IP, User-Agent) early in the
// middleware chain so failure records and audit events can attribute abusive
// delegation attempts.
package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"authrelay/pkg/requestcontext"
)

// ClientMetadata extracts the client IP address and User-Agent from the
// request and adds them to the context. Apply before the delegation
// middleware.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIPFromRequest(r)
		ua := r.Header.Get("User-Agent")

		ctx := requestcontext.WithClientMetadata(r.Context(), ip, ua)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest extracts the real client IP, handling proxies and load
// balancers.
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

	// RemoteAddr is host:port for direct connections.
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

// ClientDescription summarizes a User-Agent string for audit attribution:
// "Firefox 128.0 (Linux)" for browsers, the bot name for crawlers, or the
// raw string truncated when unparseable.
func ClientDescription(rawUA string) string {
	if rawUA == "" {
		return ""
	}

	ua := useragent.New(rawUA)
	if ua.Bot() {
		if name, _ := ua.Browser(); name != "" {
			return "bot:" + name
		}
		return "bot"
	}

	name, version := ua.Browser()
	if name == "" {
		if len(rawUA) > 64 {
			return rawUA[:64]
		}
		return rawUA
	}
	if os := ua.OS(); os != "" {
		return name + " " + version + " (" + os + ")"
	}
	return name + " " + version
}
