package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig controls whether proxy-supplied client IP headers are trusted.
// Headers are spoofable, so they are honored only when the service is
// known to sit behind a proxy that strips inbound values.
type IPConfig struct {
	TrustProxyHeaders bool
}

// ExtractClientIP returns the client IP for rate limiting and audit records.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	if config != nil && config.TrustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// First hop in the chain is the original client
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if net.ParseIP(first) != nil {
				return first
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" && net.ParseIP(xri) != nil {
			return xri
		}
	}

	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
