package util

import (
	"net/http"
	"strings"
)

// APIContentSecurityPolicy locks down JSON responses.
const APIContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"

const hstsValue = "max-age=31536000; includeSubDomains"

var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Permissions-Policy", "geolocation=(), camera=(), microphone=()"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Content-Security-Policy", APIContentSecurityPolicy},
}

// WithSecurityHeaders sets the API header set. Dashboard handlers may replace
// the CSP and frame headers before writing.
func WithSecurityHeaders(trusted *TrustedProxies, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range apiHeaders {
			h.Set(kv[0], kv[1])
		}
		if servedOverHTTPS(r, trusted) {
			h.Set("Strict-Transport-Security", hstsValue)
		}
		next.ServeHTTP(w, r)
	})
}

// servedOverHTTPS believes X-Forwarded-Proto only from a trusted proxy.
func servedOverHTTPS(r *http.Request, trusted *TrustedProxies) bool {
	if r.TLS != nil {
		return true
	}
	peer, ok := parseRemote(r.RemoteAddr)
	if !ok || !trusted.Contains(peer) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}
