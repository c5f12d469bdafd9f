package middleware

import (
	"net/http"
	"strings"
)

// SecurityConfig holds configuration for security headers.
type SecurityConfig struct {
	// IsDevelopment disables HSTS in dev environments.
	IsDevelopment bool
	// PublicPrefix marks paths serving uploaded images. They keep the
	// browser cache and are not subject to the API's CSP.
	PublicPrefix string
}

type header struct{ key, value string }

var (
	commonHeaders = []header{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"X-XSS-Protection", "0"},
		{"Referrer-Policy", "strict-origin-when-cross-origin"},
		{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()"},
	}
	apiHeaders = []header{
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
		{"Cache-Control", "no-store"},
	}
	hstsHeader = header{"Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload"}
)

// Security sets response security headers. JSON responses also get a
// deny-all CSP and are never cached.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	always := append([]header(nil), commonHeaders...)
	if !cfg.IsDevelopment {
		always = append(always, hstsHeader)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, hd := range always {
				h.Set(hd.key, hd.value)
			}
			if cfg.PublicPrefix == "" || !strings.HasPrefix(r.URL.Path, cfg.PublicPrefix) {
				for _, hd := range apiHeaders {
					h.Set(hd.key, hd.value)
				}
			}
			h.Del("Server")

			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize caps request bodies at maxBytes. A declared length over the
// cap is refused before the handler runs; otherwise reads fail at the cap.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large.")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
