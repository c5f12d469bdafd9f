package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serveSecurity(cfg SecurityConfig, path string) http.Header {
	h := Security(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Header()
}

func TestSecurity_Headers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cfg    SecurityConfig
		path   string
		want   map[string]string
		absent []string
	}{
		{
			name: "production api response",
			cfg:  SecurityConfig{PublicPrefix: "/uploads/"},
			path: "/api/places/01HZX3JQ4W7K9R6T2M8N5P1C0B",
			want: map[string]string{
				"X-Content-Type-Options":    "nosniff",
				"X-Frame-Options":           "DENY",
				"Referrer-Policy":           "strict-origin-when-cross-origin",
				"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
				"Cache-Control":             "no-store",
				"Strict-Transport-Security": "max-age=31536000; includeSubDomains; preload",
			},
		},
		{
			name:   "development skips hsts",
			cfg:    SecurityConfig{IsDevelopment: true},
			path:   "/api/users",
			want:   map[string]string{"Permissions-Policy": "geolocation=(), microphone=(), camera=(), payment=(), usb=()"},
			absent: []string{"Strict-Transport-Security"},
		},
		{
			name:   "uploaded image stays cacheable",
			cfg:    SecurityConfig{PublicPrefix: "/uploads/"},
			path:   "/uploads/images/01HZX3JQ4W7K9R6T2M8N5P1C0B.png",
			want:   map[string]string{"X-Content-Type-Options": "nosniff"},
			absent: []string{"Cache-Control", "Content-Security-Policy"},
		},
		{
			name: "no public prefix configured",
			cfg:  SecurityConfig{IsDevelopment: true},
			path: "/uploads/images/a.png",
			want: map[string]string{"Cache-Control": "no-store"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := serveSecurity(tt.cfg, tt.path)
			for k, v := range tt.want {
				if got.Get(k) != v {
					t.Errorf("%s = %q, want %q", k, got.Get(k), v)
				}
			}
			for _, k := range tt.absent {
				if v := got.Get(k); v != "" {
					t.Errorf("%s = %q, want unset", k, v)
				}
			}
		})
	}
}

func TestMaxBodySize(t *testing.T) {
	t.Parallel()

	var readErr error
	h := MaxBodySize(10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("within limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || readErr != nil {
			t.Errorf("status %d, read error %v", rec.Code, readErr)
		}
	})

	t.Run("declared length over limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("this body is far too long"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("status = %d, want 413", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"code":"PAYLOAD_TOO_LARGE"`) {
			t.Errorf("unexpected body %s", rec.Body.String())
		}
	})

	t.Run("undeclared length fails on read", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("this body is far too long"))
		req.ContentLength = -1
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		var tooLarge *http.MaxBytesError
		if !errors.As(readErr, &tooLarge) {
			t.Errorf("read error = %v, want *http.MaxBytesError", readErr)
		}
	})
}
