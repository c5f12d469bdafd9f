package middleware

import (
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/spotshare/spotshare/internal/apperror"
)

// Input length limits shared by the handlers.
const (
	MaxNameLength        = 100
	MaxEmailLength       = 254
	MaxPasswordLength    = 128
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
	MaxAddressLength     = 500
)

// RequireIDParams returns a middleware that rejects requests whose named chi
// URL params are not well-formed identifiers. Such an id can never match a
// stored row, so the response is the same 404 a missing row would get.
func RequireIDParams(messages map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for param, message := range messages {
				if !ValidID(chi.URLParam(r, param)) {
					writeError(w, apperror.KindNotFound.HTTPStatus(), string(apperror.KindNotFound), message)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ValidID reports whether id is a canonical ULID.
func ValidID(id string) bool {
	if id == "" {
		return false
	}
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// WithinLength reports whether s has at most limit runes.
func WithinLength(s string, limit int) bool {
	return utf8.RuneCountInString(s) <= limit
}
