package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/spotshare/spotshare/internal/apperror"
	"github.com/spotshare/spotshare/internal/auth"
	"github.com/spotshare/spotshare/internal/metrics"
)

// TokenVerifier checks bearer tokens.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger   *slog.Logger
	Verifier TokenVerifier
	Metrics  metrics.Recorder
}

// Auth returns a middleware that requires a valid bearer token and puts its
// claims into the request context. Preflight requests pass through so CORS
// can answer them. Every failure gets the same 403 response.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.NewNoop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := extractBearerToken(r)
			if token == "" {
				rejectAuth(w, r, cfg.Logger, recorder, "missing_token", nil)
				return
			}

			claims, err := cfg.Verifier.Verify(token)
			if err != nil {
				rejectAuth(w, r, cfg.Logger, recorder, "invalid_token", err)
				return
			}

			annotateUser(r.Context(), claims.UserID)
			ctx := auth.ContextWithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rejectAuth(w http.ResponseWriter, r *http.Request, logger *slog.Logger, recorder metrics.Recorder, reason string, err error) {
	attrs := []any{
		slog.String("reason", reason),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	logger.Warn("authentication failed", attrs...)
	recorder.IncAuthFailure(reason)

	writeError(w, apperror.KindAuthentication.HTTPStatus(), string(apperror.KindAuthentication), "Authentication failed!")
}

// extractBearerToken returns the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
