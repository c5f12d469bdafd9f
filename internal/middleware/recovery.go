package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/spotshare/spotshare/internal/apperror"
)

// Recoverer turns a handler panic into a logged 500. When the handler had
// already started the response only the log line is written.
// http.ErrAbortHandler is re-raised for net/http to handle.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}

				logger.Error("handler panicked",
					"request_id", GetRequestID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"panic", v,
					"stack", string(debug.Stack()),
				)

				if started(w) {
					return
				}
				writeError(w, http.StatusInternalServerError, string(apperror.KindInternal),
					"An unknown error occurred!")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func started(w http.ResponseWriter) bool {
	rw, ok := w.(*responseWriter)
	return ok && rw.wroteHeader
}
