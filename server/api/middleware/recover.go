package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Recover turns handler panics into a 500 with the standard error envelope.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recover(log zerolog.Logger) func(next http.Handler) http.Handler {
	m := NewMetrics()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				m.Panics.Inc()
				requestID := RequestIDFromContext(r.Context())
				log.Error().
					Interface("panic", rec).
					Str("request_id", requestID).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("Recovered handler panic")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
					"code":       "internal",
					"message":    "internal server error",
					"request_id": requestID,
					"timestamp":  time.Now().UTC().Format(time.RFC3339),
				}})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
