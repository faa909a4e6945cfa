package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// statusRecorder captures what the handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status, w.wroteHeader = code, true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.status, w.wroteHeader = http.StatusOK, true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// Logger writes one access log line per request and records request metrics
// by route template, so path parameters do not explode label cardinality.
// Server errors log at error, client errors at warn, everything else at debug.
func Logger(log zerolog.Logger) func(next http.Handler) http.Handler {
	m := NewMetrics()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			matched := &routeHolder{template: "unmatched"}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), routeKey{}, matched)))

			elapsed := time.Since(start)
			route := matched.template
			m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
			m.Duration.WithLabelValues(route).Observe(elapsed.Seconds())

			evt := log.Debug()
			switch {
			case rec.status >= 500:
				evt = log.Error()
			case rec.status >= 400:
				evt = log.Warn()
			}
			if signer, ok := SignerFromContext(r.Context()); ok {
				evt = evt.Str("signer", signer.Hex())
			}
			evt.
				Str("request_id", RequestIDFromContext(r.Context())).
				Str("method", r.Method).
				Str("route", route).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", rec.status).
				Int64("bytes", rec.bytes).
				Dur("latency", elapsed).
				Msg("http_request")
		})
	}
}

type routeKey struct{}

type routeHolder struct {
	template string
}

// CaptureRoute is router-level middleware: it runs after mux has matched and
// hands the route template back to Logger, which wraps the router from outside.
func CaptureRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := r.Context().Value(routeKey{}).(*routeHolder); ok {
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					h.template = tpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
