package logging

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Probes are scraped constantly and would drown the access log
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

var recorderPool = sync.Pool{
	New: func() any {
		return &statusRecorder{status: http.StatusOK}
	},
}

// LoggingMiddleware writes one structured record per request
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if quietPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()

			rec := recorderPool.Get().(*statusRecorder)
			rec.ResponseWriter = w
			rec.status = http.StatusOK
			rec.bytes = 0
			defer recorderPool.Put(rec)

			next.ServeHTTP(rec, r)

			requestID := middleware.GetReqID(r.Context())
			if requestID == "" {
				requestID = "unknown"
			}

			attrs := []any{
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
			}

			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					attrs = append(attrs, "route", pattern)
				}
			}

			if r.URL.RawQuery != "" {
				attrs = append(attrs, "query", r.URL.RawQuery)
			}

			attrs = append(attrs,
				"remote_addr", r.RemoteAddr,
				"status_code", rec.status,
				"bytes_written", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			)

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "HTTP request", attrs...)
		})
	}
}

// statusRecorder captures the status code and body size written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(data []byte) (int, error) {
	n, err := w.ResponseWriter.Write(data)
	w.bytes += n
	return n, err
}
