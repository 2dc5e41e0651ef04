package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"parley/internal/metrics"
)

// Logger returns a request logging middleware using logrus.
func Logger(log *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.WithFields(logrus.Fields{
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     ww.Status(),
					"latency":    time.Since(start).String(),
					"request_id": chimw.GetReqID(r.Context()),
					"remote":     r.RemoteAddr,
				}).Info("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// Metrics records request counts and durations per route.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// Label by route pattern, not raw path, to keep cardinality bounded.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
