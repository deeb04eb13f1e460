package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/bookstore/internal/metrics"
)

// unmatchedRoute объединяет запросы, не попавшие ни в один маршрут.
const unmatchedRoute = "unmatched"

// Metrics учитывает количество и длительность запросов по шаблону маршрута chi.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			data := &responseData{status: http.StatusOK}
			next.ServeHTTP(&loggingResponseWriter{ResponseWriter: w, data: data}, r)

			route := unmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			m.ObserveRequest(route, data.status, float64(time.Since(start).Microseconds())/1000)
		})
	}
}
