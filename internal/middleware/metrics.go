// Package middleware provides HTTP middleware for metrics collection and
// request logging.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nadmax/wordsprint/internal/metrics"
)

var recordHTTPRequest = metrics.RecordHTTPRequest

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := routePattern(r)
		status := strconv.Itoa(wrapped.statusCode)

		recordHTTPRequest(r.Method, endpoint, status, duration)
	})
}

// routePattern prefers the pattern chi matched so label cardinality stays
// bounded by the route table.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return normalizeEndpoint(r.URL.Path)
}

func normalizeEndpoint(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/guilds/"):
		parts := strings.Split(strings.TrimPrefix(path, "/api/guilds/"), "/")
		if len(parts) == 2 && parts[1] == "sprint" {
			return "/api/guilds/{guild}/sprint"
		}
		if len(parts) == 3 && parts[1] == "sprint" {
			return "/api/guilds/{guild}/sprint/{command}"
		}
		return path
	case strings.HasPrefix(path, "/api/users/") && strings.HasSuffix(path, "/goals"):
		return "/api/users/{user}/goals"
	case strings.HasPrefix(path, "/api/tasks/") && !strings.Contains(path[11:], "/"):
		return "/api/tasks/{id}"
	default:
		return path
	}
}
