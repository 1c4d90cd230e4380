package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/confetex/tracker/internal/adapter/logger"
	"github.com/confetex/tracker/internal/domain"
	"github.com/confetex/tracker/internal/interfaces"
)

type contextKey string

const identityKey contextKey = "identity"

func LoggingMiddleware(logger logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := fmt.Sprintf("req-%d", time.Now().UnixNano())

			logger.Debug("http_request", fmt.Sprintf("%s %s", r.Method, r.URL.Path), requestID, map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
			})

			next.ServeHTTP(w, r)

			duration := time.Since(start)
			logger.Debug("http_response", "Request completed", requestID, map[string]interface{}{
				"duration_ms": duration.Milliseconds(),
			})
		})
	}
}

func RecoveryMiddleware(logger logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					requestID := fmt.Sprintf("req-%d", time.Now().UnixNano())
					logger.Error("panic_recovered", "Panic recovered", requestID, nil, fmt.Errorf("%v", err))
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityMiddleware lifts the actor from the headers set by the fronting
// auth proxy. Requests without them pass through; handlers that mutate state
// reject anonymous callers themselves.
func IdentityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := r.Header.Get("X-User-Name")
			dept := domain.Department(r.Header.Get("X-User-Department"))

			if name != "" && domain.Valid(dept) {
				actor := interfaces.Identity{Name: name, Department: dept}
				r = r.WithContext(context.WithValue(r.Context(), identityKey, actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFrom returns the request's actor, or false for anonymous requests.
func IdentityFrom(ctx context.Context) (interfaces.Identity, bool) {
	actor, ok := ctx.Value(identityKey).(interfaces.Identity)
	return actor, ok
}
