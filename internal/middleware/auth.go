// Package middleware holds chi-compatible HTTP middleware: bearer
// authentication and per-IP rate limiting.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/service"
)

type authRecordCtxKey struct{}

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/ready": true,
}

// Auth returns middleware that verifies the bearer token and injects
// the AuthRecord into the request context. Unauthenticated requests are
// rejected with 401 before any MCP dispatch.
func Auth(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				unauthorized(w, "authorization required")
				return
			}

			rec, err := authSvc.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthenticated) {
					unauthorized(w, "invalid token")
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error":"authentication backend unavailable"}`))
				return
			}

			ctx := context.WithValue(r.Context(), authRecordCtxKey{}, rec)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header, falling
// back to the ?token= query parameter for SSE clients that cannot set
// headers.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token := strings.TrimPrefix(h, "Bearer "); token != h {
			return token
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// RecordFromContext returns the verified AuthRecord, or nil on public
// paths.
func RecordFromContext(ctx context.Context) *service.AuthRecord {
	rec, _ := ctx.Value(authRecordCtxKey{}).(*service.AuthRecord)
	return rec
}

// WithRecord injects an AuthRecord; exported for tests and for the MCP
// transport context funcs.
func WithRecord(ctx context.Context, rec *service.AuthRecord) context.Context {
	return context.WithValue(ctx, authRecordCtxKey{}, rec)
}
