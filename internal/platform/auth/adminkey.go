package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/insigne-house/api/internal/platform/httpx"
	"github.com/insigne-house/api/internal/platform/requestctx"
)

// AdminKeyHeader carries the shared secret guarding the admin surface.
const AdminKeyHeader = "X-Admin-Key"

// AdminKeyMiddleware rejects requests whose admin key header does not match
// the configured shared secret. Comparison is constant time.
func AdminKeyMiddleware(key string) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(key))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				logger := requestctx.Logger(r.Context())
				logger.Error("admin key not configured; rejecting request")
				httpx.WriteError(r.Context(), w, httpx.NewError("admin_auth_unavailable", "admin authentication not configured", http.StatusServiceUnavailable))
				return
			}

			provided := []byte(strings.TrimSpace(r.Header.Get(AdminKeyHeader)))
			if subtle.ConstantTimeCompare(expected, provided) != 1 {
				logger := requestctx.Logger(r.Context())
				logger.Warn("admin key rejected", zap.String("remote_ip", r.RemoteAddr))
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthorized", "invalid admin key", http.StatusUnauthorized))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
