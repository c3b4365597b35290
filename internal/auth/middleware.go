package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/atlas-ops/atlas-ops/internal/access"
	"github.com/atlas-ops/atlas-ops/internal/platform/httpx"
)

// Middleware resolves bearer tokens into request principals.
type Middleware struct {
	logger  *slog.Logger
	issuer  *TokenIssuer
	service *Service
}

// NewMiddleware constructs the auth middleware.
func NewMiddleware(logger *slog.Logger, issuer *TokenIssuer, service *Service) *Middleware {
	return &Middleware{logger: logger, issuer: issuer, service: service}
}

// Principal verifies the Authorization header and loads the current user
// into the request context. Requests without a valid bearer token pass
// through without a principal so downstream guards can reject them.
func (m *Middleware) Principal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := m.issuer.Verify(raw)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := m.service.LoadPrincipal(r.Context(), userID)
		if err != nil {
			m.logger.Debug("load principal", slog.Int64("user_id", userID), slog.Any("error", err))
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(access.ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireAuth rejects requests that did not resolve to an active principal.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := access.PrincipalFromContext(r.Context())
		if principal == nil || !principal.IsActive {
			httpx.RespondError(w, access.ErrNotAuthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
