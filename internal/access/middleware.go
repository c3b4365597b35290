package access

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// DenialCounter records authorization denials, labelled by the resource
// subtree and the reason the guard refused.
type DenialCounter interface {
	CountDenial(resource, reason string)
}

// Middleware wires coarse role guards for HTTP routes. Fine-grained record
// scoping stays in the handlers via the Gate; these guards mirror the
// route-level checks of the console (stats endpoints, the vendor subtree,
// admin-only routes).
type Middleware struct {
	Logger  *slog.Logger
	Denials DenialCounter
}

type denialPayload struct {
	Message  string   `json:"message"`
	Required []string `json:"required,omitempty"`
	Current  string   `json:"current,omitempty"`
}

// RequireMinRole ensures the principal ranks at least min in the role
// hierarchy.
func (m Middleware) RequireMinRole(min Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil || !p.IsActive {
				m.countDenial(r, "not_authenticated")
				writeDenial(w, http.StatusUnauthorized, denialPayload{Message: "Not authenticated"})
				return
			}
			if !AtLeast(p.Role, min) {
				m.countDenial(r, "insufficient_role")
				if m.Logger != nil {
					m.Logger.Warn("role below minimum",
						slog.String("path", r.URL.Path),
						slog.String("required", string(min)),
						slog.String("current", string(p.Role)))
				}
				writeDenial(w, http.StatusForbidden, denialPayload{
					Message:  "Access denied. Insufficient permissions.",
					Required: []string{string(min)},
					Current:  string(p.Role),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole ensures the principal holds one of the listed roles exactly.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil || !p.IsActive {
				m.countDenial(r, "not_authenticated")
				writeDenial(w, http.StatusUnauthorized, denialPayload{Message: "Not authenticated"})
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.countDenial(r, "insufficient_role")
			required := make([]string, 0, len(roles))
			for _, role := range roles {
				required = append(required, string(role))
			}
			writeDenial(w, http.StatusForbidden, denialPayload{
				Message:  "Access denied. Insufficient permissions.",
				Required: required,
				Current:  string(p.Role),
			})
		})
	}
}

func (m Middleware) countDenial(r *http.Request, reason string) {
	if m.Denials == nil {
		return
	}
	m.Denials.CountDenial(resourceSegment(r.URL.Path), reason)
}

// resourceSegment maps a request path to the resource subtree it targets,
// e.g. /api/v1/users/5/role to "users".
func resourceSegment(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if part == "v1" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "unknown"
}

func writeDenial(w http.ResponseWriter, status int, payload denialPayload) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
