package auth

import (
	"log/slog"
	"net/http"

	"github.com/studentlms/lms/internal/platform/httpx"
	"github.com/studentlms/lms/internal/shared"
)

const msgNoToken = "No token provided"

// Middleware wires bearer authentication and role checks for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Authenticate resolves the bearer token into a principal stored on the
// request context. Requests without a valid token are rejected with 401.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			httpx.RespondError(w, r, m.Logger, shared.NewAuthenticationError(msgNoToken))
			return
		}
		principal, err := m.Service.Authenticate(r.Context(), token)
		if err != nil {
			httpx.RespondError(w, r, m.Logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireRole ensures the authenticated principal has the given role.
func (m Middleware) RequireRole(role shared.Role) func(http.Handler) http.Handler {
	message := "Student access required"
	if role == shared.RoleTeacher {
		message = "Teacher access required"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok || principal.Role != role {
				httpx.RespondError(w, r, m.Logger, shared.NewAuthorizationError(message))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireStudent is RequireRole(shared.RoleStudent).
func (m Middleware) RequireStudent(next http.Handler) http.Handler {
	return m.RequireRole(shared.RoleStudent)(next)
}
