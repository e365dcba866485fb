package middleware

import (
	"context"
	"net/http"

	"github.com/ramcharankhv-byte/taskhub/internal/domain"
	"github.com/ramcharankhv-byte/taskhub/internal/http/response"
	"github.com/ramcharankhv-byte/taskhub/internal/repository"
	"github.com/ramcharankhv-byte/taskhub/internal/security"
)

type contextKey string

const (
	userContextKey contextKey = "auth_user"
	roleContextKey contextKey = "project_role"
)

// RequireAuth authenticates the request from the access token cookie or a
// bearer Authorization header. The token's subject must resolve to a live
// user row; a deleted account invalidates outstanding tokens.
func RequireAuth(jwtMgr *security.JWTManager, users repository.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerOrCookieToken(r)
			if raw == "" {
				response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "missing access token", nil)
				return
			}
			claims, err := jwtMgr.ParseAccessToken(raw)
			if err != nil {
				response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired access token", nil)
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired access token", nil)
				return
			}
			user, err := users.FindByID(userID)
			if err != nil {
				response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired access token", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// ContextWithUser attaches an authenticated user to the context the same way
// RequireAuth does.
func ContextWithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext returns the authenticated user attached by RequireAuth.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(userContextKey).(*domain.User)
	return u, ok
}

// RoleFromContext returns the caller's role in the routed project, attached
// by RequireProjectRole.
func RoleFromContext(ctx context.Context) (domain.MemberRole, bool) {
	role, ok := ctx.Value(roleContextKey).(domain.MemberRole)
	return role, ok
}
