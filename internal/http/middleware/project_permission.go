package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ramcharankhv-byte/taskhub/internal/domain"
	"github.com/ramcharankhv-byte/taskhub/internal/http/response"
	"github.com/ramcharankhv-byte/taskhub/internal/repository"
)

// RequireProjectRole gates a project-scoped route on the caller's membership.
// The membership row is loaded fresh on every request, so a role change or
// removal takes effect immediately. The check is exact set membership; there
// is no role hierarchy.
func RequireProjectRole(memberships repository.MembershipRepository, roles ...domain.MemberRole) func(http.Handler) http.Handler {
	allowed := make(map[domain.MemberRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required", nil)
				return
			}
			projectID, err := ProjectIDFromRequest(r)
			if err != nil {
				response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid project id", nil)
				return
			}
			membership, err := memberships.FindByProjectAndUser(projectID, user.ID)
			if err != nil {
				if errors.Is(err, repository.ErrMembershipNotFound) {
					response.Error(w, r, http.StatusForbidden, response.CodeForbidden, "not a member of this project", nil)
					return
				}
				response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "could not resolve membership", nil)
				return
			}
			if _, ok := allowed[membership.Role]; !ok {
				response.Error(w, r, http.StatusForbidden, response.CodeForbidden, "insufficient project role", nil)
				return
			}
			ctx := context.WithValue(r.Context(), roleContextKey, membership.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ProjectIDFromRequest parses the projectId route parameter.
func ProjectIDFromRequest(r *http.Request) (uint, error) {
	raw := chi.URLParam(r, "projectId")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid project id")
	}
	return uint(id), nil
}
