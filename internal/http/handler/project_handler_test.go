package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ramcharankhv-byte/taskhub/internal/domain"
	"github.com/ramcharankhv-byte/taskhub/internal/http/middleware"
	"github.com/ramcharankhv-byte/taskhub/internal/repository"
	"github.com/ramcharankhv-byte/taskhub/internal/service"
)

type stubProjectService struct {
	createProjectFn    func(ctx context.Context, name, description string, creatorID uint) (*domain.Project, error)
	listProjectsFn     func(ctx context.Context, userID uint) ([]repository.ProjectWithRole, error)
	getProjectFn       func(ctx context.Context, projectID uint) (*domain.Project, error)
	updateProjectFn    func(ctx context.Context, projectID uint, name, description string) (*domain.Project, error)
	deleteProjectFn    func(ctx context.Context, projectID uint) error
	addMemberFn        func(ctx context.Context, projectID uint, email string, role domain.MemberRole) (*domain.ProjectMember, error)
	listMembersFn      func(ctx context.Context, projectID uint) ([]domain.ProjectMember, error)
	changeMemberRoleFn func(ctx context.Context, projectID, userID uint, role domain.MemberRole) (*domain.ProjectMember, error)
	removeMemberFn     func(ctx context.Context, projectID, userID uint) error
}

func (s *stubProjectService) CreateProject(ctx context.Context, name, description string, creatorID uint) (*domain.Project, error) {
	return s.createProjectFn(ctx, name, description, creatorID)
}
func (s *stubProjectService) ListProjects(ctx context.Context, userID uint) ([]repository.ProjectWithRole, error) {
	return s.listProjectsFn(ctx, userID)
}
func (s *stubProjectService) GetProject(ctx context.Context, projectID uint) (*domain.Project, error) {
	return s.getProjectFn(ctx, projectID)
}
func (s *stubProjectService) UpdateProject(ctx context.Context, projectID uint, name, description string) (*domain.Project, error) {
	return s.updateProjectFn(ctx, projectID, name, description)
}
func (s *stubProjectService) DeleteProject(ctx context.Context, projectID uint) error {
	return s.deleteProjectFn(ctx, projectID)
}
func (s *stubProjectService) AddMember(ctx context.Context, projectID uint, email string, role domain.MemberRole) (*domain.ProjectMember, error) {
	return s.addMemberFn(ctx, projectID, email, role)
}
func (s *stubProjectService) ListMembers(ctx context.Context, projectID uint) ([]domain.ProjectMember, error) {
	return s.listMembersFn(ctx, projectID)
}
func (s *stubProjectService) ChangeMemberRole(ctx context.Context, projectID, userID uint, role domain.MemberRole) (*domain.ProjectMember, error) {
	return s.changeMemberRoleFn(ctx, projectID, userID, role)
}
func (s *stubProjectService) RemoveMember(ctx context.Context, projectID, userID uint) error {
	return s.removeMemberFn(ctx, projectID, userID)
}

func projectTestRouter(h *ProjectHandler, user *domain.User) http.Handler {
	r := chi.NewRouter()
	if user != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(middleware.ContextWithUser(req.Context(), user)))
			})
		})
	}
	r.Post("/projects", h.Create)
	r.Get("/projects", h.List)
	r.Get("/projects/{projectId}", h.Get)
	r.Put("/projects/{projectId}", h.Update)
	r.Delete("/projects/{projectId}", h.Delete)
	r.Post("/projects/{projectId}/members", h.AddMember)
	r.Get("/projects/{projectId}/members", h.ListMembers)
	r.Put("/projects/{projectId}/members/{userId}", h.ChangeMemberRole)
	r.Delete("/projects/{projectId}/members/{userId}", h.RemoveMember)
	return r
}

func TestProjectHandlerCreate(t *testing.T) {
	alice := &domain.User{ID: 7, Email: "alice@example.com", Username: "alice"}

	t.Run("missing name", func(t *testing.T) {
		h := NewProjectHandler(&stubProjectService{})
		req := httptest.NewRequest(http.MethodPost, "/projects", strings.NewReader(`{"name":"  "}`))
		rr := httptest.NewRecorder()
		projectTestRouter(h, alice).ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		h := NewProjectHandler(&stubProjectService{})
		req := httptest.NewRequest(http.MethodPost, "/projects", strings.NewReader(`{"name":"roadmap"}`))
		rr := httptest.NewRecorder()
		projectTestRouter(h, nil).ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("creator recorded", func(t *testing.T) {
		var gotCreator uint
		svc := &stubProjectService{
			createProjectFn: func(ctx context.Context, name, description string, creatorID uint) (*domain.Project, error) {
				gotCreator = creatorID
				return &domain.Project{ID: 1, Name: name, Description: description, CreatedBy: creatorID}, nil
			},
		}
		h := NewProjectHandler(svc)
		req := httptest.NewRequest(http.MethodPost, "/projects", strings.NewReader(`{"name":" roadmap ","description":"q3"}`))
		rr := httptest.NewRecorder()
		projectTestRouter(h, alice).ServeHTTP(rr, req)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
		if gotCreator != alice.ID {
			t.Fatalf("expected creator %d, got %d", alice.ID, gotCreator)
		}
	})
}

func TestProjectHandlerGet(t *testing.T) {
	alice := &domain.User{ID: 7}

	t.Run("bad project id", func(t *testing.T) {
		h := NewProjectHandler(&stubProjectService{})
		req := httptest.NewRequest(http.MethodGet, "/projects/nope", nil)
		rr := httptest.NewRecorder()
		projectTestRouter(h, alice).ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		svc := &stubProjectService{
			getProjectFn: func(ctx context.Context, projectID uint) (*domain.Project, error) {
				return nil, repository.ErrProjectNotFound
			},
		}
		h := NewProjectHandler(svc)
		req := httptest.NewRequest(http.MethodGet, "/projects/42", nil)
		rr := httptest.NewRecorder()
		projectTestRouter(h, alice).ServeHTTP(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
		if code := errorCode(t, rr.Body.Bytes()); code != "NOT_FOUND" {
			t.Fatalf("expected NOT_FOUND, got %q", code)
		}
	})
}

func TestProjectHandlerAddMember(t *testing.T) {
	alice := &domain.User{ID: 7}

	t.Run("invalid role includes available roles", func(t *testing.T) {
		svc := &stubProjectService{
			addMemberFn: func(ctx context.Context, projectID uint, email string, role domain.MemberRole) (*domain.ProjectMember, error) {
				return nil, service.ErrInvalidRole
			},
		}
		h := NewProjectHandler(svc)
		req := httptest.NewRequest(http.MethodPost, "/projects/1/members", strings.NewReader(`{"email":"bob@example.com","role":"owner"}`))
		rr := httptest.NewRecorder()
		projectTestRouter(h, alice).ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "available_roles") {
			t.Fatalf("expected available_roles detail, got %s", rr.Body.String())
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		svc := &stubProjectService{
			addMemberFn: func(ctx context.Context, projectID uint, email string, role domain.MemberRole) (*domain.ProjectMember, error) {
				return nil, repository.ErrUserNotFound
			},
		}
		h := NewProjectHandler(svc)
		req := httptest.NewRequest(http.MethodPost, "/projects/1/members", strings.NewReader(`{"email":"ghost@example.com","role":"member"}`))
		rr := httptest.NewRecorder()
		projectTestRouter(h, alice).ServeHTTP(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("malformed email rejected before the service", func(t *testing.T) {
		h := NewProjectHandler(&stubProjectService{})
		req := httptest.NewRequest(http.MethodPost, "/projects/1/members", strings.NewReader(`{"email":"not-an-email","role":"member"}`))
		rr := httptest.NewRecorder()
		projectTestRouter(h, alice).ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("success", func(t *testing.T) {
		svc := &stubProjectService{
			addMemberFn: func(ctx context.Context, projectID uint, email string, role domain.MemberRole) (*domain.ProjectMember, error) {
				return &domain.ProjectMember{ID: 3, ProjectID: projectID, UserID: 9, Role: role}, nil
			},
		}
		h := NewProjectHandler(svc)
		req := httptest.NewRequest(http.MethodPost, "/projects/1/members", strings.NewReader(`{"email":"bob@example.com","role":"member"}`))
		rr := httptest.NewRecorder()
		projectTestRouter(h, alice).ServeHTTP(rr, req)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestProjectHandlerLastAdminConflict(t *testing.T) {
	alice := &domain.User{ID: 7}

	t.Run("change role", func(t *testing.T) {
		svc := &stubProjectService{
			changeMemberRoleFn: func(ctx context.Context, projectID, userID uint, role domain.MemberRole) (*domain.ProjectMember, error) {
				return nil, service.ErrLastAdminRemoval
			},
		}
		h := NewProjectHandler(svc)
		req := httptest.NewRequest(http.MethodPut, "/projects/1/members/7", strings.NewReader(`{"role":"member"}`))
		rr := httptest.NewRecorder()
		projectTestRouter(h, alice).ServeHTTP(rr, req)
		if rr.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rr.Code)
		}
		if code := errorCode(t, rr.Body.Bytes()); code != "CONFLICT" {
			t.Fatalf("expected CONFLICT, got %q", code)
		}
	})

	t.Run("remove member", func(t *testing.T) {
		svc := &stubProjectService{
			removeMemberFn: func(ctx context.Context, projectID, userID uint) error {
				return service.ErrLastAdminRemoval
			},
		}
		h := NewProjectHandler(svc)
		req := httptest.NewRequest(http.MethodDelete, "/projects/1/members/7", nil)
		rr := httptest.NewRecorder()
		projectTestRouter(h, alice).ServeHTTP(rr, req)
		if rr.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rr.Code)
		}
	})
}

func TestProjectHandlerRemoveMemberNotFound(t *testing.T) {
	svc := &stubProjectService{
		removeMemberFn: func(ctx context.Context, projectID, userID uint) error {
			return repository.ErrMembershipNotFound
		},
	}
	h := NewProjectHandler(svc)
	req := httptest.NewRequest(http.MethodDelete, "/projects/1/members/9", nil)
	rr := httptest.NewRecorder()
	projectTestRouter(h, &domain.User{ID: 7}).ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
