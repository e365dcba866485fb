package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ramcharankhv-byte/taskhub/internal/domain"
	"github.com/ramcharankhv-byte/taskhub/internal/repository"
)

var (
	ErrInvalidRole        = errors.New("unknown member role")
	ErrLastAdminRemoval   = errors.New("cannot remove the last admin of a project")
	ErrMemberNotInProject = errors.New("user is not a member of this project")
)

type ProjectServiceInterface interface {
	CreateProject(ctx context.Context, name, description string, creatorID uint) (*domain.Project, error)
	ListProjects(ctx context.Context, userID uint) ([]repository.ProjectWithRole, error)
	GetProject(ctx context.Context, projectID uint) (*domain.Project, error)
	UpdateProject(ctx context.Context, projectID uint, name, description string) (*domain.Project, error)
	DeleteProject(ctx context.Context, projectID uint) error

	AddMember(ctx context.Context, projectID uint, email string, role domain.MemberRole) (*domain.ProjectMember, error)
	ListMembers(ctx context.Context, projectID uint) ([]domain.ProjectMember, error)
	ChangeMemberRole(ctx context.Context, projectID, userID uint, role domain.MemberRole) (*domain.ProjectMember, error)
	RemoveMember(ctx context.Context, projectID, userID uint) error
}

type ProjectService struct {
	projects    repository.ProjectRepository
	memberships repository.MembershipRepository
	users       repository.UserRepository
	logger      *slog.Logger
}

func NewProjectService(projects repository.ProjectRepository, memberships repository.MembershipRepository, users repository.UserRepository, logger *slog.Logger) *ProjectService {
	return &ProjectService{projects: projects, memberships: memberships, users: users, logger: logger}
}

// CreateProject stores the project and enrolls the creator as its admin.
func (s *ProjectService) CreateProject(ctx context.Context, name, description string, creatorID uint) (*domain.Project, error) {
	p := &domain.Project{Name: name, Description: description, CreatedBy: creatorID}
	if err := s.projects.Create(p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	if err := s.memberships.Upsert(&domain.ProjectMember{
		ProjectID: p.ID,
		UserID:    creatorID,
		Role:      domain.RoleAdmin,
	}); err != nil {
		return nil, fmt.Errorf("enroll creator: %w", err)
	}
	s.logger.InfoContext(ctx, "project created", "project_id", p.ID, "created_by", creatorID)
	return p, nil
}

func (s *ProjectService) ListProjects(ctx context.Context, userID uint) ([]repository.ProjectWithRole, error) {
	return s.projects.ListForUser(userID)
}

func (s *ProjectService) GetProject(ctx context.Context, projectID uint) (*domain.Project, error) {
	return s.projects.FindByID(projectID)
}

func (s *ProjectService) UpdateProject(ctx context.Context, projectID uint, name, description string) (*domain.Project, error) {
	return s.projects.Update(projectID, name, description)
}

func (s *ProjectService) DeleteProject(ctx context.Context, projectID uint) error {
	if err := s.projects.Delete(projectID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "project deleted", "project_id", projectID)
	return nil
}

// AddMember enrolls an existing user, looked up by email, into the project.
// Upsert semantics: adding someone who is already a member updates their role.
func (s *ProjectService) AddMember(ctx context.Context, projectID uint, email string, role domain.MemberRole) (*domain.ProjectMember, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	user, err := s.users.FindByEmail(email)
	if err != nil {
		return nil, err
	}
	m := &domain.ProjectMember{ProjectID: projectID, UserID: user.ID, Role: role}
	if err := s.memberships.Upsert(m); err != nil {
		return nil, fmt.Errorf("upsert membership: %w", err)
	}
	return s.memberships.FindByProjectAndUser(projectID, user.ID)
}

func (s *ProjectService) ListMembers(ctx context.Context, projectID uint) ([]domain.ProjectMember, error) {
	return s.memberships.ListByProject(projectID)
}

func (s *ProjectService) ChangeMemberRole(ctx context.Context, projectID, userID uint, role domain.MemberRole) (*domain.ProjectMember, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	current, err := s.memberships.FindByProjectAndUser(projectID, userID)
	if err != nil {
		return nil, err
	}
	if current.Role == domain.RoleAdmin && role != domain.RoleAdmin {
		if err := s.ensureNotLastAdmin(projectID, userID); err != nil {
			return nil, err
		}
	}
	return s.memberships.UpdateRole(projectID, userID, role)
}

func (s *ProjectService) RemoveMember(ctx context.Context, projectID, userID uint) error {
	current, err := s.memberships.FindByProjectAndUser(projectID, userID)
	if err != nil {
		return err
	}
	if current.Role == domain.RoleAdmin {
		if err := s.ensureNotLastAdmin(projectID, userID); err != nil {
			return err
		}
	}
	return s.memberships.Delete(projectID, userID)
}

// ensureNotLastAdmin guards demotion or removal of an admin: a project must
// always keep at least one.
func (s *ProjectService) ensureNotLastAdmin(projectID, userID uint) error {
	members, err := s.memberships.ListByProject(projectID)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	for _, m := range members {
		if m.Role == domain.RoleAdmin && m.UserID != userID {
			return nil
		}
	}
	return ErrLastAdminRemoval
}
