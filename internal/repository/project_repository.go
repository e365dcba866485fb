package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/ramcharankhv-byte/taskhub/internal/domain"
)

// ProjectWithRole is a project row joined with the querying user's membership
// role and the total member count.
type ProjectWithRole struct {
	domain.Project
	Role        domain.MemberRole `json:"role"`
	MemberCount int64             `json:"member_count"`
}

type ProjectRepository interface {
	Create(p *domain.Project) error
	FindByID(id uint) (*domain.Project, error)
	ListForUser(userID uint) ([]ProjectWithRole, error)
	Update(id uint, name, description string) (*domain.Project, error)
	Delete(id uint) error
}

type projectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

func (r *projectRepository) Create(p *domain.Project) error {
	return r.db.Create(p).Error
}

func (r *projectRepository) FindByID(id uint) (*domain.Project, error) {
	var p domain.Project
	if err := r.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *projectRepository) ListForUser(userID uint) ([]ProjectWithRole, error) {
	var rows []ProjectWithRole
	err := r.db.Table("projects").
		Select("projects.*, project_members.role AS role, " +
			"(SELECT COUNT(*) FROM project_members pm2 WHERE pm2.project_id = projects.id) AS member_count").
		Joins("JOIN project_members ON project_members.project_id = projects.id").
		Where("project_members.user_id = ?", userID).
		Order("projects.created_at").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *projectRepository) Update(id uint, name, description string) (*domain.Project, error) {
	res := r.db.Model(&domain.Project{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":        name,
		"description": description,
	})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrProjectNotFound
	}
	return r.FindByID(id)
}

func (r *projectRepository) Delete(id uint) error {
	res := r.db.Delete(&domain.Project{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProjectNotFound
	}
	return nil
}
