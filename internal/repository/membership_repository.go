package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ramcharankhv-byte/taskhub/internal/domain"
)

type MembershipRepository interface {
	FindByProjectAndUser(projectID, userID uint) (*domain.ProjectMember, error)
	Upsert(m *domain.ProjectMember) error
	ListByProject(projectID uint) ([]domain.ProjectMember, error)
	UpdateRole(projectID, userID uint, role domain.MemberRole) (*domain.ProjectMember, error)
	Delete(projectID, userID uint) error
}

type membershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) FindByProjectAndUser(projectID, userID uint) (*domain.ProjectMember, error) {
	var m domain.ProjectMember
	err := r.db.Where("project_id = ? AND user_id = ?", projectID, userID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Upsert inserts the membership or, when the (project, user) row already
// exists, updates its role. One row per pair, always.
func (r *membershipRepository) Upsert(m *domain.ProjectMember) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "updated_at"}),
	}).Create(m).Error
}

func (r *membershipRepository) ListByProject(projectID uint) ([]domain.ProjectMember, error) {
	var members []domain.ProjectMember
	err := r.db.
		Preload("User").
		Where("project_id = ?", projectID).
		Order("created_at").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *membershipRepository) UpdateRole(projectID, userID uint, role domain.MemberRole) (*domain.ProjectMember, error) {
	res := r.db.Model(&domain.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Update("role", role)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrMembershipNotFound
	}
	return r.FindByProjectAndUser(projectID, userID)
}

func (r *membershipRepository) Delete(projectID, userID uint) error {
	res := r.db.Where("project_id = ? AND user_id = ?", projectID, userID).Delete(&domain.ProjectMember{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMembershipNotFound
	}
	return nil
}
