package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ramcharankhv-byte/taskhub/internal/domain"
	"github.com/ramcharankhv-byte/taskhub/internal/security"
)

const defaultAdminEmail = "admin@taskhub.local"

// seedPassword is for local development databases only; production deploys
// never run the seeder.
const seedPassword = "changeme-local"

type SeedReport struct {
	CreatedUsers    int
	CreatedProjects int
	CreatedTasks    int
	Noop            bool
}

// SeedSync populates a local database with a demo workspace: an admin, a
// member, one project with both enrolled, and a few tasks. Safe to run
// repeatedly; existing rows are left untouched.
func SeedSync(db *gorm.DB, adminEmail string) (*SeedReport, error) {
	adminEmail = strings.ToLower(strings.TrimSpace(adminEmail))
	if adminEmail == "" {
		adminEmail = defaultAdminEmail
	}
	report := &SeedReport{}

	admin, created, err := ensureUser(db, adminEmail, "admin")
	if err != nil {
		return nil, err
	}
	if created {
		report.CreatedUsers++
	}
	member, created, err := ensureUser(db, "demo@taskhub.local", "demo")
	if err != nil {
		return nil, err
	}
	if created {
		report.CreatedUsers++
	}

	project, created, err := ensureProject(db, "Getting Started", admin.ID)
	if err != nil {
		return nil, err
	}
	if created {
		report.CreatedProjects++
	}
	if err := ensureMembership(db, project.ID, admin.ID, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if err := ensureMembership(db, project.ID, member.ID, domain.RoleMember); err != nil {
		return nil, err
	}

	seedTasks := []struct {
		title  string
		status domain.TaskStatus
	}{
		{"Invite your team", domain.TaskStatusTodo},
		{"Create your first real project", domain.TaskStatusInProgress},
		{"Read the API docs", domain.TaskStatusDone},
	}
	for _, st := range seedTasks {
		created, err := ensureTask(db, project.ID, admin.ID, st.title, st.status)
		if err != nil {
			return nil, err
		}
		if created {
			report.CreatedTasks++
		}
	}

	report.Noop = report.CreatedUsers == 0 && report.CreatedProjects == 0 && report.CreatedTasks == 0
	return report, nil
}

// VerifyLocalEmail marks a local account's email as verified without the
// emailed link, for development environments with no SMTP.
func VerifyLocalEmail(db *gorm.DB, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return errors.New("email is required")
	}
	var user domain.User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		return err
	}
	return db.Model(&domain.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"is_email_verified":             true,
		"email_verification_token_hash": nil,
		"email_verification_expires_at": nil,
		"updated_at":                    time.Now().UTC(),
	}).Error
}

func ensureUser(db *gorm.DB, email, username string) (*domain.User, bool, error) {
	var existing domain.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	hash, err := security.HashPassword(seedPassword)
	if err != nil {
		return nil, false, fmt.Errorf("hash seed password: %w", err)
	}
	u := &domain.User{
		Email:           email,
		Username:        username,
		PasswordHash:    hash,
		IsEmailVerified: true,
	}
	if err := db.Create(u).Error; err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func ensureProject(db *gorm.DB, name string, createdBy uint) (*domain.Project, bool, error) {
	var existing domain.Project
	err := db.Where("name = ?", name).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	p := &domain.Project{
		Name:        name,
		Description: "A sample project seeded for local development.",
		CreatedBy:   createdBy,
	}
	if err := db.Create(p).Error; err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func ensureMembership(db *gorm.DB, projectID, userID uint, role domain.MemberRole) error {
	var existing domain.ProjectMember
	err := db.Where("project_id = ? AND user_id = ?", projectID, userID).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return db.Create(&domain.ProjectMember{ProjectID: projectID, UserID: userID, Role: role}).Error
}

func ensureTask(db *gorm.DB, projectID, creatorID uint, title string, status domain.TaskStatus) (bool, error) {
	var existing domain.Task
	err := db.Where("project_id = ? AND title = ?", projectID, title).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	t := &domain.Task{
		ProjectID:  projectID,
		Title:      title,
		AssignedBy: creatorID,
		Status:     status,
	}
	if err := db.Create(t).Error; err != nil {
		return false, err
	}
	return true, nil
}
