package database

import (
	"gorm.io/gorm"

	"github.com/ramcharankhv-byte/taskhub/internal/domain"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Project{},
		&domain.ProjectMember{},
		&domain.Task{},
		&domain.TaskAttachment{},
		&domain.SubTask{},
	)
}
