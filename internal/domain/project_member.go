package domain

import "time"

type MemberRole string

const (
	RoleAdmin        MemberRole = "admin"
	RoleProjectAdmin MemberRole = "project-admin"
	RoleMember       MemberRole = "member"
)

// AvailableMemberRoles is the full role set, used by read routes that any
// member may hit and by role validation on member mutations.
var AvailableMemberRoles = []MemberRole{RoleAdmin, RoleProjectAdmin, RoleMember}

func (r MemberRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleProjectAdmin, RoleMember:
		return true
	}
	return false
}

// ProjectMember binds a user to a project with a role. One row per
// (project, user) pair; member adds upsert into this table.
type ProjectMember struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	ProjectID uint       `gorm:"not null;uniqueIndex:idx_project_user" json:"project_id"`
	UserID    uint       `gorm:"not null;uniqueIndex:idx_project_user;index" json:"user_id"`
	Role      MemberRole `gorm:"size:16;not null;default:member" json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
