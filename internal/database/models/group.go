package models

// Roles carried in tokens and group rows.
const (
	RoleAdmin   = "admin"
	RoleUser    = "user"
	RoleService = "service"
	// RoleForgotPassword scopes a password-reset token; it is never stored in a group.
	RoleForgotPassword = "forgot_password"
)

// Group IDs are fixed; the table is seeded at startup.
const (
	GroupAdmin   = 1
	GroupUser    = 2
	GroupService = 3
)

// DefaultGroups is the seed content of the groups table.
var DefaultGroups = []Group{
	{ID: GroupAdmin, Role: RoleAdmin},
	{ID: GroupUser, Role: RoleUser},
	{ID: GroupService, Role: RoleService},
}

// GroupIDForRole maps a role to its group. Unknown roles land in the user group.
func GroupIDForRole(role string) int {
	switch role {
	case RoleAdmin:
		return GroupAdmin
	case RoleService:
		return GroupService
	default:
		return GroupUser
	}
}

type Group struct {
	ID   int    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Role string `gorm:"uniqueIndex;not null" json:"role"`
}

func (Group) TableName() string {
	return "groups"
}

// UserGroup is the single role assignment of a user.
type UserGroup struct {
	UserID  string `gorm:"type:varchar(36);primaryKey" json:"user_id"`
	GroupID int    `gorm:"not null;index" json:"group_id"`

	Group *Group `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}

func (UserGroup) TableName() string {
	return "user_groups"
}
