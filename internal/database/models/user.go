package models

type User struct {
	ID        string  `gorm:"type:varchar(36);primaryKey" json:"id"`
	CompanyID string  `gorm:"type:varchar(64);index;not null" json:"company_id"`
	AddressID string  `gorm:"type:varchar(36);not null" json:"-"`
	Hash      string  `gorm:"not null" json:"-"`
	Username  string  `gorm:"uniqueIndex;not null" json:"username"`
	FullName  string  `gorm:"not null;default:'NoNa'" json:"full_name"`
	Email     *string `gorm:"uniqueIndex" json:"email"`
	Phone     *string `json:"phone"`
	Active    bool    `gorm:"not null;default:false" json:"active"`
	Notes     *string `json:"notes"`
	Method    *string `json:"method"` // delivery method tag
	Timestamps

	// Relationships
	Address   *Address   `gorm:"foreignKey:AddressID" json:"address,omitempty"`
	UserGroup *UserGroup `gorm:"foreignKey:UserID" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// Role returns the role of the preloaded group, or "" when it was not loaded.
func (u *User) Role() string {
	if u.UserGroup == nil || u.UserGroup.Group == nil {
		return ""
	}
	return u.UserGroup.Group.Role
}
