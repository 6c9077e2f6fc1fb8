package models

import "time"

// Token is the one stored credential of a user; ID is the user ID.
type Token struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Token     string    `gorm:"type:text;not null"`
	ExpiresAt time.Time `gorm:"index"`
	Timestamps
}

func (Token) TableName() string {
	return "tokens"
}
