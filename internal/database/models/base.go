package models

import "time"

// Timestamps is embedded by every table. Records are hard deleted, so there is no DeletedAt.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
