package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the single persisted entity: a waitlist signup, optionally
// linked to a Google identity after the first admin sign-in.
type User struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string    `gorm:"size:255;not null" json:"name"`
	Email             string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	GoogleID          *string   `gorm:"size:255;uniqueIndex" json:"-"`
	GmailRefreshToken *string   `gorm:"size:512" json:"-"`
	IsAdmin           bool      `gorm:"default:false" json:"isAdmin"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"-"`
}
