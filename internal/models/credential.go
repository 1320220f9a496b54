package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Credential is the stored OAuth2 grant for one marketplace account.
type Credential struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	AccountID    string    `json:"account_id" gorm:"index;not null"`
	UserID       int64     `json:"user_id"`
	AccessToken  string    `json:"access_token" gorm:"not null"`
	RefreshToken string    `json:"refresh_token" gorm:"not null"`
	Scope        string    `json:"scope"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"not null"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime:false;index"`
	Version      int64     `json:"version" gorm:"not null;default:0"`
}

func (Credential) TableName() string {
	return "meli_credentials"
}

// UsableAt reports whether the access token can still be sent at now,
// keeping margin in reserve.
func (c *Credential) UsableAt(now time.Time, margin time.Duration) bool {
	return now.Before(c.ExpiresAt.Add(-margin))
}

func (c *Credential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}
