package models

import (
	"time"

	"golang.org/x/oauth2"
)

// Credential is the stored access credential for the scheduling API
type Credential struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Provider     string    `gorm:"uniqueIndex;not null" json:"provider"`
	AccessToken  string    `gorm:"not null" json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Valid returns true if an access token is present
func (c *Credential) Valid() bool {
	return c != nil && c.AccessToken != ""
}

// Token converts the credential to an oauth2 token
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
	}
}

// SettingsRecord persists the serialized Settings for one content type
type SettingsRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ContentType string    `gorm:"uniqueIndex;not null" json:"content_type"`
	Payload     string    `gorm:"type:text;not null" json:"payload"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
