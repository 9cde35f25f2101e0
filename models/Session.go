package models

import (
	"time"

	"gorm.io/gorm"
)

// Session is an authenticated portal login. The API key handed to the
// client is stored hashed; the plaintext is returned exactly once.
type Session struct {
	gorm.Model

	TokenHash string `gorm:"index"`
	ExpiresAt time.Time

	HolderID   string `gorm:"index"`
	HolderName string
	Document   string
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
