package domain

import "time"

const (
	RevokeReasonLogout          = "logout"
	RevokeReasonPasswordChanged = "password_changed"
	RevokeReasonExpired         = "expired"
	RevokeReasonRotated         = "rotated"
	RevokeReasonReuseDetected   = "reuse_detected"
	RevokeReasonDeactivated     = "user_deactivated"
)

type Session struct {
	ID               string     `gorm:"primaryKey;size:64" json:"id"`
	UserID           uint       `gorm:"index;not null" json:"user_id"`
	JTI              string     `gorm:"column:jti;size:64;uniqueIndex;not null" json:"-"`
	RefreshTokenHash string     `gorm:"size:128;index;not null" json:"-"`
	UserAgent        string     `gorm:"size:512" json:"user_agent"`
	IP               string     `gorm:"size:64" json:"ip"`
	IsActive         bool       `gorm:"index;not null;default:true" json:"is_active"`
	ExpiresAt        time.Time  `gorm:"index;not null" json:"expires_at"`
	LastActivityAt   time.Time  `gorm:"not null" json:"last_activity_at"`
	RevokedAt        *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	RevokedReason    *string    `gorm:"size:64" json:"revoked_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsLive reports whether the session can still back an access token.
func (s *Session) IsLive(now time.Time) bool {
	return s.IsActive && s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// RefreshToken stores only the hash of the secret handed to the client.
type RefreshToken struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	SessionID     string     `gorm:"size:64;index;not null" json:"session_id"`
	UserID        uint       `gorm:"index;not null" json:"user_id"`
	TokenHash     string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	ExpiresAt     time.Time  `gorm:"index;not null" json:"expires_at"`
	UsedAt        *time.Time `json:"used_at,omitempty"`
	Revoked       bool       `gorm:"index;not null;default:false" json:"revoked"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	RevokedReason *string    `gorm:"size:64" json:"revoked_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
