package domain

import "time"

// AuditEntry is append-only.
type AuditEntry struct {
	ID         string    `gorm:"primaryKey;size:26" json:"id"`
	UserID     *uint     `gorm:"index" json:"user_id,omitempty"`
	Action     string    `gorm:"size:64;index;not null" json:"action"`
	Resource   string    `gorm:"size:64;not null" json:"resource"`
	ResourceID *string   `gorm:"size:64" json:"resource_id,omitempty"`
	Details    string    `gorm:"type:text" json:"details,omitempty"`
	Success    bool      `gorm:"not null" json:"success"`
	IP         string    `gorm:"size:64" json:"ip,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}
