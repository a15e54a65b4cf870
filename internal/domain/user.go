package domain

import "time"

const (
	PasswordAlgorithmArgon2id = "argon2id"
	PasswordAlgorithmBcrypt   = "bcrypt"
)

type User struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	UUID                string     `gorm:"size:36;uniqueIndex;not null" json:"uuid"`
	Email               string     `gorm:"size:320;uniqueIndex;not null" json:"email"`
	PasswordHash        string     `gorm:"size:255;not null" json:"-"`
	PasswordAlgorithm   string     `gorm:"size:32;not null" json:"-"`
	FirstName           string     `gorm:"size:100" json:"first_name"`
	LastName            string     `gorm:"size:100" json:"last_name"`
	IsActive            bool       `gorm:"not null;default:true" json:"is_active"`
	IsVerified          bool       `gorm:"not null;default:false" json:"is_verified"`
	FailedLoginAttempts int        `gorm:"not null;default:0" json:"-"`
	LockedUntil         *time.Time `gorm:"index" json:"locked_until,omitempty"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	PasswordChangedAt   *time.Time `json:"password_changed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// DisplayName is the value carried in the access token "name" claim.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.LastName
	}
}

// IsLocked reports whether a lockout window is still open at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

type Role struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description string       `gorm:"size:255" json:"description"`
	IsSystem    bool         `gorm:"not null;default:false" json:"is_system"`
	Permissions []Permission `gorm:"many2many:role_permissions" json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type Permission struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:150;uniqueIndex;not null" json:"name"`
	Resource  string    `gorm:"size:100;index;not null" json:"resource"`
	Action    string    `gorm:"size:50;not null" json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// UserRole is the user to role edge. Expired edges stay in storage and are
// filtered out at read time.
type UserRole struct {
	UserID     uint       `gorm:"primaryKey" json:"user_id"`
	RoleID     uint       `gorm:"primaryKey" json:"role_id"`
	ExpiresAt  *time.Time `gorm:"index" json:"expires_at,omitempty"`
	AssignedBy *uint      `json:"assigned_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
