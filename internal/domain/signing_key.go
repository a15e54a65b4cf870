package domain

import "time"

const (
	SigningAlgorithmRS256 = "RS256"
	SigningAlgorithmES256 = "ES256"
)

// ActiveSigningKeySlot is the only value allowed in SigningKey.ActiveSlot.
// The unique index on the column leaves room for a single active key.
const ActiveSigningKeySlot = 1

type SigningKey struct {
	ID                  uint       `gorm:"primaryKey" json:"-"`
	KeyID               string     `gorm:"size:64;uniqueIndex;not null" json:"kid"`
	Algorithm           string     `gorm:"size:16;not null" json:"alg"`
	PublicKey           string     `gorm:"type:text;not null" json:"public_key"`
	EncryptedPrivateKey string     `gorm:"type:text;not null" json:"-"`
	IV                  string     `gorm:"size:64;not null" json:"-"`
	AuthTag             string     `gorm:"size:64;not null" json:"-"`
	IsActive            bool       `gorm:"index;not null;default:false" json:"is_active"`
	ActiveSlot          *int       `gorm:"uniqueIndex" json:"-"`
	RotatedAt           *time.Time `json:"rotated_at,omitempty"`
	RetiredAt           *time.Time `gorm:"index" json:"retired_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}
