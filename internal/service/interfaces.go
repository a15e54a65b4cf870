package service

import (
	"context"
	"time"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"
	"github.com/berry-13/vicsam-group-sub002/internal/security"
)

// TokenSigner is the part of the key manager the session engine depends on.
type TokenSigner interface {
	Sign(ctx context.Context, in security.AccessTokenInput) (string, error)
	Verify(ctx context.Context, raw string) (*security.Claims, error)
}

type AuthServiceInterface interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, password string, meta Metadata) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string, meta Metadata) (*RefreshResult, error)
	Logout(ctx context.Context, sessionID string) error
	LogoutAll(ctx context.Context, userID uint) error
	ChangePassword(ctx context.Context, userID uint, current, next string) error
	Authenticate(ctx context.Context, accessToken string) (*Identity, error)
	GetUserRoles(ctx context.Context, userID uint) ([]string, error)
	GetUserPermissions(ctx context.Context, userID uint) ([]string, error)
}

type Authorizer interface {
	Evaluate(identity *Identity, required []string) Decision
	EvaluateAny(identity *Identity, required []string) Decision
	EvaluateContext(ctx context.Context, identity *Identity, required []string, all bool) Decision
}

type LegacyTokenValidator interface {
	Validate(ctx context.Context, token string) LegacyValidation
}

type LegacyTokenRotatorInterface interface {
	LegacyTokenValidator
	Rotate(ctx context.Context) (string, error)
}

type KeyRotator interface {
	Rotate(ctx context.Context) (string, error)
}

// Metadata describes the client making a request.
type Metadata struct {
	IP        string
	UserAgent string
}

// Identity is an authenticated principal. Legacy identities come from the
// static token and carry no user or session.
type Identity struct {
	UserID      uint
	UserUUID    string
	Email       string
	Name        string
	SessionID   string
	JTI         string
	Roles       []string
	Permissions []string
	ExpiresAt   time.Time
	Legacy      bool
}
