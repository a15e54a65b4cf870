package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"
	"github.com/berry-13/vicsam-group-sub002/internal/observability"
	"github.com/berry-13/vicsam-group-sub002/internal/repository"
	"github.com/berry-13/vicsam-group-sub002/internal/security"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultRole = "user"

type AuthConfig struct {
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	RefreshPepper       string
	RotateRefreshTokens bool
	Lockout             repository.LockoutPolicy
	DefaultRole         string
	Now                 func() time.Time
}

// PermissionInvalidator drops cached permissions after role or credential
// changes.
type PermissionInvalidator interface {
	InvalidateUser(ctx context.Context, userID uint) error
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	ExpiresIn    int64
	User         *domain.User
}

// RefreshResult.RefreshToken is empty when refresh tokens are not rotated.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	ExpiresIn    int64
}

type AuthService struct {
	repos  repository.Repositories
	hasher *security.PasswordHasher
	signer TokenSigner
	audit  *AuditRecorder
	perms  PermissionInvalidator
	logger *slog.Logger
	cfg    AuthConfig
}

func NewAuthService(
	repos repository.Repositories,
	hasher *security.PasswordHasher,
	signer TokenSigner,
	audit *AuditRecorder,
	perms PermissionInvalidator,
	logger *slog.Logger,
	cfg AuthConfig,
) *AuthService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = DefaultRole
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.Lockout.MaxAttempts <= 0 {
		cfg.Lockout.MaxAttempts = 5
	}
	if cfg.Lockout.Duration <= 0 {
		cfg.Lockout.Duration = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	if audit == nil {
		audit = NewAuditRecorder(logger)
	}
	return &AuthService{repos: repos, hasher: hasher, signer: signer, audit: audit, perms: perms, logger: logger, cfg: cfg}
}

func (s *AuthService) now() time.Time { return s.cfg.Now().UTC() }

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (user *domain.User, err error) {
	ctx, span := startSpan(ctx, "AuthService.Register")
	defer func() { endSpan(span, err) }()

	email := NormalizeEmail(in.Email)
	if addr, perr := mail.ParseAddress(email); perr != nil || addr.Address != email {
		return nil, &domain.Error{Code: domain.CodeInvalidInput, Message: "invalid email address", Fields: []string{"email"}}
	}
	if strength := security.ValidatePasswordStrength(in.Password); !strength.IsValid {
		return nil, domain.WeakPasswordError(strength.Errors)
	}
	roleName := strings.TrimSpace(in.Role)
	if roleName == "" {
		roleName = s.cfg.DefaultRole
	}

	hash, alg, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, err
	}

	user = &domain.User{
		UUID:              uuid.NewString(),
		Email:             email,
		PasswordHash:      hash,
		PasswordAlgorithm: alg,
		FirstName:         strings.TrimSpace(in.FirstName),
		LastName:          strings.TrimSpace(in.LastName),
		IsActive:          true,
	}
	err = s.repos.Transaction(ctx, func(tx repository.Repositories) error {
		if _, err := tx.Users().FindByEmail(ctx, email); err == nil {
			return domain.ErrEmailExists
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return err
		}
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return domain.ErrEmailExists
			}
			return err
		}
		role, err := tx.Roles().FindByName(ctx, roleName)
		if errors.Is(err, repository.ErrRoleNotFound) {
			return &domain.Error{Code: domain.CodeInvalidInput, Message: "unknown role", Fields: []string{"role"}}
		}
		if err != nil {
			return err
		}
		if err := tx.Users().AssignRole(ctx, user.ID, role.ID, nil, nil); err != nil {
			return err
		}
		s.audit.Record(ctx, tx, AuditEvent{
			UserID:     &user.ID,
			Action:     AuditActionRegister,
			Resource:   "user",
			ResourceID: user.UUID,
			Success:    true,
			Details:    map[string]any{"role": roleName},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Login follows a fixed order: lookup, lock check, active check, password
// verification. A locked account is rejected before the password is looked
// at, and unknown emails fail exactly like wrong passwords.
func (s *AuthService) Login(ctx context.Context, email, password string, meta Metadata) (result *LoginResult, err error) {
	ctx, span := startSpan(ctx, "AuthService.Login")
	defer func() {
		endSpan(span, err)
		observability.RecordAuthLogin(ctx, outcome(err))
	}()

	email = NormalizeEmail(email)
	now := s.now()

	user, err := s.repos.Users().FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		s.hasher.VerifyDummy(ctx, password)
		s.audit.Record(ctx, s.repos, AuditEvent{
			Action:   AuditActionLoginFailed,
			Resource: "auth",
			IP:       meta.IP,
			Details:  map[string]any{"reason": "unknown_email", "email_hash": security.HashForStorage(email, s.cfg.RefreshPepper)},
		})
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if user.IsLocked(now) {
		s.audit.Record(ctx, s.repos, AuditEvent{
			UserID: &user.ID, Action: AuditActionLoginFailed, Resource: "auth", IP: meta.IP,
			Details: map[string]any{"reason": "locked"},
		})
		return nil, domain.ErrAccountLocked
	}
	if !user.IsActive {
		s.audit.Record(ctx, s.repos, AuditEvent{
			UserID: &user.ID, Action: AuditActionLoginFailed, Resource: "auth", IP: meta.IP,
			Details: map[string]any{"reason": "disabled"},
		})
		return nil, domain.ErrAccountDisabled
	}

	if !s.hasher.Verify(ctx, password, user.PasswordHash, user.PasswordAlgorithm) {
		return nil, s.recordFailedLogin(ctx, user, meta, now)
	}

	var rehash, rehashAlg string
	if s.hasher.NeedsRehash(user.PasswordHash, user.PasswordAlgorithm) {
		if h, alg, herr := s.hasher.Hash(ctx, password); herr == nil {
			rehash, rehashAlg = h, alg
		} else {
			s.logger.WarnContext(ctx, "password rehash skipped", "user_id", user.ID, "error", herr)
		}
	}

	err = s.repos.Transaction(ctx, func(tx repository.Repositories) error {
		if err := tx.Users().RecordSuccessfulLogin(ctx, user.ID, now); err != nil {
			return err
		}
		if rehash != "" {
			if err := tx.Users().UpdatePassword(ctx, user.ID, rehash, rehashAlg, now); err != nil {
				return err
			}
		}
		issued, err := s.openSession(ctx, tx, user, meta, now)
		if err != nil {
			return err
		}
		s.audit.Record(ctx, tx, AuditEvent{
			UserID: &user.ID, Action: AuditActionLogin, Resource: "session", ResourceID: issued.SessionID,
			Success: true, IP: meta.IP,
			Details: map[string]any{"user_agent": meta.UserAgent, "rehashed": rehash != ""},
		})
		result = issued
		return nil
	})
	if err != nil {
		return nil, err
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	result.User = user
	return result, nil
}

func (s *AuthService) recordFailedLogin(ctx context.Context, user *domain.User, meta Metadata, now time.Time) error {
	res, err := s.repos.Users().RecordFailedLogin(ctx, user.ID, s.cfg.Lockout, now)
	if err != nil {
		return err
	}
	s.audit.Record(ctx, s.repos, AuditEvent{
		UserID: &user.ID, Action: AuditActionLoginFailed, Resource: "auth", IP: meta.IP,
		Details: map[string]any{"reason": "bad_password", "attempts": res.Attempts},
	})
	if res.LockedUntil != nil && res.LockedUntil.After(now) {
		observability.SecurityEvent(ctx, s.logger, "account_locked", "max_failed_attempts",
			"user_id", user.ID, "locked_until", res.LockedUntil.Format(time.RFC3339))
		s.audit.Record(ctx, s.repos, AuditEvent{
			UserID: &user.ID, Action: AuditActionAccountLocked, Resource: "user", ResourceID: user.UUID,
			Success: true, IP: meta.IP,
			Details: map[string]any{"locked_until": res.LockedUntil.Format(time.RFC3339)},
		})
	}
	return domain.ErrInvalidCredentials
}

// openSession creates the session, its first refresh token and the access
// token bound to the session's jti. It must run inside a transaction.
func (s *AuthService) openSession(ctx context.Context, tx repository.Repositories, user *domain.User, meta Metadata, now time.Time) (*LoginResult, error) {
	sessionID, err := security.NewSessionID()
	if err != nil {
		return nil, err
	}
	jti, err := security.NewJTI()
	if err != nil {
		return nil, err
	}
	refresh, err := security.SecureToken(security.TokenBytes)
	if err != nil {
		return nil, err
	}
	refreshHash := security.HashForStorage(refresh, s.cfg.RefreshPepper)
	expiresAt := now.Add(s.cfg.RefreshTTL)

	if err := tx.Sessions().Create(ctx, &domain.Session{
		ID:               sessionID,
		UserID:           user.ID,
		JTI:              jti,
		RefreshTokenHash: refreshHash,
		UserAgent:        truncate(meta.UserAgent, 512),
		IP:               truncate(meta.IP, 64),
		IsActive:         true,
		ExpiresAt:        expiresAt,
		LastActivityAt:   now,
	}); err != nil {
		return nil, err
	}
	if err := tx.RefreshTokens().Create(ctx, &domain.RefreshToken{
		SessionID: sessionID,
		UserID:    user.ID,
		TokenHash: refreshHash,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, err
	}
	access, err := s.issueAccessToken(ctx, tx, user, jti, now)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    sessionID,
		ExpiresIn:    int64(s.cfg.AccessTTL / time.Second),
	}, nil
}

func (s *AuthService) issueAccessToken(ctx context.Context, repos repository.Repositories, user *domain.User, jti string, now time.Time) (string, error) {
	roles, err := repos.Users().RoleNames(ctx, user.ID, now)
	if err != nil {
		return "", err
	}
	perms, err := repos.Users().PermissionNames(ctx, user.ID, now)
	if err != nil {
		return "", err
	}
	return s.signer.Sign(ctx, security.AccessTokenInput{
		Subject:     user.UUID,
		Email:       user.Email,
		Name:        user.DisplayName(),
		Roles:       roles,
		Permissions: perms,
		JTI:         jti,
		TTL:         s.cfg.AccessTTL,
	})
}

// Refresh exchanges a refresh token for a new access token with a new jti.
// Each refresh token is accepted once. Presenting one that was already used
// revokes its whole session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta Metadata) (result *RefreshResult, err error) {
	ctx, span := startSpan(ctx, "AuthService.Refresh")
	defer func() {
		endSpan(span, err)
		observability.RecordAuthRefresh(ctx, outcome(err))
	}()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, domain.ErrInvalidRefreshToken
	}
	now := s.now()
	tok, err := s.repos.RefreshTokens().FindByHash(ctx, security.HashForStorage(refreshToken, s.cfg.RefreshPepper))
	if errors.Is(err, repository.ErrRefreshTokenNotFound) {
		return nil, domain.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, err
	}
	if tok.Revoked || !tok.ExpiresAt.After(now) {
		return nil, domain.ErrInvalidRefreshToken
	}
	if tok.UsedAt != nil {
		s.handleRefreshReuse(ctx, tok, meta, now)
		return nil, domain.ErrInvalidRefreshToken
	}

	err = s.repos.Transaction(ctx, func(tx repository.Repositories) error {
		claimed, err := tx.RefreshTokens().MarkUsed(ctx, tok.ID, now)
		if err != nil {
			return err
		}
		if !claimed {
			return domain.ErrInvalidRefreshToken
		}
		session, err := tx.Sessions().FindByID(ctx, tok.SessionID)
		if errors.Is(err, repository.ErrSessionNotFound) {
			return domain.ErrInvalidRefreshToken
		}
		if err != nil {
			return err
		}
		if !session.IsLive(now) {
			return domain.ErrInvalidRefreshToken
		}
		user, err := tx.Users().FindByID(ctx, tok.UserID)
		if errors.Is(err, repository.ErrUserNotFound) {
			return domain.ErrInvalidRefreshToken
		}
		if err != nil {
			return err
		}
		if !user.IsActive {
			return domain.ErrInvalidRefreshToken
		}

		jti, err := security.NewJTI()
		if err != nil {
			return err
		}
		var nextRefresh, nextHash string
		if s.cfg.RotateRefreshTokens {
			if nextRefresh, err = security.SecureToken(security.TokenBytes); err != nil {
				return err
			}
			nextHash = security.HashForStorage(nextRefresh, s.cfg.RefreshPepper)
			if err := tx.RefreshTokens().Create(ctx, &domain.RefreshToken{
				SessionID: session.ID,
				UserID:    user.ID,
				TokenHash: nextHash,
				ExpiresAt: session.ExpiresAt,
			}); err != nil {
				return err
			}
		}
		if err := tx.Sessions().RotateJTI(ctx, session.ID, jti, nextHash, now); err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return domain.ErrInvalidRefreshToken
			}
			return err
		}
		access, err := s.issueAccessToken(ctx, tx, user, jti, now)
		if err != nil {
			return err
		}
		s.audit.Record(ctx, tx, AuditEvent{
			UserID: &user.ID, Action: AuditActionRefresh, Resource: "session", ResourceID: session.ID,
			Success: true, IP: meta.IP,
			Details: map[string]any{"rotated": s.cfg.RotateRefreshTokens},
		})
		result = &RefreshResult{
			AccessToken:  access,
			RefreshToken: nextRefresh,
			SessionID:    session.ID,
			ExpiresIn:    int64(s.cfg.AccessTTL / time.Second),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *AuthService) handleRefreshReuse(ctx context.Context, tok *domain.RefreshToken, meta Metadata, now time.Time) {
	err := s.repos.Transaction(ctx, func(tx repository.Repositories) error {
		if _, err := tx.Sessions().Deactivate(ctx, tok.SessionID, domain.RevokeReasonReuseDetected, now); err != nil {
			return err
		}
		_, err := tx.RefreshTokens().RevokeBySessionID(ctx, tok.SessionID, domain.RevokeReasonReuseDetected, now)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "revoke session after refresh token reuse", "session_id", tok.SessionID, "error", err)
	}
	observability.SecurityEvent(ctx, s.logger, "refresh_token_reuse", "used_token_presented",
		"user_id", tok.UserID, "session_id", tok.SessionID)
	s.audit.Record(ctx, s.repos, AuditEvent{
		UserID: &tok.UserID, Action: AuditActionRefreshReuse, Resource: "session", ResourceID: tok.SessionID,
		IP: meta.IP,
	})
}

// Logout is idempotent: unknown or already closed sessions are not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) (err error) {
	defer func() { observability.RecordAuthLogout(ctx, outcome(err)) }()
	now := s.now()
	return s.repos.Transaction(ctx, func(tx repository.Repositories) error {
		changed, err := tx.Sessions().Deactivate(ctx, sessionID, domain.RevokeReasonLogout, now)
		if err != nil {
			return err
		}
		if _, err := tx.RefreshTokens().RevokeBySessionID(ctx, sessionID, domain.RevokeReasonLogout, now); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		session, err := tx.Sessions().FindByID(ctx, sessionID)
		if err != nil {
			return err
		}
		s.audit.Record(ctx, tx, AuditEvent{
			UserID: &session.UserID, Action: AuditActionLogout, Resource: "session", ResourceID: sessionID, Success: true,
		})
		return nil
	})
}

func (s *AuthService) LogoutAll(ctx context.Context, userID uint) (err error) {
	defer func() { observability.RecordAuthLogout(ctx, outcome(err)) }()
	now := s.now()
	return s.repos.Transaction(ctx, func(tx repository.Repositories) error {
		n, err := s.revokeAll(ctx, tx, userID, domain.RevokeReasonLogout, now)
		if err != nil {
			return err
		}
		s.audit.Record(ctx, tx, AuditEvent{
			UserID: &userID, Action: AuditActionLogoutAll, Resource: "session", Success: true,
			Details: map[string]any{"sessions": n},
		})
		return nil
	})
}

func (s *AuthService) revokeAll(ctx context.Context, tx repository.Repositories, userID uint, reason string, now time.Time) (int64, error) {
	n, err := tx.Sessions().DeactivateByUserID(ctx, userID, reason, now)
	if err != nil {
		return 0, err
	}
	if _, err := tx.RefreshTokens().RevokeByUserID(ctx, userID, reason, now); err != nil {
		return 0, err
	}
	return n, nil
}

// ChangePassword revokes every session and refresh token of the user, so all
// devices must sign in again.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, current, next string) (err error) {
	ctx, span := startSpan(ctx, "AuthService.ChangePassword")
	defer func() { endSpan(span, err) }()

	user, err := s.repos.Users().FindByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if !s.hasher.Verify(ctx, current, user.PasswordHash, user.PasswordAlgorithm) {
		s.audit.Record(ctx, s.repos, AuditEvent{
			UserID: &user.ID, Action: AuditActionPasswordChange, Resource: "user", ResourceID: user.UUID,
			Details: map[string]any{"reason": "bad_current_password"},
		})
		return domain.ErrInvalidCredentials
	}
	if strength := security.ValidatePasswordStrength(next); !strength.IsValid {
		return domain.WeakPasswordError(strength.Errors)
	}
	hash, alg, err := s.hasher.Hash(ctx, next)
	if err != nil {
		return err
	}
	now := s.now()
	err = s.repos.Transaction(ctx, func(tx repository.Repositories) error {
		if err := tx.Users().UpdatePassword(ctx, user.ID, hash, alg, now); err != nil {
			return err
		}
		n, err := s.revokeAll(ctx, tx, user.ID, domain.RevokeReasonPasswordChanged, now)
		if err != nil {
			return err
		}
		s.audit.Record(ctx, tx, AuditEvent{
			UserID: &user.ID, Action: AuditActionPasswordChange, Resource: "user", ResourceID: user.UUID, Success: true,
			Details: map[string]any{"sessions_revoked": n},
		})
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidatePermissions(ctx, user.ID)
	return nil
}

// Authenticate verifies the token and then requires its jti to match a live
// session of an active user.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (identity *Identity, err error) {
	defer func() { observability.RecordAccessTokenValidation(ctx, outcome(err)) }()

	claims, err := s.signer.Verify(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	now := s.now()
	session, err := s.repos.Sessions().FindLiveByJTI(ctx, claims.ID, now)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, domain.NewError(domain.CodeInvalidToken, "session is no longer active", nil)
	}
	if err != nil {
		return nil, err
	}
	user, err := s.repos.Users().FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	if user.UUID != claims.Subject || !user.IsActive {
		return nil, domain.ErrInvalidToken
	}
	identity = &Identity{
		UserID:      user.ID,
		UserUUID:    user.UUID,
		Email:       claims.Email,
		Name:        claims.Name,
		SessionID:   session.ID,
		JTI:         claims.ID,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

func (s *AuthService) GetUserRoles(ctx context.Context, userID uint) ([]string, error) {
	return s.repos.Users().RoleNames(ctx, userID, s.now())
}

func (s *AuthService) GetUserPermissions(ctx context.Context, userID uint) ([]string, error) {
	return s.repos.Users().PermissionNames(ctx, userID, s.now())
}

func (s *AuthService) ListSessions(ctx context.Context, userID uint) ([]domain.Session, error) {
	return s.repos.Sessions().ListActiveByUserID(ctx, userID, s.now())
}

// AssignRole grants roleName to the user, optionally until expiresAt.
func (s *AuthService) AssignRole(ctx context.Context, userID uint, roleName string, expiresAt *time.Time, assignedBy *uint) error {
	err := s.repos.Transaction(ctx, func(tx repository.Repositories) error {
		user, err := tx.Users().FindByID(ctx, userID)
		if errors.Is(err, repository.ErrUserNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		role, err := tx.Roles().FindByName(ctx, roleName)
		if errors.Is(err, repository.ErrRoleNotFound) {
			return domain.NewError(domain.CodeNotFound, "role not found", err)
		}
		if err != nil {
			return err
		}
		if err := tx.Users().AssignRole(ctx, user.ID, role.ID, expiresAt, assignedBy); err != nil {
			return err
		}
		details := map[string]any{"role": role.Name}
		if expiresAt != nil {
			details["expires_at"] = expiresAt.UTC().Format(time.RFC3339)
		}
		s.audit.Record(ctx, tx, AuditEvent{
			UserID: assignedBy, Action: AuditActionRoleAssigned, Resource: "user", ResourceID: user.UUID,
			Success: true, Details: details,
		})
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidatePermissions(ctx, userID)
	return nil
}

func (s *AuthService) UnlockUser(ctx context.Context, userID uint) error {
	if err := s.repos.Users().Unlock(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	s.audit.Record(ctx, s.repos, AuditEvent{UserID: &userID, Action: AuditActionUserUnlocked, Resource: "user", Success: true})
	return nil
}

// DeactivateUser disables the account and closes all of its sessions. Users
// are never deleted.
func (s *AuthService) DeactivateUser(ctx context.Context, userID uint) error {
	now := s.now()
	err := s.repos.Transaction(ctx, func(tx repository.Repositories) error {
		if err := tx.Users().SetActive(ctx, userID, false); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		n, err := s.revokeAll(ctx, tx, userID, domain.RevokeReasonDeactivated, now)
		if err != nil {
			return err
		}
		s.audit.Record(ctx, tx, AuditEvent{
			UserID: &userID, Action: AuditActionUserDeactivated, Resource: "user", Success: true,
			Details: map[string]any{"sessions_revoked": n},
		})
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidatePermissions(ctx, userID)
	return nil
}

// CleanupExpired marks expired sessions inactive and expired refresh tokens
// revoked. Correctness never depends on it.
func (s *AuthService) CleanupExpired(ctx context.Context) (sessions, tokens int64, err error) {
	now := s.now()
	err = s.repos.Transaction(ctx, func(tx repository.Repositories) error {
		if sessions, err = tx.Sessions().DeactivateExpired(ctx, now); err != nil {
			return err
		}
		tokens, err = tx.RefreshTokens().RevokeExpired(ctx, now)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	if sessions > 0 || tokens > 0 {
		s.logger.InfoContext(ctx, "expired credentials swept", "sessions", sessions, "refresh_tokens", tokens)
	}
	return sessions, tokens, nil
}

func (s *AuthService) invalidatePermissions(ctx context.Context, userID uint) {
	if s.perms == nil {
		return
	}
	if err := s.perms.InvalidateUser(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "permission cache invalidation failed", "user_id", userID, "error", err)
	}
}

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		if code, ok := domain.CodeOf(err); ok {
			span.SetAttributes(attribute.String("auth.error_code", string(code)))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// outcome is the metric status label for err.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if code, ok := domain.CodeOf(err); ok {
		return string(code)
	}
	return "error"
}

// truncate caps s at n bytes without splitting a character. Invalid
// sequences are replaced so the value is always valid UTF-8.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
