package repository

import (
	"context"
	"errors"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"
	"github.com/berry-13/vicsam-group-sub002/internal/observability"

	"gorm.io/gorm"
)

// ErrDuplicate is returned when a unique constraint rejects a write.
var ErrDuplicate = errors.New("duplicate record")

// Repositories is the credential store seen by the services. Implementations
// returned inside Transaction share one database transaction.
type Repositories interface {
	Users() UserRepository
	Roles() RoleRepository
	Permissions() PermissionRepository
	Sessions() SessionRepository
	RefreshTokens() RefreshTokenRepository
	SigningKeys() SigningKeyRepository
	Audit() AuditRepository

	// Transaction runs fn atomically. Any error or panic rolls back every
	// write made through the Repositories passed to fn. Nested calls use
	// savepoints.
	Transaction(ctx context.Context, fn func(Repositories) error) error
}

type Store struct{ db *gorm.DB }

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Users() UserRepository { return NewUserRepository(s.db) }
func (s *Store) Roles() RoleRepository { return NewRoleRepository(s.db) }
func (s *Store) Permissions() PermissionRepository { return NewPermissionRepository(s.db) }
func (s *Store) Sessions() SessionRepository { return NewSessionRepository(s.db) }
func (s *Store) RefreshTokens() RefreshTokenRepository { return NewRefreshTokenRepository(s.db) }
func (s *Store) SigningKeys() SigningKeyRepository { return NewSigningKeyRepository(s.db) }
func (s *Store) Audit() AuditRepository { return NewAuditRepository(s.db) }

func (s *Store) Transaction(ctx context.Context, fn func(Repositories) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "store", "transaction", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "store", "transaction", "success")
	return nil
}

// Ping checks database connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// AutoMigrate creates or updates every table the engine uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Role{},
		&domain.Permission{},
		&domain.UserRole{},
		&domain.Session{},
		&domain.RefreshToken{},
		&domain.SigningKey{},
		&domain.AuditEntry{},
	)
}

// record reports the outcome of one repository call and passes err through.
func record(ctx context.Context, entity, op string, err error, notFound ...error) error {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		status = "not_found"
	default:
		status = "error"
		for _, nf := range notFound {
			if errors.Is(err, nf) {
				status = "not_found"
				break
			}
		}
	}
	observability.RecordRepositoryOperation(ctx, entity, op, status)
	return err
}

func translateWriteError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}
