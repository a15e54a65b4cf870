package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"
	"github.com/berry-13/vicsam-group-sub002/internal/keys"
	"github.com/berry-13/vicsam-group-sub002/internal/repository"
	"github.com/berry-13/vicsam-group-sub002/internal/security"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testPassword = "Str0ng!Pass1"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStoreForTest(t *testing.T) *repository.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := SeedSystemRoles(context.Background(), repository.NewStore(db), SystemRoles, discardLogger()); err != nil {
		t.Fatalf("seed roles: %v", err)
	}
	return repository.NewStore(db)
}

type authFixture struct {
	store *repository.Store
	keys  *keys.Manager
	svc   *AuthService
	cache *InMemoryRBACPermissionCacheStore
	clock *testClock
}

func newAuthFixture(t *testing.T, configure func(*AuthConfig)) *authFixture {
	t.Helper()
	store := newStoreForTest(t)
	env, err := security.NewEnvelope("service-test-passphrase", "service-test-salt-0123", security.MinKDFIterations)
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	km := keys.NewManager(store.SigningKeys(), env, nil, discardLogger(), keys.Options{
		Algorithm: domain.SigningAlgorithmES256,
		Issuer:    "authd-test",
		Audience:  "authd-test-clients",
	})
	if err := km.Init(context.Background()); err != nil {
		t.Fatalf("init key manager: %v", err)
	}

	clock := newTestClock()
	cfg := AuthConfig{
		AccessTTL:           15 * time.Minute,
		RefreshTTL:          24 * time.Hour,
		RefreshPepper:       "test-pepper",
		RotateRefreshTokens: true,
		Lockout:             repository.LockoutPolicy{MaxAttempts: 5, Duration: 30 * time.Minute},
		Now:                 clock.Now,
	}
	if configure != nil {
		configure(&cfg)
	}
	cache := NewInMemoryRBACPermissionCacheStore()
	hasher := security.NewPasswordHasher(security.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1}, 4)
	svc := NewAuthService(store, hasher, km, NewAuditRecorder(discardLogger()), cache, discardLogger(), cfg)
	return &authFixture{store: store, keys: km, svc: svc, cache: cache, clock: clock}
}

func (f *authFixture) register(t *testing.T, email string) *domain.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), RegisterInput{Email: email, Password: testPassword, FirstName: "Test"})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return user
}

func (f *authFixture) login(t *testing.T, email string) *LoginResult {
	t.Helper()
	res, err := f.svc.Login(context.Background(), email, testPassword, Metadata{IP: "127.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return res
}

func assertCode(t *testing.T, err error, want domain.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", want)
	}
	if got, ok := domain.CodeOf(err); !ok || got != want {
		t.Fatalf("expected %s, got %v", want, err)
	}
}
