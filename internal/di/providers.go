package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/berry-13/vicsam-group-sub002/internal/app"
	"github.com/berry-13/vicsam-group-sub002/internal/config"
	"github.com/berry-13/vicsam-group-sub002/internal/database"
	"github.com/berry-13/vicsam-group-sub002/internal/health"
	"github.com/berry-13/vicsam-group-sub002/internal/http/handler"
	"github.com/berry-13/vicsam-group-sub002/internal/http/middleware"
	"github.com/berry-13/vicsam-group-sub002/internal/http/router"
	"github.com/berry-13/vicsam-group-sub002/internal/keys"
	"github.com/berry-13/vicsam-group-sub002/internal/observability"
	"github.com/berry-13/vicsam-group-sub002/internal/repository"
	"github.com/berry-13/vicsam-group-sub002/internal/security"
	"github.com/berry-13/vicsam-group-sub002/internal/service"
)

// Admin is the component set used by one-shot CLI commands.
type Admin struct {
	Config *config.Config
	Logger *slog.Logger
	Store  *repository.Store
	Keys   *keys.Manager
	Auth   *service.AuthService
	Legacy *service.LegacyTokenRotator
}

var infraSet = wire.NewSet(
	provideDatabase,
	provideRedis,
	provideStore,
)

var coreSet = wire.NewSet(
	provideEnvelope,
	provideKeyLocker,
	provideKeyManager,
	providePasswordHasher,
	providePermissionCache,
	provideAuditRecorder,
	provideAuthService,
	provideLegacyTokenRotator,
)

var httpSet = wire.NewSet(
	providePermissionResolver,
	providePermissionEvaluator,
	provideReadiness,
	provideRouter,
	provideHTTPServer,
)

// provideLogger is the plain JSON logger used by one-shot commands.
func provideLogger(cfg *config.Config) *slog.Logger {
	logger := observability.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)
	return logger
}

func provideObservability(ctx context.Context, cfg *config.Config) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, observability.NewLogger(cfg, os.Stdout))
}

// provideRuntimeLogger returns the logger bridged into OTel logs when they
// are enabled.
func provideRuntimeLogger(rt *observability.Runtime) *slog.Logger {
	slog.SetDefault(rt.Logger)
	return rt.Logger
}

func provideDatabase(cfg *config.Config, logger *slog.Logger) (*gorm.DB, func(), error) {
	db, err := database.Open(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, cleanup, nil
}

func provideRedis(cfg *config.Config, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	client, err := database.OpenRedis(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return nil, func() {}, nil
	}
	return client, func() { _ = client.Close() }, nil
}

// provideStore migrates the schema and seeds the system roles. Both steps
// are idempotent.
func provideStore(ctx context.Context, db *gorm.DB, logger *slog.Logger) (*repository.Store, error) {
	if err := repository.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	store := repository.NewStore(db)
	if err := service.SeedSystemRoles(ctx, store, service.SystemRoles, logger); err != nil {
		return nil, fmt.Errorf("seed roles: %w", err)
	}
	return store, nil
}

func provideEnvelope(cfg *config.Config) (*security.Envelope, error) {
	return security.NewEnvelope(cfg.MasterKeyPassphrase, cfg.MasterKeySalt, cfg.MasterKeyKDFIterations)
}

func provideKeyLocker(client redis.UniversalClient) keys.Locker {
	if client == nil {
		return nil
	}
	return keys.NewRedisLocker(client, "", 0)
}

func provideKeyManager(store *repository.Store, env *security.Envelope, locker keys.Locker, logger *slog.Logger, cfg *config.Config) *keys.Manager {
	return keys.NewManager(store.SigningKeys(), env, locker, logger, keys.Options{
		Algorithm: cfg.JWTSigningAlgorithm,
		RSABits:   cfg.JWTRSABits,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
	})
}

func providePasswordHasher(cfg *config.Config) *security.PasswordHasher {
	return security.NewPasswordHasher(security.Argon2Params{
		Memory:      cfg.PasswordArgon2MemoryKiB,
		Iterations:  cfg.PasswordArgon2Time,
		Parallelism: cfg.PasswordArgon2Parallelism,
	}, cfg.PasswordHashConcurrency)
}

func providePermissionCache(client redis.UniversalClient) service.RBACPermissionCacheStore {
	if client == nil {
		return service.NewInMemoryRBACPermissionCacheStore()
	}
	return service.NewRedisRBACPermissionCacheStore(client, "")
}

func provideAuditRecorder(logger *slog.Logger) *service.AuditRecorder {
	return service.NewAuditRecorder(logger)
}

func provideAuthService(
	store *repository.Store,
	hasher *security.PasswordHasher,
	km *keys.Manager,
	audit *service.AuditRecorder,
	cache service.RBACPermissionCacheStore,
	logger *slog.Logger,
	cfg *config.Config,
) *service.AuthService {
	return service.NewAuthService(store, hasher, km, audit, cache, logger, service.AuthConfig{
		AccessTTL:           cfg.JWTAccessTTL,
		RefreshTTL:          cfg.RefreshTokenTTL,
		RefreshPepper:       cfg.RefreshTokenPepper,
		RotateRefreshTokens: cfg.RefreshTokenRotation,
		Lockout: repository.LockoutPolicy{
			MaxAttempts: cfg.LockoutMaxAttempts,
			Duration:    cfg.LockoutDuration,
		},
	})
}

func provideLegacyTokenRotator(cfg *config.Config, client redis.UniversalClient, logger *slog.Logger) *service.LegacyTokenRotator {
	var cache service.LegacyTokenCache
	if client != nil {
		cache = service.NewRedisLegacyTokenCache(client)
	}
	return service.NewLegacyTokenRotator(cache, logger, service.LegacyTokenConfig{
		StaticToken: cfg.LegacyStaticToken,
		MaxAge:      cfg.LegacyTokenMaxAge,
		Keep:        cfg.LegacyTokenKeep,
		Pepper:      cfg.RefreshTokenPepper,
	})
}

func providePermissionResolver(cache service.RBACPermissionCacheStore, auth *service.AuthService, cfg *config.Config, logger *slog.Logger) *service.CachedPermissionResolver {
	return service.NewCachedPermissionResolver(cache, auth, cfg.RBACPermissionCacheTTL, logger)
}

// providePermissionEvaluator whitelists every resource that has a stored
// permission for wildcard use.
func providePermissionEvaluator(ctx context.Context, store *repository.Store, logger *slog.Logger) (*service.PermissionEvaluator, error) {
	evaluator := service.NewPermissionEvaluator(logger, nil)
	if err := evaluator.LoadKnownResources(ctx, store.Permissions()); err != nil {
		return nil, fmt.Errorf("load permission resources: %w", err)
	}
	return evaluator, nil
}

func provideReadiness(db *gorm.DB, client redis.UniversalClient, km *keys.Manager) *health.ProbeRunner {
	checks := []health.Checker{
		health.NewCheck("database", func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
		health.NewCheck("signing_keys", km.Check),
	}
	if client != nil {
		checks = append(checks, health.NewCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}
	return health.NewProbeRunner(2*time.Second, time.Second, checks...)
}

func provideRouter(
	cfg *config.Config,
	logger *slog.Logger,
	auth *service.AuthService,
	km *keys.Manager,
	legacy *service.LegacyTokenRotator,
	resolver *service.CachedPermissionResolver,
	evaluator *service.PermissionEvaluator,
	readiness *health.ProbeRunner,
	client redis.UniversalClient,
) http.Handler {
	dev := cfg.IsDevelopment()
	var limiter middleware.Limiter = middleware.NewLocalLimiter()
	if client != nil {
		limiter = middleware.NewRedisLimiter(client, "")
	}
	mode := middleware.FailClosed
	if cfg.AuthRateLimitFailOpen {
		mode = middleware.FailOpen
	}
	return router.NewRouter(router.Dependencies{
		AuthHandler:        handler.NewAuthHandler(auth, dev),
		UserHandler:        handler.NewUserHandler(resolver, auth, dev),
		AdminHandler:       handler.NewAdminHandler(km, legacy, auth, dev),
		JWKS:               km,
		Authenticator:      auth,
		LegacyValidator:    legacy,
		LegacyPermissions:  cfg.LegacyTokenPermissions,
		Authorizer:         evaluator,
		PermissionResolver: resolver,
		AuthRateLimiter:    middleware.NewRateLimiter(limiter, cfg.AuthRateLimitRPM, time.Minute, mode, "auth").Middleware(),
		Readiness:          readiness,
		Logger:             logger,
		EnableOTelHTTP:     cfg.OTELTracingEnabled || cfg.OTELMetricsEnabled,
	})
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	km *keys.Manager,
	auth *service.AuthService,
	readiness *health.ProbeRunner,
) *app.App {
	return app.New(cfg, logger, server, runtime, km, auth, readiness, nil)
}

func provideAdmin(cfg *config.Config, logger *slog.Logger, store *repository.Store, km *keys.Manager, auth *service.AuthService, legacy *service.LegacyTokenRotator) *Admin {
	return &Admin{Config: cfg, Logger: logger, Store: store, Keys: km, Auth: auth, Legacy: legacy}
}

// NewApp builds the server process. Resources opened while building are
// released by App.StopBackgroundTasks.
func NewApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	a, cleanup, err := InitializeApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.OnStop(cleanup)
	return a, nil
}
