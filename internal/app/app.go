package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/berry-13/vicsam-group-sub002/internal/config"
	"github.com/berry-13/vicsam-group-sub002/internal/health"
	"github.com/berry-13/vicsam-group-sub002/internal/observability"
)

// KeyInitializer loads or creates the active signing key.
type KeyInitializer interface {
	Init(ctx context.Context) error
}

// SessionSweeper removes expired sessions and refresh tokens.
type SessionSweeper interface {
	CleanupExpired(ctx context.Context) (sessions, tokens int64, err error)
}

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Keys          KeyInitializer
	Sweeper       SessionSweeper
	Readiness     *health.ProbeRunner

	CleanupInterval              time.Duration
	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	stopBackground []func()
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	keys KeyInitializer,
	sweeper SessionSweeper,
	readiness *health.ProbeRunner,
	stopBackground func(),
) *App {
	a := &App{
		Config:                       cfg,
		Logger:                       logger,
		Server:                       server,
		Observability:                runtime,
		Keys:                         keys,
		Sweeper:                      sweeper,
		Readiness:                    readiness,
		CleanupInterval:              cfg.SessionCleanupInterval,
		ShutdownTimeout:              cfg.ShutdownTimeout,
		ShutdownHTTPDrainTimeout:     cfg.ShutdownHTTPDrainTimeout,
		ShutdownObservabilityTimeout: cfg.ShutdownObservabilityTimeout,
	}
	a.OnStop(stopBackground)
	return a
}

// OnStop registers fn to run from StopBackgroundTasks. Hooks run in reverse
// registration order.
func (a *App) OnStop(fn func()) {
	if fn != nil {
		a.stopBackground = append(a.stopBackground, fn)
	}
}

// StopBackgroundTasks releases resources owned outside the run loop, such
// as database and Redis connections.
func (a *App) StopBackgroundTasks() {
	for i := len(a.stopBackground) - 1; i >= 0; i-- {
		a.stopBackground[i]()
	}
	a.stopBackground = nil
}

// Run serves HTTP until ctx is cancelled or a component fails, then shuts
// everything down within ShutdownTimeout. Key initialization runs in the
// background; readiness reports unready until it completes.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.Keys != nil {
		g.Go(func() error {
			if err := a.Keys.Init(gctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error("signing key initialization failed", "error", err)
				return err
			}
			return nil
		})
	}

	if a.Sweeper != nil && a.CleanupInterval > 0 {
		g.Go(func() error {
			a.runCleanup(gctx)
			return nil
		})
	}

	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	err := g.Wait()
	a.StopBackgroundTasks()
	return err
}

func (a *App) runCleanup(ctx context.Context) {
	ticker := time.NewTicker(a.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cleanupOnce(ctx)
		}
	}
}

func (a *App) cleanupOnce(ctx context.Context) {
	sessions, tokens, err := a.Sweeper.CleanupExpired(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			a.Logger.Warn("session cleanup failed", "error", err)
		}
		return
	}
	if sessions > 0 || tokens > 0 {
		a.Logger.Info("expired sessions removed", "sessions", sessions, "refresh_tokens", tokens)
	}
}

func (a *App) shutdown() error {
	total := a.ShutdownTimeout
	if total <= 0 {
		total = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), total)
	defer cancel()

	drain := a.ShutdownHTTPDrainTimeout
	if drain <= 0 || drain > total {
		drain = total
	}
	httpCtx, httpCancel := context.WithTimeout(ctx, drain)
	defer httpCancel()

	var errs []error
	a.Logger.Info("shutting down http server")
	if err := a.Server.Shutdown(httpCtx); err != nil {
		errs = append(errs, err)
	}

	obsTimeout := a.ShutdownObservabilityTimeout
	if obsTimeout <= 0 || obsTimeout > total {
		obsTimeout = total
	}
	obsCtx, obsCancel := context.WithTimeout(ctx, obsTimeout)
	defer obsCancel()
	if err := a.Observability.Shutdown(obsCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
