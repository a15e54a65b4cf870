package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/berry-13/vicsam-group-sub002/internal/health"
	"github.com/berry-13/vicsam-group-sub002/internal/http/handler"
	"github.com/berry-13/vicsam-group-sub002/internal/http/middleware"
	"github.com/berry-13/vicsam-group-sub002/internal/http/response"
	"github.com/berry-13/vicsam-group-sub002/internal/service"
)

const maxRequestBytes = 1 << 20

type Dependencies struct {
	AuthHandler        *handler.AuthHandler
	UserHandler        *handler.UserHandler
	AdminHandler       *handler.AdminHandler
	JWKS               handler.JWKSProvider
	Authenticator      middleware.Authenticator
	LegacyValidator    service.LegacyTokenValidator
	LegacyPermissions  []string
	Authorizer         service.Authorizer
	PermissionResolver middleware.PermissionResolver
	AuthRateLimiter    func(http.Handler) http.Handler
	Readiness          *health.ProbeRunner
	Logger             *slog.Logger
	EnableOTelHTTP     bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.StructuredRequestLogger(dep.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BodyLimit(maxRequestBytes))

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = func(next http.Handler) http.Handler { return next }
	}
	authenticated := middleware.AuthMiddleware(dep.Authenticator, dep.LegacyValidator, dep.LegacyPermissions)
	require := func(perms ...string) func(http.Handler) http.Handler {
		return middleware.RequirePermission(dep.Authorizer, dep.PermissionResolver, perms...)
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})
	if dep.JWKS != nil {
		r.Get("/.well-known/jwks.json", handler.JWKS(dep.JWKS))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/register", dep.AuthHandler.Register)
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
			r.With(authenticated).Post("/logout", dep.AuthHandler.Logout)
			r.With(authenticated, authLimiter).Post("/password", dep.AuthHandler.ChangePassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.Get("/me", dep.UserHandler.Me)
			r.Get("/me/permissions", dep.UserHandler.Permissions)
			r.With(require("sessions.read")).Get("/me/sessions", dep.UserHandler.Sessions)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticated)
			r.With(require("keys.rotate")).Post("/keys/rotate", dep.AdminHandler.RotateSigningKey)
			r.With(require("keys.rotate")).Post("/keys/{kid}/retire", dep.AdminHandler.RetireSigningKey)
			r.With(require("tokens.*")).Post("/legacy-token/rotate", dep.AdminHandler.RotateLegacyToken)
			r.With(require("users.unlock")).Post("/users/{id}/unlock", dep.AdminHandler.UnlockUser)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
