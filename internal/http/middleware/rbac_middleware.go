package middleware

import (
	"context"
	"net/http"

	"github.com/berry-13/vicsam-group-sub002/internal/http/response"
	"github.com/berry-13/vicsam-group-sub002/internal/service"
)

type PermissionResolver interface {
	ResolvePermissions(ctx context.Context, identity *service.Identity) ([]string, error)
}

// RequirePermission allows the request only when the identity holds every
// listed permission. resolver may be nil, in which case the permissions
// embedded in the access token are used.
func RequirePermission(authz service.Authorizer, resolver PermissionResolver, permissions ...string) func(http.Handler) http.Handler {
	return requirePermissions(authz, resolver, permissions, true)
}

// RequireAnyPermission allows the request when any listed permission is held.
func RequireAnyPermission(authz service.Authorizer, resolver PermissionResolver, permissions ...string) func(http.Handler) http.Handler {
	return requirePermissions(authz, resolver, permissions, false)
}

func requirePermissions(authz service.Authorizer, resolver PermissionResolver, required []string, all bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if ok && resolver != nil {
				perms, err := resolver.ResolvePermissions(r.Context(), identity)
				if err != nil {
					response.Error(w, r, http.StatusServiceUnavailable, "RBAC_UNAVAILABLE", "permission resolution unavailable", nil)
					return
				}
				resolved := *identity
				resolved.Permissions = perms
				identity = &resolved
			}

			decision := authz.EvaluateContext(r.Context(), identity, required, all)
			switch {
			case decision.Allowed:
				next.ServeHTTP(w, r)
			case decision.Reason == service.DecisionNotAuthenticated:
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
			default:
				response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient permission", nil)
			}
		})
	}
}
