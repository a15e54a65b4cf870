package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"
	"github.com/berry-13/vicsam-group-sub002/internal/http/response"
	"github.com/berry-13/vicsam-group-sub002/internal/service"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*service.Identity, error)
}

// AuthMiddleware accepts a bearer access token. When legacy is set, bearer
// values that are not JWTs are checked against the legacy static token and
// receive legacyPermissions.
func AuthMiddleware(auth Authenticator, legacy service.LegacyTokenValidator, legacyPermissions []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				response.Error(w, r, http.StatusUnauthorized, string(domain.CodeInvalidToken), "missing access token", nil)
				return
			}

			var identity *service.Identity
			if legacy != nil && !looksLikeJWT(raw) {
				if res := legacy.Validate(r.Context(), raw); res.Valid {
					identity = &service.Identity{
						Legacy:      true,
						Permissions: append([]string(nil), legacyPermissions...),
					}
				}
			} else {
				identity, _ = auth.Authenticate(r.Context(), raw)
			}
			if identity == nil {
				response.Error(w, r, http.StatusUnauthorized, string(domain.CodeInvalidToken), domain.ErrInvalidToken.Message, nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func WithIdentity(ctx context.Context, identity *service.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

func IdentityFromContext(ctx context.Context) (*service.Identity, bool) {
	id, ok := ctx.Value(IdentityContextKey).(*service.Identity)
	return id, ok && id != nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

func looksLikeJWT(raw string) bool {
	return strings.Count(raw, ".") == 2
}
