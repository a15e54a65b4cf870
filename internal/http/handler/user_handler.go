package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"
	"github.com/berry-13/vicsam-group-sub002/internal/http/middleware"
	"github.com/berry-13/vicsam-group-sub002/internal/http/response"
	"github.com/berry-13/vicsam-group-sub002/internal/service"
)

type SessionLister interface {
	ListSessions(ctx context.Context, userID uint) ([]domain.Session, error)
}

type UserHandler struct {
	resolver middleware.PermissionResolver
	sessions SessionLister
	dev      bool
}

func NewUserHandler(resolver middleware.PermissionResolver, sessions SessionLister, dev bool) *UserHandler {
	return &UserHandler{resolver: resolver, sessions: sessions, dev: dev}
}

type meResponse struct {
	UUID      string    `json:"uuid,omitempty"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Legacy    bool      `json:"legacy"`
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	roles := identity.Roles
	if roles == nil {
		roles = []string{}
	}
	response.JSON(w, r, http.StatusOK, meResponse{
		UUID:      identity.UserUUID,
		Email:     identity.Email,
		Name:      identity.Name,
		SessionID: identity.SessionID,
		Roles:     roles,
		ExpiresAt: identity.ExpiresAt,
		Legacy:    identity.Legacy,
	})
}

// Permissions returns the caller's effective permissions, resolved from
// storage when a resolver is configured.
func (h *UserHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	perms := identity.Permissions
	if h.resolver != nil {
		resolved, err := h.resolver.ResolvePermissions(r.Context(), identity)
		if err != nil {
			response.DomainError(w, r, err, h.dev)
			return
		}
		perms = resolved
	}
	if perms == nil {
		perms = []string{}
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := userIdentity(w, r)
	if !ok {
		return
	}
	sessions, err := h.sessions.ListSessions(r.Context(), identity.UserID)
	if err != nil {
		response.DomainError(w, r, err, h.dev)
		return
	}
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView{Session: s, Current: s.ID == identity.SessionID})
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": out})
}

type sessionView struct {
	domain.Session
	Current bool `json:"current"`
}

var _ SessionLister = (*service.AuthService)(nil)
