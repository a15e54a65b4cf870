package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"
	"github.com/berry-13/vicsam-group-sub002/internal/http/response"
	"github.com/berry-13/vicsam-group-sub002/internal/service"
)

type SigningKeyAdmin interface {
	Rotate(ctx context.Context) (string, error)
	Retire(ctx context.Context, kid string) error
}

type UserUnlocker interface {
	UnlockUser(ctx context.Context, userID uint) error
}

type AdminHandler struct {
	keys   SigningKeyAdmin
	legacy service.LegacyTokenRotatorInterface
	users  UserUnlocker
	dev    bool
}

func NewAdminHandler(keys SigningKeyAdmin, legacy service.LegacyTokenRotatorInterface, users UserUnlocker, dev bool) *AdminHandler {
	return &AdminHandler{keys: keys, legacy: legacy, users: users, dev: dev}
}

func (h *AdminHandler) RotateSigningKey(w http.ResponseWriter, r *http.Request) {
	kid, err := h.keys.Rotate(r.Context())
	if err != nil {
		response.DomainError(w, r, err, h.dev)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"kid": kid})
}

func (h *AdminHandler) RetireSigningKey(w http.ResponseWriter, r *http.Request) {
	kid := chi.URLParam(r, "kid")
	if kid == "" {
		response.DomainError(w, r, domain.ErrInvalidInput, h.dev)
		return
	}
	if err := h.keys.Retire(r.Context(), kid); err != nil {
		response.DomainError(w, r, err, h.dev)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"retired": kid})
}

// RotateLegacyToken returns the new static token. It is not retrievable
// afterwards.
func (h *AdminHandler) RotateLegacyToken(w http.ResponseWriter, r *http.Request) {
	if h.legacy == nil {
		response.DomainError(w, r, domain.NewError(domain.CodeNotFound, "legacy token support is disabled", nil), h.dev)
		return
	}
	token, err := h.legacy.Rotate(r.Context())
	if err != nil {
		response.DomainError(w, r, err, h.dev)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"token": token})
}

func (h *AdminHandler) UnlockUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		response.DomainError(w, r, domain.NewError(domain.CodeInvalidInput, "invalid user id", err), h.dev)
		return
	}
	if err := h.users.UnlockUser(r.Context(), uint(id)); err != nil {
		response.DomainError(w, r, err, h.dev)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"unlocked": true})
}
