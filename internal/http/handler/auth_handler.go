package handler

import (
	"net/http"
	"strings"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"
	"github.com/berry-13/vicsam-group-sub002/internal/http/middleware"
	"github.com/berry-13/vicsam-group-sub002/internal/http/response"
	"github.com/berry-13/vicsam-group-sub002/internal/service"
)

type AuthHandler struct {
	auth service.AuthServiceInterface
	dev  bool
}

func NewAuthHandler(auth service.AuthServiceInterface, dev bool) *AuthHandler {
	return &AuthHandler{auth: auth, dev: dev}
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	All bool `json:"all"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	SessionID    string       `json:"session_id"`
	User         *domain.User `json:"user,omitempty"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.DomainError(w, r, err, h.dev)
		return
	}
	user, err := h.auth.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
	})
	if err != nil {
		response.DomainError(w, r, err, h.dev)
		return
	}
	response.JSON(w, r, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.DomainError(w, r, err, h.dev)
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password, requestMetadata(r))
	if err != nil {
		response.DomainError(w, r, err, h.dev)
		return
	}
	response.JSON(w, r, http.StatusOK, tokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    res.ExpiresIn,
		SessionID:    res.SessionID,
		User:         res.User,
	})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.DomainError(w, r, err, h.dev)
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		response.DomainError(w, r, domain.ErrInvalidRefreshToken, h.dev)
		return
	}
	res, err := h.auth.Refresh(r.Context(), req.RefreshToken, requestMetadata(r))
	if err != nil {
		response.DomainError(w, r, err, h.dev)
		return
	}
	response.JSON(w, r, http.StatusOK, tokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    res.ExpiresIn,
		SessionID:    res.SessionID,
	})
}

// Logout ends the caller's session, or every session of the user when the
// body sets "all". An empty body is accepted.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := userIdentity(w, r)
	if !ok {
		return
	}
	var req logoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			response.DomainError(w, r, err, h.dev)
			return
		}
	}
	var err error
	if req.All {
		err = h.auth.LogoutAll(r.Context(), identity.UserID)
	} else {
		err = h.auth.Logout(r.Context(), identity.SessionID)
	}
	if err != nil {
		response.DomainError(w, r, err, h.dev)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"logged_out": true})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := userIdentity(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.DomainError(w, r, err, h.dev)
		return
	}
	if err := h.auth.ChangePassword(r.Context(), identity.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		response.DomainError(w, r, err, h.dev)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"password_changed": true})
}

// userIdentity rejects legacy static-token callers, which have no user.
func userIdentity(w http.ResponseWriter, r *http.Request) (*service.Identity, bool) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return nil, false
	}
	if identity.Legacy {
		response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "endpoint requires a user session", nil)
		return nil, false
	}
	return identity, true
}
