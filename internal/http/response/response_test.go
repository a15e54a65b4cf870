package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"
)

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	errObj, _ := env["error"].(map[string]any)
	return errObj
}

func TestDomainErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrEmailExists, http.StatusConflict, "EmailExists"},
		{domain.WeakPasswordError([]string{"too short"}), http.StatusBadRequest, "WeakPassword"},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized, "InvalidCredentials"},
		{domain.ErrAccountLocked, http.StatusLocked, "AccountLocked"},
		{domain.ErrAccountDisabled, http.StatusForbidden, "AccountDisabled"},
		{domain.ErrInvalidRefreshToken, http.StatusUnauthorized, "InvalidRefreshToken"},
		{domain.CryptoError("decrypt", errors.New("bad tag")), http.StatusServiceUnavailable, "CryptoError"},
		{domain.ErrNotFound, http.StatusNotFound, "NotFound"},
		{errors.New("boom"), http.StatusInternalServerError, "InternalError"},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			rr := httptest.NewRecorder()
			DomainError(rr, httptest.NewRequest(http.MethodGet, "/", nil), tc.err, false)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if got := decode(t, rr)["code"]; got != tc.code {
				t.Fatalf("expected code %s, got %v", tc.code, got)
			}
		})
	}
}

func TestDomainErrorDetailOnlyInDevelopment(t *testing.T) {
	err := domain.CryptoError("decrypt signing key", errors.New("cipher: message authentication failed"))

	rr := httptest.NewRecorder()
	DomainError(rr, httptest.NewRequest(http.MethodGet, "/", nil), err, false)
	if details := decode(t, rr)["details"]; details != nil {
		t.Fatalf("production response leaked details: %v", details)
	}

	rr = httptest.NewRecorder()
	DomainError(rr, httptest.NewRequest(http.MethodGet, "/", nil), err, true)
	details, _ := decode(t, rr)["details"].(map[string]any)
	if details["error"] != err.Error() {
		t.Fatalf("development response should carry the error text, got %v", details)
	}
}

func TestDomainErrorAlwaysReturnsValidationFields(t *testing.T) {
	rr := httptest.NewRecorder()
	DomainError(rr, httptest.NewRequest(http.MethodPost, "/", nil), domain.WeakPasswordError([]string{"password is too common"}), false)
	details, _ := decode(t, rr)["details"].(map[string]any)
	fields, _ := details["fields"].([]any)
	if len(fields) != 1 || fields[0] != "password is too common" {
		t.Fatalf("unexpected fields: %v", details)
	}
}
