package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta      `json:"meta"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Meta: buildMeta(r)})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &apiError{Code: code, Message: message, Details: details}, Meta: buildMeta(r)})
}

var statusByCode = map[domain.ErrorCode]int{
	domain.CodeEmailExists:         http.StatusConflict,
	domain.CodeWeakPassword:        http.StatusBadRequest,
	domain.CodeInvalidInput:        http.StatusBadRequest,
	domain.CodeInvalidCredentials:  http.StatusUnauthorized,
	domain.CodeAccountLocked:       http.StatusLocked,
	domain.CodeAccountDisabled:     http.StatusForbidden,
	domain.CodeInvalidRefreshToken: http.StatusUnauthorized,
	domain.CodeInvalidToken:        http.StatusUnauthorized,
	domain.CodeSessionError:        http.StatusUnauthorized,
	domain.CodeTokenError:          http.StatusUnauthorized,
	domain.CodeCryptoError:         http.StatusServiceUnavailable,
	domain.CodeNotFound:            http.StatusNotFound,
}

// StatusFor returns the HTTP status for err's domain code, or 500.
func StatusFor(err error) int {
	if code, ok := domain.CodeOf(err); ok {
		if status, ok := statusByCode[code]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// DomainError writes err using its stable code. Validation fields are always
// returned; the underlying error text only when dev is set.
func DomainError(w http.ResponseWriter, r *http.Request, err error, dev bool) {
	status := StatusFor(err)
	var de *domain.Error
	if !errors.As(err, &de) {
		slog.ErrorContext(r.Context(), "unhandled request error", "path", r.URL.Path, "error", err)
		var details any
		if dev {
			details = map[string]string{"error": err.Error()}
		}
		Error(w, r, status, "InternalError", "internal server error", details)
		return
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "code", de.Code, "error", err)
	}
	details := map[string]any{}
	if len(de.Fields) > 0 {
		details["fields"] = de.Fields
	}
	if dev && de.Err != nil {
		details["error"] = err.Error()
	}
	if len(details) == 0 {
		Error(w, r, status, string(de.Code), de.Message, nil)
		return
	}
	Error(w, r, status, string(de.Code), de.Message, details)
}

func buildMeta(r *http.Request) meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}
