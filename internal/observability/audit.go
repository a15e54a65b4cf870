package observability

import (
	"context"
	"log/slog"
	"net/http"
)

// Audit writes one structured audit line for an HTTP request.
func Audit(r *http.Request, event string, attrs ...any) {
	base := []any{
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", r.Header.Get("X-Request-Id"),
	}
	base = append(base, attrs...)
	slog.InfoContext(r.Context(), "audit", base...)
}

// AuditEvent writes the log line that mirrors a persisted audit entry.
func AuditEvent(ctx context.Context, logger *slog.Logger, action string, success bool, attrs ...any) {
	base := []any{
		"event", action,
		"success", success,
	}
	base = append(base, attrs...)
	logger.InfoContext(ctx, "audit", base...)
}

// SecurityEvent logs at WARN and counts the event.
func SecurityEvent(ctx context.Context, logger *slog.Logger, event, reason string, attrs ...any) {
	base := []any{
		"event", event,
		"reason", reason,
	}
	base = append(base, attrs...)
	logger.WarnContext(ctx, "security event", base...)
	RecordSecurityEvent(ctx, event, reason)
}
