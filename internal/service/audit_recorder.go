package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"
	"github.com/berry-13/vicsam-group-sub002/internal/observability"
	"github.com/berry-13/vicsam-group-sub002/internal/repository"
	"github.com/berry-13/vicsam-group-sub002/internal/security"
)

const (
	AuditActionRegister          = "register"
	AuditActionLogin             = "login"
	AuditActionLoginFailed       = "login_failed"
	AuditActionAccountLocked     = "account_locked"
	AuditActionRefresh           = "token_refresh"
	AuditActionRefreshReuse      = "refresh_token_reuse"
	AuditActionLogout            = "logout"
	AuditActionLogoutAll         = "logout_all"
	AuditActionPasswordChange    = "password_change"
	AuditActionRoleAssigned      = "role_assigned"
	AuditActionUserUnlocked      = "user_unlocked"
	AuditActionUserDeactivated   = "user_deactivated"
	AuditActionLegacyTokenRotate = "legacy_token_rotated"
)

type AuditEvent struct {
	UserID     *uint
	Action     string
	Resource   string
	ResourceID string
	Success    bool
	IP         string
	Details    map[string]any
}

// AuditRecorder persists audit entries without ever failing the caller. When
// repos is a transaction the write runs in a savepoint, so a failed audit
// insert rolls back alone.
type AuditRecorder struct {
	logger *slog.Logger
}

func NewAuditRecorder(logger *slog.Logger) *AuditRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRecorder{logger: logger}
}

func (a *AuditRecorder) Record(ctx context.Context, repos repository.Repositories, ev AuditEvent) {
	entry := &domain.AuditEntry{
		ID:       security.NewULID(),
		UserID:   ev.UserID,
		Action:   ev.Action,
		Resource: ev.Resource,
		Success:  ev.Success,
		IP:       ev.IP,
	}
	if ev.ResourceID != "" {
		rid := ev.ResourceID
		entry.ResourceID = &rid
	}
	if len(ev.Details) > 0 {
		if raw, err := json.Marshal(ev.Details); err == nil {
			entry.Details = string(raw)
		}
	}

	attrs := []any{"resource", ev.Resource, "audit_id", entry.ID}
	if ev.UserID != nil {
		attrs = append(attrs, "user_id", *ev.UserID)
	}
	observability.AuditEvent(ctx, a.logger, ev.Action, ev.Success, attrs...)

	if repos == nil {
		return
	}
	err := repos.Transaction(ctx, func(tx repository.Repositories) error {
		return tx.Audit().Append(ctx, entry)
	})
	if err != nil {
		a.logger.WarnContext(ctx, "audit write failed", "action", ev.Action, "error", err)
	}
}
