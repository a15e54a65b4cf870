package service

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/berry-13/vicsam-group-sub002/internal/observability"
)

const (
	PermissionSuperuser = "*"
	PermissionAdmin     = "system.admin"

	maxWildcardResourceLength = 50
)

const (
	DecisionAllowed                = "allowed"
	DecisionNotAuthenticated       = "not_authenticated"
	DecisionInsufficientPermission = "insufficient_permission"
	DecisionInvalidWildcard        = "invalid_wildcard"
)

// Decision is the outcome of a permission check. Detail names the offending
// permission and is meant for logs, not for clients.
type Decision struct {
	Allowed bool
	Reason  string
	Detail  string
}

var (
	resourcePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

	// Checked against the lower-cased resource before the pattern so that
	// attempts are reported with a specific reason.
	forbiddenResourceMarkers = []struct {
		kind    string
		markers []string
	}{
		{"html", []string{"<", ">", "script", "javascript", "onerror", "onload", "&lt", "&gt"}},
		{"template", []string{"{{", "}}", "${", "#{", "<%", "%>"}},
		{"traversal", []string{"..", "/", "\\", "%2e", "%2f", "%5c"}},
		{"shell", []string{";", "|", "&", "`", "$(", "$", "!", "*", "?", "~"}},
		{"protocol", []string{"://", "file:", "data:", "vbscript:", "http:", "https:"}},
	}
)

// ResourceSource lists the resources that currently have permissions.
type ResourceSource interface {
	ListResources(ctx context.Context) ([]string, error)
}

// PermissionEvaluator decides whether an identity holds a set of required
// permissions. Wildcards (resource.*) are honored only for resources that
// pass validation.
type PermissionEvaluator struct {
	logger *slog.Logger

	mu    sync.RWMutex
	known map[string]struct{}
}

func NewPermissionEvaluator(logger *slog.Logger, knownResources []string) *PermissionEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	e := &PermissionEvaluator{logger: logger}
	e.SetKnownResources(knownResources)
	return e
}

func (e *PermissionEvaluator) SetKnownResources(resources []string) {
	known := make(map[string]struct{}, len(resources))
	for _, r := range resources {
		if r = strings.TrimSpace(r); r != "" {
			known[r] = struct{}{}
		}
	}
	e.mu.Lock()
	e.known = known
	e.mu.Unlock()
}

// LoadKnownResources replaces the known resource set from storage.
func (e *PermissionEvaluator) LoadKnownResources(ctx context.Context, src ResourceSource) error {
	resources, err := src.ListResources(ctx)
	if err != nil {
		return err
	}
	e.SetKnownResources(resources)
	return nil
}

// Evaluate requires every permission in required.
func (e *PermissionEvaluator) Evaluate(identity *Identity, required []string) Decision {
	return e.evaluate(context.Background(), identity, required, true)
}

// EvaluateAny requires at least one permission in required.
func (e *PermissionEvaluator) EvaluateAny(identity *Identity, required []string) Decision {
	return e.evaluate(context.Background(), identity, required, false)
}

func (e *PermissionEvaluator) EvaluateContext(ctx context.Context, identity *Identity, required []string, all bool) Decision {
	return e.evaluate(ctx, identity, required, all)
}

func (e *PermissionEvaluator) evaluate(ctx context.Context, identity *Identity, required []string, all bool) Decision {
	if identity == nil {
		return Decision{Reason: DecisionNotAuthenticated}
	}
	// A malformed required wildcard is rejected before any grant is
	// considered, superusers included.
	for _, perm := range required {
		if resource, wildcard := strings.CutSuffix(perm, ".*"); wildcard {
			if reason := e.validateResource(resource); reason != "" {
				e.reportInvalidWildcard(ctx, identity, perm, reason)
				return Decision{Reason: DecisionInvalidWildcard, Detail: perm}
			}
		}
	}

	held := make(map[string]struct{}, len(identity.Permissions))
	for _, p := range identity.Permissions {
		held[p] = struct{}{}
	}
	if _, ok := held[PermissionSuperuser]; ok {
		return Decision{Allowed: true, Reason: DecisionAllowed}
	}
	if _, ok := held[PermissionAdmin]; ok {
		return Decision{Allowed: true, Reason: DecisionAllowed}
	}

	denied := Decision{Reason: DecisionInsufficientPermission}
	for _, perm := range required {
		ok := e.satisfied(ctx, identity, held, perm)
		switch {
		case ok && !all:
			return Decision{Allowed: true, Reason: DecisionAllowed}
		case !ok && all:
			return Decision{Reason: DecisionInsufficientPermission, Detail: perm}
		case !ok && denied.Detail == "":
			denied.Detail = perm
		}
	}
	if all {
		return Decision{Allowed: true, Reason: DecisionAllowed}
	}
	return denied
}

// satisfied reports whether held grants perm. Required wildcards have
// already been validated by the caller.
func (e *PermissionEvaluator) satisfied(ctx context.Context, identity *Identity, held map[string]struct{}, perm string) bool {
	if _, exact := held[perm]; exact && !strings.HasSuffix(perm, ".*") {
		return true
	}
	if resource, wildcard := strings.CutSuffix(perm, ".*"); wildcard {
		prefix := resource + "."
		for p := range held {
			if strings.HasPrefix(p, prefix) {
				return true
			}
		}
		return false
	}

	resource, _, found := strings.Cut(perm, ".")
	if !found {
		return false
	}
	// A held resource.* grants any action on a valid resource.
	if _, wildcard := held[resource+".*"]; wildcard {
		if reason := e.validateResource(resource); reason != "" {
			e.reportInvalidWildcard(ctx, identity, resource+".*", reason)
			return false
		}
		return true
	}
	return false
}

// validateResource returns "" when resource may be used in a wildcard, or
// the name of the failed check.
func (e *PermissionEvaluator) validateResource(resource string) string {
	e.mu.RLock()
	_, known := e.known[resource]
	e.mu.RUnlock()
	if known {
		return ""
	}
	if resource == "" {
		return "empty"
	}
	if len(resource) > maxWildcardResourceLength {
		return "too_long"
	}
	for _, r := range resource {
		if r < 0x20 || r == 0x7f {
			return "control_character"
		}
	}
	lower := strings.ToLower(resource)
	for _, group := range forbiddenResourceMarkers {
		for _, m := range group.markers {
			if strings.Contains(lower, m) {
				return group.kind
			}
		}
	}
	if !resourcePattern.MatchString(resource) {
		return "pattern"
	}
	return ""
}

func (e *PermissionEvaluator) reportInvalidWildcard(ctx context.Context, identity *Identity, perm, reason string) {
	attrs := []any{"permission", perm, "check", reason}
	if identity != nil {
		attrs = append(attrs, "user_id", identity.UserID, "legacy", identity.Legacy)
	}
	observability.SecurityEvent(ctx, e.logger, "permission_denied", DecisionInvalidWildcard, attrs...)
}
