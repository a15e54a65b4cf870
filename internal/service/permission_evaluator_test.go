package service

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestPermissionEvaluatorEvaluate(t *testing.T) {
	e := NewPermissionEvaluator(discardLogger(), []string{"data", "files"})

	tests := []struct {
		name     string
		held     []string
		required []string
		allowed  bool
		reason   string
	}{
		{"wildcard required, action held", []string{"data.read"}, []string{"data.*"}, true, DecisionAllowed},
		{"wildcard required, other resource held", []string{"files.read"}, []string{"data.*"}, false, DecisionInsufficientPermission},
		{"exact match", []string{"files.read"}, []string{"files.read"}, true, DecisionAllowed},
		{"all of required", []string{"files.read"}, []string{"files.read", "files.write"}, false, DecisionInsufficientPermission},
		{"held wildcard grants action", []string{"files.*"}, []string{"files.delete"}, true, DecisionAllowed},
		{"superuser", []string{"*"}, []string{"anything.at_all"}, true, DecisionAllowed},
		{"system admin", []string{PermissionAdmin}, []string{"keys.rotate"}, true, DecisionAllowed},
		{"script wildcard", []string{"data.read"}, []string{"<script>.*"}, false, DecisionInvalidWildcard},
		{"script wildcard for admin-less user", nil, []string{"<script>.*"}, false, DecisionInvalidWildcard},
		{"traversal wildcard", []string{"../etc.read"}, []string{"../etc.*"}, false, DecisionInvalidWildcard},
		{"template wildcard", nil, []string{"{{x}}.*"}, false, DecisionInvalidWildcard},
		{"superuser script wildcard", []string{"*"}, []string{"<script>.*"}, false, DecisionInvalidWildcard},
		{"system admin script wildcard", []string{PermissionAdmin}, []string{"<script>.*"}, false, DecisionInvalidWildcard},
		{"superuser valid wildcard", []string{"*"}, []string{"data.*"}, true, DecisionAllowed},
		{"unknown but well formed resource", []string{"reports.read"}, []string{"reports.*"}, true, DecisionAllowed},
		{"no permissions", nil, []string{"files.read"}, false, DecisionInsufficientPermission},
		{"nothing required", nil, nil, true, DecisionAllowed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := e.Evaluate(&Identity{Permissions: tc.held}, tc.required)
			if d.Allowed != tc.allowed || d.Reason != tc.reason {
				t.Fatalf("got %+v, want allowed=%v reason=%s", d, tc.allowed, tc.reason)
			}
		})
	}
}

func TestPermissionEvaluatorNilIdentity(t *testing.T) {
	d := NewPermissionEvaluator(nil, nil).Evaluate(nil, []string{"files.read"})
	if d.Allowed || d.Reason != DecisionNotAuthenticated {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestPermissionEvaluatorEvaluateAny(t *testing.T) {
	e := NewPermissionEvaluator(discardLogger(), nil)
	id := &Identity{Permissions: []string{"tokens.rotate"}}

	if d := e.EvaluateAny(id, []string{"keys.rotate", "tokens.rotate"}); !d.Allowed {
		t.Fatalf("expected any-of to pass: %+v", d)
	}
	if d := e.EvaluateAny(id, []string{"keys.rotate", "audit.read"}); d.Allowed || d.Detail != "keys.rotate" {
		t.Fatalf("expected any-of to fail on first missing permission: %+v", d)
	}
	if d := e.EvaluateAny(id, []string{"<img>.*", "audit.read"}); d.Reason != DecisionInvalidWildcard {
		t.Fatalf("expected invalid wildcard to be reported: %+v", d)
	}
}

func TestPermissionEvaluatorLogsInvalidWildcard(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	e := NewPermissionEvaluator(logger, nil)

	d := e.Evaluate(&Identity{UserID: 7, Permissions: []string{"data.read"}}, []string{"<script>.*"})
	if d.Reason != DecisionInvalidWildcard || d.Detail != "<script>.*" {
		t.Fatalf("unexpected decision: %+v", d)
	}
	out := buf.String()
	for _, want := range []string{`"level":"WARN"`, "permission_denied", "invalid_wildcard", `"check":"html"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q: %s", want, out)
		}
	}
}

func TestPermissionEvaluatorSuperuserStillLogsInvalidWildcard(t *testing.T) {
	var buf bytes.Buffer
	e := NewPermissionEvaluator(slog.New(slog.NewJSONHandler(&buf, nil)), nil)

	d := e.EvaluateAny(&Identity{UserID: 1, Permissions: []string{PermissionSuperuser}}, []string{"files.read", "<script>.*"})
	if d.Allowed || d.Reason != DecisionInvalidWildcard {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if !strings.Contains(buf.String(), "invalid_wildcard") {
		t.Fatalf("expected security event, got: %s", buf.String())
	}
}

func TestPermissionEvaluatorValidateResource(t *testing.T) {
	e := NewPermissionEvaluator(discardLogger(), []string{"Legacy_Resource"})
	tests := map[string]string{
		"data":                   "",
		"user-profiles":          "",
		"Legacy_Resource":        "",
		"":                       "empty",
		strings.Repeat("a", 51):  "too_long",
		"bad\x00name":            "control_character",
		"javascript":             "html",
		"${env}":                 "template",
		"a/b":                    "traversal",
		"rm;ls":                  "shell",
		"file:":                  "protocol",
		"Upper":                  "pattern",
		"_leading":               "pattern",
	}
	for resource, want := range tests {
		if got := e.validateResource(resource); got != want {
			t.Errorf("validateResource(%q) = %q, want %q", resource, got, want)
		}
	}
}

type staticResources []string

func (s staticResources) ListResources(context.Context) ([]string, error) { return s, nil }

func TestPermissionEvaluatorLoadKnownResources(t *testing.T) {
	e := NewPermissionEvaluator(discardLogger(), nil)
	if err := e.LoadKnownResources(context.Background(), staticResources{"Mixed_Case"}); err != nil {
		t.Fatalf("load resources: %v", err)
	}
	d := e.Evaluate(&Identity{Permissions: []string{"Mixed_Case.read"}}, []string{"Mixed_Case.*"})
	if !d.Allowed {
		t.Fatalf("known resource should bypass the pattern check: %+v", d)
	}
}

func FuzzPermissionEvaluatorNeverAllowsInvalidWildcard(f *testing.F) {
	for _, seed := range []string{"data", "<script>", "../x", "a;b", "ok-name"} {
		f.Add(seed)
	}
	e := NewPermissionEvaluator(discardLogger(), nil)
	f.Fuzz(func(t *testing.T, resource string) {
		perm := resource + ".*"
		d := e.Evaluate(&Identity{Permissions: []string{resource + ".read"}}, []string{perm})
		if d.Allowed && e.validateResource(resource) != "" {
			t.Fatalf("wildcard over invalid resource %q was allowed", resource)
		}
	})
}
