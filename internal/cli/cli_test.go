package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/berry-13/vicsam-group-sub002/internal/config"
	"github.com/berry-13/vicsam-group-sub002/internal/di"
	"github.com/berry-13/vicsam-group-sub002/internal/domain"
	"github.com/berry-13/vicsam-group-sub002/internal/security"
	"github.com/berry-13/vicsam-group-sub002/internal/service"
)

func cliConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Env:                       config.EnvTest,
		LogLevel:                  "error",
		DatabaseDriver:            "sqlite",
		DatabaseURL:               filepath.Join(t.TempDir(), "authd.db"),
		JWTIssuer:                 "authd-test",
		JWTAudience:               "authd-test-clients",
		JWTSigningAlgorithm:       domain.SigningAlgorithmES256,
		JWTAccessTTL:              15 * time.Minute,
		RefreshTokenTTL:           24 * time.Hour,
		RefreshTokenPepper:        "cli-pepper",
		RefreshTokenRotation:      true,
		MasterKeyPassphrase:       "cli-test-passphrase",
		MasterKeySalt:             "cli-test-salt-0123456",
		MasterKeyKDFIterations:    security.MinKDFIterations,
		LockoutMaxAttempts:        5,
		LockoutDuration:           30 * time.Minute,
		PasswordArgon2MemoryKiB:   1024,
		PasswordArgon2Time:        1,
		PasswordArgon2Parallelism: 1,
		PasswordHashConcurrency:   2,
		LegacyTokenMaxAge:         time.Hour,
		LegacyTokenKeep:           3,
		LegacyTokenPermissions:    []string{"tokens.use"},
		RBACPermissionCacheTTL:    time.Minute,
		AuthRateLimitRPM:          100,
	}
}

type harness struct {
	t    *testing.T
	opts *options
}

func newHarness(t *testing.T) *harness {
	cfg := cliConfig(t)
	return &harness{t: t, opts: &options{
		envFile:    filepath.Join(t.TempDir(), "missing.env"),
		loadConfig: func() (*config.Config, error) { return cfg, nil },
	}}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	root := newRootCommand(h.opts)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--env-file", h.opts.envFile))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	if err != nil {
		h.t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestMigrateSeedsRoles(t *testing.T) {
	h := newHarness(t)
	if out := h.mustRun("migrate"); !strings.Contains(out, `"migrated": true`) {
		t.Fatalf("unexpected output %q", out)
	}
	_ = h.opts.withAdmin(context.Background(), func(a *di.Admin) error {
		role, err := a.Store.Roles().FindByName(context.Background(), "security_officer")
		if err != nil || role == nil {
			t.Fatalf("seeded role missing: %v", err)
		}
		return nil
	})
}

func TestKeysRotateListRetire(t *testing.T) {
	h := newHarness(t)
	var rotated struct {
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal([]byte(h.mustRun("keys", "rotate")), &rotated); err != nil || rotated.Kid == "" {
		t.Fatalf("rotate output: %v %+v", err, rotated)
	}

	var rows []struct {
		Kid      string `json:"kid"`
		IsActive bool   `json:"is_active"`
	}
	if err := json.Unmarshal([]byte(h.mustRun("keys", "list")), &rows); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected initial and rotated key, got %d", len(rows))
	}
	var previous string
	for _, r := range rows {
		if r.IsActive && r.Kid != rotated.Kid {
			t.Fatalf("active key is %s, want %s", r.Kid, rotated.Kid)
		}
		if !r.IsActive {
			previous = r.Kid
		}
	}

	if _, err := h.run("keys", "retire", rotated.Kid); err == nil {
		t.Fatal("retiring the active key should fail")
	}
	h.mustRun("keys", "retire", previous)
	if err := json.Unmarshal([]byte(h.mustRun("keys", "list")), &rows); err != nil || len(rows) != 1 {
		t.Fatalf("expected one verifiable key after retire, got %d (%v)", len(rows), err)
	}
}

func TestLegacyRotatePrintsToken(t *testing.T) {
	h := newHarness(t)
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(h.mustRun("legacy", "rotate")), &out); err != nil || out.Token == "" {
		t.Fatalf("legacy rotate output: %v %+v", err, out)
	}
}

func TestUserCommandsAndAudit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var userID uint
	err := h.opts.withAdmin(ctx, func(a *di.Admin) error {
		u, err := a.Auth.Register(ctx, service.RegisterInput{Email: "cli@example.com", Password: "Cl1-Str0ng!Pass"})
		if err != nil {
			return err
		}
		userID = u.ID
		return nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	id := strconv.FormatUint(uint64(userID), 10)

	h.mustRun("users", "unlock", id)
	h.mustRun("users", "assign-role", id, "security_officer", "--expires-in", "1h")
	if _, err := h.run("users", "assign-role", id, "no_such_role"); err == nil {
		t.Fatal("expected unknown role error")
	}
	if _, err := h.run("users", "unlock", "abc"); err == nil {
		t.Fatal("expected invalid id error")
	}
	if _, err := h.run("users", "unlock", "99999"); err == nil {
		t.Fatal("expected not found error")
	}

	var page struct {
		Items []struct {
			Action string `json:"action"`
		} `json:"items"`
		Total int64 `json:"total"`
	}
	out := h.mustRun("audit", "list", "--action", service.AuditActionUserUnlocked)
	if err := json.Unmarshal([]byte(out), &page); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 || page.Items[0].Action != service.AuditActionUserUnlocked {
		t.Fatalf("unexpected audit page %+v", page)
	}

	h.mustRun("users", "deactivate", id)
	var cleaned map[string]int64
	if err := json.Unmarshal([]byte(h.mustRun("sessions", "cleanup")), &cleaned); err != nil {
		t.Fatalf("decode cleanup: %v", err)
	}
	if _, ok := cleaned["sessions"]; !ok {
		t.Fatalf("cleanup output missing counts: %v", cleaned)
	}
}

func TestConfigErrorsSurface(t *testing.T) {
	h := newHarness(t)
	h.opts.loadConfig = func() (*config.Config, error) { return nil, errBadConfig }
	if _, err := h.run("migrate"); !errors.Is(err, errBadConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

var errBadConfig = errors.New("validate config: DATABASE_URL is required")
