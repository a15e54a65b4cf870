package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	return path
}

func TestLoadEnvFile(t *testing.T) {
	t.Setenv("AUTHD_TEST_PRESET", "from-env")
	for _, k := range []string{"AUTHD_TEST_PLAIN", "AUTHD_TEST_DQ", "AUTHD_TEST_SQ", "AUTHD_TEST_EXPORTED", "AUTHD_TEST_EMPTY"} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
	path := writeEnvFile(t, strings.Join([]string{
		"# authd local settings",
		"AUTHD_TEST_PRESET=from-file",
		"AUTHD_TEST_PLAIN = plain value ",
		`AUTHD_TEST_DQ="double"`,
		`AUTHD_TEST_SQ='single'`,
		"export AUTHD_TEST_EXPORTED=yes",
		"AUTHD_TEST_EMPTY=",
		"not a pair",
		"=orphan",
		"",
	}, "\n"))

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	want := map[string]string{
		"AUTHD_TEST_PRESET":   "from-env",
		"AUTHD_TEST_PLAIN":    "plain value",
		"AUTHD_TEST_DQ":       "double",
		"AUTHD_TEST_SQ":       "single",
		"AUTHD_TEST_EXPORTED": "yes",
	}
	for k, v := range want {
		if got := os.Getenv(k); got != v {
			t.Fatalf("%s=%q want %q", k, got, v)
		}
	}
	if v, ok := os.LookupEnv("AUTHD_TEST_EMPTY"); !ok || v != "" {
		t.Fatalf("empty assignment should set an empty value, got %q %v", v, ok)
	}
}

func TestLoadEnvFileErrors(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
	if err := LoadEnvFile(t.TempDir()); err == nil {
		t.Fatal("expected an error for a directory")
	}
	long := writeEnvFile(t, "AUTHD_TEST_LONG="+strings.Repeat("x", 70_000)+"\n")
	if err := LoadEnvFile(long); err == nil || !strings.HasPrefix(err.Error(), "read env file:") {
		t.Fatalf("expected read error for an oversized line, got %v", err)
	}
}

func TestWriteCIResult(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCIResult(&buf, false, "obscheck run", []string{"readiness: ok"}, errors.New("jwks has no keys")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got ciResult
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.OK || got.Check != "obscheck run" || got.Error != "jwks has no keys" || len(got.Details) != 1 {
		t.Fatalf("unexpected result %+v", got)
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", buf.String())
	}

	buf.Reset()
	_ = WriteCIResult(&buf, true, "loadgen", nil, nil)
	if strings.Contains(buf.String(), "error") || strings.Contains(buf.String(), "details") {
		t.Fatalf("empty fields must be omitted: %s", buf.String())
	}
}

func FuzzLoadEnvFileNeverPanics(f *testing.F) {
	f.Add("AUTHD_FUZZ_A=1\n")
	f.Add("export \n=\n\"\n")
	f.Add("AUTHD_FUZZ_B='unterminated\n")
	f.Fuzz(func(t *testing.T, content string) {
		if len(content) > 1<<16 {
			content = content[:1<<16]
		}
		// Restrict to one key namespace so fuzzing cannot clobber the process env.
		var lines []string
		for _, line := range strings.Split(content, "\n") {
			lines = append(lines, "AUTHD_FUZZ_"+strings.TrimLeft(line, "= \t#"))
		}
		path := filepath.Join(t.TempDir(), "fuzz.env")
		if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := LoadEnvFile(path); err != nil && !strings.HasPrefix(err.Error(), "read env file:") {
			t.Fatalf("unexpected error class: %v", err)
		}
	})
}
