package security

import (
	"context"
	"strings"
	"testing"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"

	"golang.org/x/crypto/bcrypt"
)

func newTestHasher() *PasswordHasher {
	return NewPasswordHasher(Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1}, 2)
}

func TestPasswordHasherRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newTestHasher()

	hash, alg, err := h.Hash(ctx, "Str0ng!Pass1")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if alg != domain.PasswordAlgorithmArgon2id {
		t.Fatalf("expected argon2id tag, got %q", alg)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Fatalf("unexpected PHC encoding: %s", hash)
	}
	if !h.Verify(ctx, "Str0ng!Pass1", hash, alg) {
		t.Fatal("expected correct password to verify")
	}
	if h.Verify(ctx, "Str0ng!Pass2", hash, alg) {
		t.Fatal("expected different password to fail verification")
	}
}

func TestPasswordHasherSaltsEveryHash(t *testing.T) {
	ctx := context.Background()
	h := newTestHasher()
	first, _, err := h.Hash(ctx, "same-password")
	if err != nil {
		t.Fatalf("hash first: %v", err)
	}
	second, _, err := h.Hash(ctx, "same-password")
	if err != nil {
		t.Fatalf("hash second: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct hashes for identical passwords")
	}
}

func TestPasswordHasherDefaultParams(t *testing.T) {
	ctx := context.Background()
	h := NewPasswordHasher(DefaultArgon2Params, 1)
	hash, alg, err := h.Hash(ctx, "correct horse battery staple")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !strings.Contains(hash, "m=65536,t=3,p=2") {
		t.Fatalf("expected default cost parameters in hash, got %s", hash)
	}
	if !h.Verify(ctx, "correct horse battery staple", hash, alg) {
		t.Fatal("expected verification with default params")
	}
}

func TestPasswordHasherVerifyNeverErrorsOnGarbage(t *testing.T) {
	ctx := context.Background()
	h := newTestHasher()
	cases := []struct {
		name string
		hash string
		alg  string
	}{
		{name: "empty", hash: "", alg: domain.PasswordAlgorithmArgon2id},
		{name: "wrong parts", hash: "$argon2id$v=19$m=1024", alg: domain.PasswordAlgorithmArgon2id},
		{name: "bad base64", hash: "$argon2id$v=19$m=1024,t=1,p=1$!!!$???", alg: domain.PasswordAlgorithmArgon2id},
		{name: "wrong version", hash: "$argon2id$v=16$m=1024,t=1,p=1$c2FsdA$a2V5", alg: domain.PasswordAlgorithmArgon2id},
		{name: "unknown algorithm", hash: "whatever", alg: "md5"},
		{name: "bad bcrypt", hash: "$2a$12$short", alg: domain.PasswordAlgorithmBcrypt},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if h.Verify(ctx, "password", tc.hash, tc.alg) {
				t.Fatalf("expected false for %q", tc.hash)
			}
		})
	}
}

func TestPasswordHasherVerifiesLegacyBcrypt(t *testing.T) {
	ctx := context.Background()
	h := newTestHasher()
	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-Pass1"), MinLegacyBcryptCost)
	if err != nil {
		t.Fatalf("generate bcrypt hash: %v", err)
	}
	if !h.Verify(ctx, "legacy-Pass1", string(legacy), domain.PasswordAlgorithmBcrypt) {
		t.Fatal("expected legacy bcrypt hash to verify")
	}
	if h.Verify(ctx, "legacy-Pass2", string(legacy), domain.PasswordAlgorithmBcrypt) {
		t.Fatal("expected wrong password to fail against bcrypt hash")
	}
	if !h.NeedsRehash(string(legacy), domain.PasswordAlgorithmBcrypt) {
		t.Fatal("expected bcrypt hash to need rehash")
	}
}

func TestPasswordHasherRejectsWeakBcryptCost(t *testing.T) {
	ctx := context.Background()
	h := newTestHasher()
	weak, err := bcrypt.GenerateFromPassword([]byte("legacy-Pass1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("generate bcrypt hash: %v", err)
	}
	if h.Verify(ctx, "legacy-Pass1", string(weak), domain.PasswordAlgorithmBcrypt) {
		t.Fatal("expected bcrypt hash below minimum cost to be rejected")
	}
}

func TestPasswordHasherNeedsRehashOnWeakerParams(t *testing.T) {
	ctx := context.Background()
	weak := newTestHasher()
	hash, alg, err := weak.Hash(ctx, "Str0ng!Pass1")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if weak.NeedsRehash(hash, alg) {
		t.Fatal("hash built with current params should not need rehash")
	}
	strong := NewPasswordHasher(Argon2Params{Memory: 2048, Iterations: 2, Parallelism: 1}, 1)
	if !strong.NeedsRehash(hash, alg) {
		t.Fatal("expected rehash when stored params are weaker")
	}
}

func TestPasswordHasherHonoursCancelledContext(t *testing.T) {
	h := NewPasswordHasher(Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1}, 1)
	hash, alg, err := h.Hash(context.Background(), "Str0ng!Pass1")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.slots.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("occupy slot: %v", err)
	}
	defer h.slots.Release(1)
	if h.Verify(ctx, "Str0ng!Pass1", hash, alg) {
		t.Fatal("expected verify to give up when no slot is available and ctx is done")
	}
	if _, _, err := h.Hash(ctx, "Str0ng!Pass1"); err == nil {
		t.Fatal("expected hash to fail when ctx is done")
	}
}

func FuzzPasswordHasherVerifyMalformed(f *testing.F) {
	f.Add("$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5")
	f.Add("$argon2id$$$$")
	f.Add("")
	f.Add("$2a$04$abcdefghijklmnopqrstuv")

	h := newTestHasher()
	f.Fuzz(func(t *testing.T, encoded string) {
		if len(encoded) > 512 {
			encoded = encoded[:512]
		}
		p, _, _, err := decodeArgon2Hash(encoded)
		if err == nil && (p.Memory > 1<<14 || p.Iterations > 4 || p.Parallelism > 4) {
			t.Skip("parameters too expensive for fuzzing")
		}
		_ = h.Verify(context.Background(), "password", encoded, domain.PasswordAlgorithmArgon2id)
	})
}
