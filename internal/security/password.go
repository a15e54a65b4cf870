package security

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// MinLegacyBcryptCost is the lowest bcrypt cost still accepted for legacy hashes.
const MinLegacyBcryptCost = 12

// Argon2Params are the Argon2id cost factors. Memory is in KiB.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// PasswordHasher hashes new passwords with Argon2id and verifies both Argon2id
// and legacy bcrypt hashes. The number of hashes computed at once is bounded
// so a burst of logins cannot exhaust memory.
type PasswordHasher struct {
	params Argon2Params
	slots  *semaphore.Weighted

	dummyOnce sync.Once
	dummyHash string
}

func NewPasswordHasher(params Argon2Params, maxConcurrent int) *PasswordHasher {
	if params.SaltLength == 0 {
		params.SaltLength = DefaultArgon2Params.SaltLength
	}
	if params.KeyLength == 0 {
		params.KeyLength = DefaultArgon2Params.KeyLength
	}
	if params.Parallelism == 0 {
		params.Parallelism = 1
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &PasswordHasher{params: params, slots: semaphore.NewWeighted(int64(maxConcurrent))}
}

func (h *PasswordHasher) Params() Argon2Params { return h.params }

// Hash returns a PHC encoded Argon2id hash and its algorithm tag.
func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", "", domain.CryptoError("generate salt", err)
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", "", err
	}
	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	h.slots.Release(1)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, domain.PasswordAlgorithmArgon2id, nil
}

// Verify never returns an error: malformed hashes, unknown tags and
// mismatches all report false.
func (h *PasswordHasher) Verify(ctx context.Context, password, encoded, algorithm string) bool {
	switch algorithm {
	case domain.PasswordAlgorithmArgon2id, "":
		return h.verifyArgon2(ctx, password, encoded)
	case domain.PasswordAlgorithmBcrypt:
		return h.verifyBcrypt(ctx, password, encoded)
	default:
		return false
	}
}

// VerifyDummy burns the same work as a real verification. Login calls it for
// unknown emails so response time does not reveal which addresses exist.
func (h *PasswordHasher) VerifyDummy(ctx context.Context, password string) {
	h.dummyOnce.Do(func() {
		encoded, _, err := h.Hash(context.Background(), "dummy-password-for-timing")
		if err == nil {
			h.dummyHash = encoded
		}
	})
	if h.dummyHash != "" {
		_ = h.verifyArgon2(ctx, password, h.dummyHash)
	}
}

// NeedsRehash reports whether a stored hash should be replaced with one built
// from the current parameters.
func (h *PasswordHasher) NeedsRehash(encoded, algorithm string) bool {
	if algorithm != domain.PasswordAlgorithmArgon2id {
		return true
	}
	p, _, _, err := decodeArgon2Hash(encoded)
	if err != nil {
		return true
	}
	return p.Memory < h.params.Memory || p.Iterations < h.params.Iterations || p.Parallelism < h.params.Parallelism
}

func (h *PasswordHasher) verifyArgon2(ctx context.Context, password, encoded string) bool {
	p, salt, want, err := decodeArgon2Hash(encoded)
	if err != nil {
		return false
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	h.slots.Release(1)
	return subtle.ConstantTimeCompare(want, got) == 1
}

func (h *PasswordHasher) verifyBcrypt(ctx context.Context, password, encoded string) bool {
	cost, err := bcrypt.Cost([]byte(encoded))
	if err != nil || cost < MinLegacyBcryptCost {
		return false
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.slots.Release(1)
	return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)) == nil
}

func decodeArgon2Hash(encoded string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, errors.New("invalid argon2id hash format")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("parse version: %w", err)
	}
	if version != argon2.Version {
		return p, nil, nil, errors.New("incompatible argon2 version")
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, fmt.Errorf("parse parameters: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("decode salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return p, nil, nil, errors.New("invalid argon2id parameters")
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}
