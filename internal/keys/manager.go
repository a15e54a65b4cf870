package keys

import (
	"context"
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"
	"github.com/berry-13/vicsam-group-sub002/internal/observability"
	"github.com/berry-13/vicsam-group-sub002/internal/repository"
	"github.com/berry-13/vicsam-group-sub002/internal/security"

	"golang.org/x/sync/singleflight"
)

// DefaultMissReloadInterval bounds how often an unknown kid may trigger a
// reload from storage.
const DefaultMissReloadInterval = 5 * time.Second

type Options struct {
	Algorithm string
	RSABits   int
	Issuer    string
	Audience  string
	Now       func() time.Time

	MissReloadInterval time.Duration
}

type signingKey struct {
	kid    string
	alg    string
	signer crypto.Signer
}

type verificationKey struct {
	alg string
	pub crypto.PublicKey
}

// Manager owns the active signing key and the set of keys that may still
// verify tokens. Sign never initializes; callers must run Init first.
type Manager struct {
	repo     repository.SigningKeyRepository
	envelope *security.Envelope
	locker   Locker
	logger   *slog.Logger
	opts     Options
	group    singleflight.Group

	mu        sync.RWMutex
	state     State
	stateErr  error
	changed   chan struct{}
	active    *signingKey
	verifiers map[string]verificationKey
	lastMiss  time.Time
}

// NewManager builds a manager in the Uninitialized state. locker may be nil,
// in which case the unique active slot in storage is the only guard against
// two processes creating a key at once.
func NewManager(repo repository.SigningKeyRepository, envelope *security.Envelope, locker Locker, logger *slog.Logger, opts Options) *Manager {
	if opts.Algorithm == "" {
		opts.Algorithm = domain.SigningAlgorithmRS256
	}
	if opts.RSABits == 0 {
		opts.RSABits = security.MinRSABits
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MissReloadInterval <= 0 {
		opts.MissReloadInterval = DefaultMissReloadInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:      repo,
		envelope:  envelope,
		locker:    locker,
		logger:    logger,
		opts:      opts,
		changed:   make(chan struct{}),
		verifiers: map[string]verificationKey{},
	}
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) Ready() bool { return m.State() == StateReady }

// Check reports readiness for health probes.
func (m *Manager) Check(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch m.state {
	case StateReady:
		return nil
	case StateFailed:
		return fmt.Errorf("key manager failed: %w", m.stateErr)
	default:
		return fmt.Errorf("key manager %s", m.state)
	}
}

func (m *Manager) setState(ctx context.Context, s State, err error) {
	m.mu.Lock()
	m.state = s
	m.stateErr = err
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()
	observability.RecordKeyManagerState(ctx, int64(s), s.String())
}

// Init loads the active signing key, creating one if none exists. Concurrent
// callers share one attempt. Calling Init on a ready manager is a no-op and a
// failed manager may be retried.
func (m *Manager) Init(ctx context.Context) error {
	if m.Ready() {
		return nil
	}
	_, err, _ := m.group.Do("init", func() (any, error) {
		if m.Ready() {
			return nil, nil
		}
		m.setState(ctx, StateLoading, nil)
		if err := m.initialize(ctx); err != nil {
			m.setState(ctx, StateFailed, err)
			m.logger.Error("key manager initialization failed", "error", err)
			return nil, err
		}
		m.setState(ctx, StateReady, nil)
		return nil, nil
	})
	return err
}

func (m *Manager) initialize(ctx context.Context) error {
	if m.locker != nil {
		release, err := m.locker.Acquire(ctx)
		switch {
		case err == nil:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					m.logger.Warn("release key init lock", "error", err)
				}
			}()
		case ctx.Err() != nil:
			return domain.CryptoError("wait for key init lock", ctx.Err())
		default:
			m.logger.Warn("key init lock unavailable, relying on storage constraint", "error", err)
		}
	}

	row, err := m.repo.FindActive(ctx)
	if errors.Is(err, repository.ErrSigningKeyNotFound) {
		row, err = m.createActive(ctx)
	}
	if err != nil {
		return err
	}
	active, err := m.unseal(row)
	if err != nil {
		return err
	}
	if err := m.reloadVerifiers(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.active = active
	m.mu.Unlock()
	m.logger.Info("signing key loaded", "kid", active.kid, "alg", active.alg)
	return nil
}

// createActive generates and stores a new active key. Losing the insert race
// to another process is not an error: the winner's key is loaded instead.
func (m *Manager) createActive(ctx context.Context) (*domain.SigningKey, error) {
	row, err := m.newSealedKey()
	if err != nil {
		return nil, err
	}
	err = m.repo.CreateActive(ctx, row)
	if errors.Is(err, repository.ErrDuplicate) {
		m.logger.Info("another instance created the signing key first")
		return m.repo.FindActive(ctx)
	}
	if err != nil {
		return nil, err
	}
	m.logger.Info("generated signing key", "kid", row.KeyID, "alg", row.Algorithm)
	return row, nil
}

func (m *Manager) newSealedKey() (*domain.SigningKey, error) {
	kind, err := security.KeyKindForAlgorithm(m.opts.Algorithm)
	if err != nil {
		return nil, err
	}
	size := m.opts.RSABits
	if kind == security.KeyKindECDSA {
		size = 256
	}
	pair, err := security.GenerateKeyPair(kind, size)
	if err != nil {
		return nil, err
	}
	sealed, err := m.envelope.Encrypt(pair.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	return &domain.SigningKey{
		KeyID:               pair.KeyID,
		Algorithm:           pair.Algorithm,
		PublicKey:           string(pair.PublicKeyPEM),
		EncryptedPrivateKey: base64.StdEncoding.EncodeToString(sealed.Ciphertext),
		IV:                  base64.StdEncoding.EncodeToString(sealed.IV),
		AuthTag:             base64.StdEncoding.EncodeToString(sealed.AuthTag),
	}, nil
}

func (m *Manager) unseal(row *domain.SigningKey) (*signingKey, error) {
	ciphertext, err1 := base64.StdEncoding.DecodeString(row.EncryptedPrivateKey)
	iv, err2 := base64.StdEncoding.DecodeString(row.IV)
	tag, err3 := base64.StdEncoding.DecodeString(row.AuthTag)
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, domain.CryptoError("decode stored signing key", err)
	}
	pemBytes, err := m.envelope.Decrypt(&security.Sealed{Ciphertext: ciphertext, IV: iv, AuthTag: tag})
	if err != nil {
		return nil, err
	}
	signer, err := security.ParsePrivateKeyPEM(pemBytes)
	if err != nil {
		return nil, err
	}
	return &signingKey{kid: row.KeyID, alg: row.Algorithm, signer: signer}, nil
}

// reloadVerifiers replaces the verification set with every non-retired key
// in storage.
func (m *Manager) reloadVerifiers(ctx context.Context) error {
	rows, err := m.repo.ListVerifiable(ctx)
	if err != nil {
		return err
	}
	next := make(map[string]verificationKey, len(rows))
	for _, row := range rows {
		pub, err := security.ParsePublicKeyPEM([]byte(row.PublicKey))
		if err != nil {
			m.logger.Warn("skipping unparsable public key", "kid", row.KeyID, "error", err)
			continue
		}
		next[row.KeyID] = verificationKey{alg: row.Algorithm, pub: pub}
	}
	m.mu.Lock()
	m.verifiers = next
	m.mu.Unlock()
	return nil
}

// Sign mints an access token with the active key. It waits for the manager
// to become ready and gives up when ctx is done.
func (m *Manager) Sign(ctx context.Context, in security.AccessTokenInput) (string, error) {
	active, err := m.waitReady(ctx)
	if err != nil {
		return "", err
	}
	claims := security.NewAccessClaims(in, m.opts.Issuer, m.opts.Audience, m.opts.Now())
	token, err := security.SignClaims(claims, active.alg, active.kid, active.signer)
	if err != nil {
		return "", domain.CryptoError("sign access token", err)
	}
	return token, nil
}

func (m *Manager) waitReady(ctx context.Context) (*signingKey, error) {
	for {
		m.mu.RLock()
		state, stateErr, active, changed := m.state, m.stateErr, m.active, m.changed
		m.mu.RUnlock()

		switch state {
		case StateReady:
			return active, nil
		case StateFailed:
			return nil, domain.CryptoError("key manager failed", stateErr)
		}
		select {
		case <-ctx.Done():
			return nil, domain.CryptoError("key manager not ready", ctx.Err())
		case <-changed:
		}
	}
}

// Verify checks signature, issuer, audience and expiry. An unknown kid
// triggers a reload from storage to pick up keys rotated elsewhere.
func (m *Manager) Verify(ctx context.Context, raw string) (*security.Claims, error) {
	reloaded := false
	keyFor := func(kid string) (crypto.PublicKey, string, error) {
		m.mu.RLock()
		v, ok := m.verifiers[kid]
		m.mu.RUnlock()
		if !ok && !reloaded {
			reloaded = true
			if err := m.reloadOnMiss(ctx); err != nil {
				return nil, "", err
			}
			m.mu.RLock()
			v, ok = m.verifiers[kid]
			m.mu.RUnlock()
		}
		if !ok {
			return nil, "", fmt.Errorf("unknown signing key %q", kid)
		}
		return v.pub, v.alg, nil
	}
	claims, err := security.ParseAccessToken(raw, m.opts.Issuer, m.opts.Audience, keyFor)
	if err != nil {
		return nil, domain.NewError(domain.CodeInvalidToken, domain.ErrInvalidToken.Message, err)
	}
	return claims, nil
}

// reloadOnMiss reloads verifiers for an unknown kid. Concurrent misses share
// one query and at most one reload runs per MissReloadInterval.
func (m *Manager) reloadOnMiss(ctx context.Context) error {
	_, err, _ := m.group.Do("reload", func() (any, error) {
		now := m.opts.Now()
		m.mu.Lock()
		if !m.lastMiss.IsZero() && now.Sub(m.lastMiss) < m.opts.MissReloadInterval {
			m.mu.Unlock()
			return nil, nil
		}
		m.lastMiss = now
		m.mu.Unlock()
		return nil, m.reloadVerifiers(ctx)
	})
	return err
}

// Rotate creates a new active key. The previous key keeps verifying until
// it is retired.
func (m *Manager) Rotate(ctx context.Context) (string, error) {
	if _, err := m.waitReady(ctx); err != nil {
		return "", err
	}
	row, err := m.newSealedKey()
	if err != nil {
		return "", err
	}
	if err := m.repo.Rotate(ctx, row, m.opts.Now()); err != nil {
		return "", err
	}
	active, err := m.unseal(row)
	if err != nil {
		return "", err
	}
	pub := active.signer.Public()
	m.mu.Lock()
	m.active = active
	m.verifiers[active.kid] = verificationKey{alg: active.alg, pub: pub}
	m.mu.Unlock()
	m.logger.Info("signing key rotated", "kid", active.kid)
	return active.kid, nil
}

// Retire stops kid from verifying. The active key cannot be retired.
func (m *Manager) Retire(ctx context.Context, kid string) error {
	err := m.repo.Retire(ctx, kid, m.opts.Now())
	switch {
	case errors.Is(err, repository.ErrSigningKeyActive):
		return domain.NewError(domain.CodeInvalidInput, "active signing key cannot be retired", err)
	case errors.Is(err, repository.ErrSigningKeyNotFound):
		return domain.NewError(domain.CodeNotFound, "signing key not found", err)
	case err != nil:
		return err
	}
	m.mu.Lock()
	delete(m.verifiers, kid)
	m.mu.Unlock()
	m.logger.Info("signing key retired", "kid", kid)
	return nil
}

// ActiveKeyID returns the kid used by Sign, or "" before Init completes.
func (m *Manager) ActiveKeyID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return ""
	}
	return m.active.kid
}
