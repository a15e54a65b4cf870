package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"

	"golang.org/x/crypto/pbkdf2"
)

const (
	MinKDFIterations = 100_000
	masterKeyLength  = 32
	gcmTagSize       = 16
)

// Sealed is the output of AES-256-GCM with the tag split from the ciphertext.
type Sealed struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
}

// Envelope encrypts secrets under a master key derived from a passphrase and
// salt. The derived key is recomputed for every call and never retained.
type Envelope struct {
	passphrase []byte
	salt       []byte
	iterations int
}

func NewEnvelope(passphrase, salt string, iterations int) (*Envelope, error) {
	if passphrase == "" || salt == "" {
		return nil, domain.CryptoError("master key passphrase and salt are required", nil)
	}
	if iterations < MinKDFIterations {
		return nil, domain.CryptoError("kdf iterations below minimum", nil)
	}
	return &Envelope{passphrase: []byte(passphrase), salt: []byte(salt), iterations: iterations}, nil
}

func (e *Envelope) Encrypt(plaintext []byte) (*Sealed, error) {
	key := e.deriveKey()
	defer wipe(key)
	return SealWithKey(plaintext, key)
}

func (e *Envelope) Decrypt(sealed *Sealed) ([]byte, error) {
	key := e.deriveKey()
	defer wipe(key)
	return OpenWithKey(sealed, key)
}

func (e *Envelope) deriveKey() []byte {
	return pbkdf2.Key(e.passphrase, e.salt, e.iterations, masterKeyLength, sha256.New)
}

func SealWithKey(plaintext, key []byte) (*Sealed, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, domain.CryptoError("generate iv", err)
	}
	out := aead.Seal(nil, iv, plaintext, nil)
	split := len(out) - gcmTagSize
	return &Sealed{
		Ciphertext: out[:split],
		IV:         iv,
		AuthTag:    out[split:],
	}, nil
}

// OpenWithKey fails closed: a wrong key or any tampering yields a CryptoError
// and no plaintext.
func OpenWithKey(sealed *Sealed, key []byte) ([]byte, error) {
	if sealed == nil || len(sealed.AuthTag) != gcmTagSize {
		return nil, domain.CryptoError("malformed envelope", nil)
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed.IV) != aead.NonceSize() {
		return nil, domain.CryptoError("malformed envelope", errors.New("bad iv length"))
	}
	buf := make([]byte, 0, len(sealed.Ciphertext)+gcmTagSize)
	buf = append(buf, sealed.Ciphertext...)
	buf = append(buf, sealed.AuthTag...)
	plaintext, err := aead.Open(nil, sealed.IV, buf, nil)
	if err != nil {
		return nil, domain.CryptoError("decrypt envelope", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != masterKeyLength {
		return nil, domain.CryptoError("master key must be 32 bytes", nil)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, domain.CryptoError("init cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, domain.CryptoError("init gcm", err)
	}
	return aead, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
