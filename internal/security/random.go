package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"
)

// TokenBytes is the entropy used for refresh tokens, session ids and jtis.
const TokenBytes = 32

func SecureToken(n int) (string, error) {
	if n <= 0 {
		n = TokenBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", domain.CryptoError("read random bytes", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func NewSessionID() (string, error) { return SecureToken(TokenBytes) }

func NewJTI() (string, error) { return SecureToken(TokenBytes) }

// HashForStorage is applied to every bearer secret before it is persisted.
// With a pepper the digest is an HMAC so a leaked table cannot be brute
// forced offline without the pepper.
func HashForStorage(token, pepper string) string {
	if pepper == "" {
		sum := sha256.Sum256([]byte(token))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, []byte(pepper))
	_, _ = mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
