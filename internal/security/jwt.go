package security

import (
	"crypto"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const TokenTypeAccess = "access"

type Claims struct {
	TokenType   string   `json:"token_type"`
	Email       string   `json:"email,omitempty"`
	Name        string   `json:"name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// AccessTokenInput is what a caller supplies to mint an access token. The
// signer fills in issuer, audience and timestamps.
type AccessTokenInput struct {
	Subject     string
	Email       string
	Name        string
	Roles       []string
	Permissions []string
	JTI         string
	TTL         time.Duration
}

// NewAccessClaims builds the claim set for an access token issued at now.
func NewAccessClaims(in AccessTokenInput, issuer, audience string, now time.Time) *Claims {
	return &Claims{
		TokenType:   TokenTypeAccess,
		Email:       in.Email,
		Name:        in.Name,
		Roles:       in.Roles,
		Permissions: in.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   in.Subject,
			Audience:  []string{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(in.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        in.JTI,
		},
	}
}

func signingMethod(alg string) (jwt.SigningMethod, error) {
	switch alg {
	case jwt.SigningMethodRS256.Alg():
		return jwt.SigningMethodRS256, nil
	case jwt.SigningMethodES256.Alg():
		return jwt.SigningMethodES256, nil
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", alg)
	}
}

// SignClaims signs claims with key and stamps kid into the header.
func SignClaims(claims *Claims, alg, kid string, key crypto.Signer) (string, error) {
	method, err := signingMethod(alg)
	if err != nil {
		return "", err
	}
	tok := jwt.NewWithClaims(method, claims)
	tok.Header["kid"] = kid
	return tok.SignedString(key)
}

// VerificationKeyFunc returns the public key and algorithm registered for kid.
type VerificationKeyFunc func(kid string) (crypto.PublicKey, string, error)

// ParseAccessToken checks signature, issuer, audience and expiry. It does not
// look at session state.
func ParseAccessToken(raw, issuer, audience string, keyFor VerificationKeyFunc) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid header")
		}
		key, alg, err := keyFor(kid)
		if err != nil {
			return nil, err
		}
		if token.Method.Alg() != alg {
			return nil, errors.New("unexpected signing algorithm")
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, fmt.Errorf("unexpected token type: %s", claims.TokenType)
	}
	if claims.ID == "" {
		return nil, errors.New("missing jti")
	}
	return claims, nil
}
