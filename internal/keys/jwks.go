package keys

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"sort"
)

type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// JWKS publishes the public half of every key that still verifies tokens.
func (m *Manager) JWKS() JWKSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := JWKSet{Keys: make([]JWK, 0, len(m.verifiers))}
	for kid, v := range m.verifiers {
		jwk := JWK{Kid: kid, Use: "sig", Alg: v.alg}
		switch pub := v.pub.(type) {
		case *rsa.PublicKey:
			jwk.Kty = "RSA"
			jwk.N = b64(pub.N.Bytes())
			jwk.E = b64(big.NewInt(int64(pub.E)).Bytes())
		case *ecdsa.PublicKey:
			size := (pub.Curve.Params().BitSize + 7) / 8
			jwk.Kty = "EC"
			jwk.Crv = pub.Curve.Params().Name
			jwk.X = b64(pub.X.FillBytes(make([]byte, size)))
			jwk.Y = b64(pub.Y.FillBytes(make([]byte, size)))
		default:
			continue
		}
		set.Keys = append(set.Keys, jwk)
	}
	sort.Slice(set.Keys, func(i, j int) bool { return set.Keys[i].Kid < set.Keys[j].Kid })
	return set
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }
