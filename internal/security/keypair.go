package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"
)

type KeyKind string

const (
	KeyKindRSA   KeyKind = "RSA"
	KeyKindECDSA KeyKind = "ECDSA"

	MinRSABits = 2048
)

type KeyPair struct {
	KeyID         string
	Algorithm     string
	PublicKeyPEM  []byte
	PrivateKeyPEM []byte
}

// GenerateKeyPair creates an RSA (size in bits) or ECDSA P-256 (size 256 or 0)
// key pair under a fresh key id.
func GenerateKeyPair(kind KeyKind, size int) (*KeyPair, error) {
	var (
		priv crypto.Signer
		alg  string
		err  error
	)
	switch kind {
	case KeyKindRSA:
		if size < MinRSABits {
			return nil, domain.CryptoError(fmt.Sprintf("rsa key size %d below minimum %d", size, MinRSABits), nil)
		}
		priv, err = rsa.GenerateKey(rand.Reader, size)
		alg = domain.SigningAlgorithmRS256
	case KeyKindECDSA:
		if size != 0 && size != 256 {
			return nil, domain.CryptoError(fmt.Sprintf("unsupported ecdsa curve size %d", size), nil)
		}
		priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		alg = domain.SigningAlgorithmES256
	default:
		return nil, domain.CryptoError(fmt.Sprintf("unsupported key kind %q", kind), nil)
	}
	if err != nil {
		return nil, domain.CryptoError("generate key pair", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, domain.CryptoError("marshal private key", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(priv.Public())
	if err != nil {
		return nil, domain.CryptoError("marshal public key", err)
	}
	return &KeyPair{
		KeyID:         NewULID(),
		Algorithm:     alg,
		PublicKeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}),
		PrivateKeyPEM: pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}),
	}, nil
}

// KeyKindForAlgorithm maps a JWS algorithm to the key kind that produces it.
func KeyKindForAlgorithm(alg string) (KeyKind, error) {
	switch alg {
	case domain.SigningAlgorithmRS256:
		return KeyKindRSA, nil
	case domain.SigningAlgorithmES256:
		return KeyKindECDSA, nil
	default:
		return "", fmt.Errorf("unsupported signing algorithm %q", alg)
	}
}

func ParsePrivateKeyPEM(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, domain.CryptoError("decode private key pem", nil)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, domain.CryptoError("parse private key", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, domain.CryptoError("private key is not a signer", nil)
	}
	return signer, nil
}

func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, domain.CryptoError("decode public key pem", nil)
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, domain.CryptoError("parse public key", err)
	}
	switch key.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
		return key, nil
	default:
		return nil, domain.CryptoError("unsupported public key type", fmt.Errorf("%T", key))
	}
}
