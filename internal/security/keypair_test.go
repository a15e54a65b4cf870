package security

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"testing"

	"github.com/berry-13/vicsam-group-sub002/internal/domain"
)

func TestGenerateKeyPairRSA(t *testing.T) {
	kp, err := GenerateKeyPair(KeyKindRSA, 2048)
	if err != nil {
		t.Fatalf("generate rsa: %v", err)
	}
	if kp.Algorithm != domain.SigningAlgorithmRS256 || kp.KeyID == "" {
		t.Fatalf("unexpected key pair metadata: alg=%s kid=%s", kp.Algorithm, kp.KeyID)
	}
	pub, err := ParsePublicKeyPEM(kp.PublicKeyPEM)
	if err != nil {
		t.Fatalf("parse public: %v", err)
	}
	if _, ok := pub.(*rsa.PublicKey); !ok {
		t.Fatalf("expected rsa public key, got %T", pub)
	}
	priv, err := ParsePrivateKeyPEM(kp.PrivateKeyPEM)
	if err != nil {
		t.Fatalf("parse private: %v", err)
	}
	if _, ok := priv.(*rsa.PrivateKey); !ok {
		t.Fatalf("expected rsa private key, got %T", priv)
	}
}

func TestGenerateKeyPairECDSA(t *testing.T) {
	kp, err := GenerateKeyPair(KeyKindECDSA, 256)
	if err != nil {
		t.Fatalf("generate ecdsa: %v", err)
	}
	if kp.Algorithm != domain.SigningAlgorithmES256 {
		t.Fatalf("expected ES256, got %s", kp.Algorithm)
	}
	pub, err := ParsePublicKeyPEM(kp.PublicKeyPEM)
	if err != nil {
		t.Fatalf("parse public: %v", err)
	}
	if _, ok := pub.(*ecdsa.PublicKey); !ok {
		t.Fatalf("expected ecdsa public key, got %T", pub)
	}
}

func TestGenerateKeyPairRejectsWeakParameters(t *testing.T) {
	if _, err := GenerateKeyPair(KeyKindRSA, 1024); err == nil {
		t.Fatal("expected rsa 1024 to be rejected")
	}
	if _, err := GenerateKeyPair(KeyKindECDSA, 384); err == nil {
		t.Fatal("expected non P-256 curve to be rejected")
	}
	if _, err := GenerateKeyPair("DSA", 2048); err == nil {
		t.Fatal("expected unknown kind to be rejected")
	}
}

func TestGenerateKeyPairFreshKeyIDs(t *testing.T) {
	a, err := GenerateKeyPair(KeyKindECDSA, 0)
	if err != nil {
		t.Fatalf("generate a: %v", err)
	}
	b, err := GenerateKeyPair(KeyKindECDSA, 0)
	if err != nil {
		t.Fatalf("generate b: %v", err)
	}
	if a.KeyID == b.KeyID {
		t.Fatal("expected distinct key ids")
	}
}

func TestParseKeyPEMRejectsGarbage(t *testing.T) {
	if _, err := ParsePublicKeyPEM([]byte("not pem")); err == nil {
		t.Fatal("expected public key parse failure")
	}
	if _, err := ParsePrivateKeyPEM([]byte("not pem")); err == nil {
		t.Fatal("expected private key parse failure")
	}
}
