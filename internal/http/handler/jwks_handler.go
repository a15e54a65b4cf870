package handler

import (
	"encoding/json"
	"net/http"

	"github.com/berry-13/vicsam-group-sub002/internal/keys"
)

type JWKSProvider interface {
	JWKS() keys.JWKSet
}

// JWKS serves the raw key set without the response envelope so standard
// JWT libraries can consume it.
func JWKS(provider JWKSProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=300")
		_ = json.NewEncoder(w).Encode(provider.JWKS())
	}
}
