package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// RFC 7636 unreserved characters for code verifiers.
const pkceVerifierCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

const pkceVerifierLength = 64

// PKCE is the verifier/challenge pair for a single authorization attempt.
// The verifier stays client-side until the token exchange; only the
// challenge goes out in the PAR body.
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// NewPKCE generates a fresh S256 verifier/challenge pair.
func NewPKCE() (PKCE, error) {
	raw := make([]byte, pkceVerifierLength)
	if _, err := rand.Read(raw); err != nil {
		return PKCE{}, fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range raw {
		raw[i] = pkceVerifierCharset[int(b)%len(pkceVerifierCharset)]
	}
	verifier := string(raw)
	return PKCE{
		Verifier:  verifier,
		Challenge: S256CodeChallenge(verifier),
		Method:    "S256",
	}, nil
}

// S256CodeChallenge returns the base64url (unpadded) SHA-256 digest of the
// input. Used both for PKCE challenges and for the `ath` confirmation claim
// in DPoP proofs, which are defined identically.
func S256CodeChallenge(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// randomToken returns an unguessable base64url token, used for OAuth state
// values and session identifiers.
func randomToken() string {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}
