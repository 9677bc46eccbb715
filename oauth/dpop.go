package oauth

import (
	"fmt"
	"net/url"
	"time"

	atcrypto "github.com/PIPOGit/OAuthBluesky-sub000/atproto/crypto"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DPoP proofs are single-use and short-lived; servers only need them to be
// valid at the instant of the request.
const dpopProofLifetime = 30 * time.Second

type dpopClaims struct {
	jwt.RegisteredClaims

	HTTPMethod      string `json:"htm"`
	TargetURI       string `json:"htu"`
	AccessTokenHash string `json:"ath,omitempty"`
	Nonce           string `json:"nonce,omitempty"`
}

// NewDPoPProof builds and signs a DPoP proof JWT for an auth server request
// (PAR, token, refresh, revocation). These proofs never carry an `ath`
// claim. An empty nonce omits the claim entirely.
func NewDPoPProof(priv atcrypto.PrivateKey, clientID, httpMethod, reqURL, nonce string) (string, error) {
	return signDPoPProof(priv, dpopClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    clientID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(dpopProofLifetime)),
		},
		HTTPMethod: httpMethod,
		TargetURI:  sanitizeHTU(reqURL),
		Nonce:      nonce,
	})
}

// NewAccessDPoPProof builds and signs a DPoP proof JWT for a resource server
// request made with an access token. The `ath` claim binds the proof to the
// token by its SHA-256 hash.
func NewAccessDPoPProof(priv atcrypto.PrivateKey, clientID, httpMethod, reqURL, nonce, accessToken string) (string, error) {
	return signDPoPProof(priv, dpopClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    clientID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(dpopProofLifetime)),
		},
		HTTPMethod:      httpMethod,
		TargetURI:       sanitizeHTU(reqURL),
		AccessTokenHash: S256CodeChallenge(accessToken),
		Nonce:           nonce,
	})
}

func signDPoPProof(priv atcrypto.PrivateKey, claims dpopClaims) (string, error) {
	pub, err := priv.PublicKey()
	if err != nil {
		return "", fmt.Errorf("extracting DPoP public key: %w", err)
	}
	jwk, err := pub.JWK()
	if err != nil {
		return "", fmt.Errorf("exporting DPoP public key: %w", err)
	}
	tok := jwt.NewWithClaims(signingMethodES256, claims)
	tok.Header["typ"] = "dpop+jwt"
	tok.Header["jwk"] = jwk
	return tok.SignedString(priv)
}

// sanitizeHTU normalizes a request URL for the `htu` claim: the query string
// and fragment never participate in proof matching.
func sanitizeHTU(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
