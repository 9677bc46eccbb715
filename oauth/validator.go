package oauth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PIPOGit/OAuthBluesky-sub000/atproto/identity"
	"github.com/PIPOGit/OAuthBluesky-sub000/atproto/syntax"
)

// RefreshLeadWindow is how long before expiry a token is reported as
// needing refresh, so callers rotate before hitting a 401 mid-request.
const RefreshLeadWindow = 2 * time.Minute

// TokenStatus is the outcome of a successful validation.
type TokenStatus struct {
	// NeedsRefresh is set when the token is still valid but expires
	// within [RefreshLeadWindow].
	NeedsRefresh bool

	// ExpiresAt is the token's `exp` claim.
	ExpiresAt time.Time
}

// accessTokenClaims are the payload fields validation inspects. The token
// signature is NOT verified: only the issuing server can do that, and the
// client holds no verification key. Validation here is a local consistency
// check, not an authenticity proof.
type accessTokenClaims struct {
	Issuer    string `json:"iss"`
	Subject   string `json:"sub"`
	ExpiresAt int64  `json:"exp"`
}

// ValidateAccessToken runs the ordered consistency checks over a session's
// access token and its supporting context. It is a pure function of its
// inputs; now is passed explicitly so callers and tests control the clock.
//
// Every failure is a *TokenError with a stable code. The first failing
// check wins.
func ValidateAccessToken(now time.Time, accessToken string, authMeta *AuthServerMetadata, auth *TokenResponse, doc *identity.DIDDocument, pdsMeta *ProtectedResourceMetadata, accountDID syntax.DID) (TokenStatus, error) {
	if authMeta == nil {
		return TokenStatus{}, tokenError(TokenErrNoAuthServerMeta, "session has no auth server metadata")
	}
	if auth == nil {
		return TokenStatus{}, tokenError(TokenErrNoAuthentication, "session has no token endpoint response")
	}
	if accessToken == "" {
		return TokenStatus{}, tokenError(TokenErrNoAccessToken, "session has no access token")
	}
	if doc == nil {
		return TokenStatus{}, tokenError(TokenErrNoDIDDocument, "session has no DID document")
	}
	if pdsMeta == nil {
		return TokenStatus{}, tokenError(TokenErrNoPDSMetadata, "session has no PDS metadata")
	}
	claims, err := decodeTokenClaims(accessToken)
	if err != nil {
		return TokenStatus{}, tokenError(TokenErrInvalidToken, err.Error())
	}
	if claims.Issuer != authMeta.Issuer {
		return TokenStatus{}, tokenError(TokenErrAuthServerMismatch, fmt.Sprintf("token issuer %s, expected %s", claims.Issuer, authMeta.Issuer))
	}
	if claims.Subject != accountDID.String() {
		return TokenStatus{}, tokenError(TokenErrDIDMismatch, fmt.Sprintf("token subject %s, expected %s", claims.Subject, accountDID))
	}
	if claims.ExpiresAt == 0 {
		return TokenStatus{}, tokenError(TokenErrInvalidToken, "token has no expiry")
	}
	exp := time.Unix(claims.ExpiresAt, 0)
	if !exp.After(now) {
		return TokenStatus{}, tokenError(TokenErrExpiredToken, fmt.Sprintf("token expired at %s", exp.UTC().Format(time.RFC3339)))
	}
	return TokenStatus{
		NeedsRefresh: !exp.After(now.Add(RefreshLeadWindow)),
		ExpiresAt:    exp,
	}, nil
}

// decodeTokenClaims parses the payload segment of a JWT without verifying
// the signature.
func decodeTokenClaims(token string) (*accessTokenClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("token is not a JWT")
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("invalid token payload encoding: %w", err)
	}
	var claims accessTokenClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, fmt.Errorf("invalid token payload JSON: %w", err)
	}
	return &claims, nil
}
