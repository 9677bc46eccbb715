package oauth

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	atcrypto "github.com/PIPOGit/OAuthBluesky-sub000/atproto/crypto"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ClientConfig identifies this application to authorization servers. Public
// clients need only a client ID URL and callback; confidential clients also
// hold a signing key for client assertion JWTs.
type ClientConfig struct {
	// ClientID is a fully-qualified URL where the client metadata document
	// is published (or the http://localhost development form).
	ClientID string

	// CallbackURL is the redirect URI delivered the authorization code.
	CallbackURL string

	// Scopes requested during the auth flow. Must include "atproto".
	Scopes []string

	// ClientSecretKey is set for confidential clients only.
	ClientSecretKey atcrypto.PrivateKey

	// ClientSecretKeyID is the `kid` the published JWKS uses for the
	// secret key.
	ClientSecretKeyID string

	// UserAgent is sent on all outbound requests when non-empty.
	UserAgent string
}

// NewPublicConfig is the configuration for a public client with a hosted
// client metadata document.
func NewPublicConfig(clientID, callbackURL string, scopes []string) ClientConfig {
	return ClientConfig{
		ClientID:    clientID,
		CallbackURL: callbackURL,
		Scopes:      scopes,
	}
}

// NewLocalhostConfig builds the special development-mode configuration,
// where the client ID is a synthetic http://localhost URL encoding the
// redirect URI and scopes and no metadata document needs to be hosted.
func NewLocalhostConfig(callbackURL string, scopes []string) ClientConfig {
	v := url.Values{}
	v.Set("redirect_uri", callbackURL)
	v.Set("scope", strings.Join(scopes, " "))
	return ClientConfig{
		ClientID:    "http://localhost?" + v.Encode(),
		CallbackURL: callbackURL,
		Scopes:      scopes,
	}
}

// SetClientSecret upgrades the config to a confidential client. The
// multibase string must encode a P-256 private key; keyID must match the
// published JWKS entry.
func (c *ClientConfig) SetClientSecret(privateKeyMultibase, keyID string) error {
	priv, err := atcrypto.ParsePrivateMultibase(privateKeyMultibase)
	if err != nil {
		return fmt.Errorf("parsing client secret key: %w", err)
	}
	c.ClientSecretKey = priv
	c.ClientSecretKeyID = keyID
	return nil
}

// IsConfidential indicates whether the client authenticates with assertion
// JWTs in addition to DPoP.
func (c *ClientConfig) IsConfidential() bool {
	return c.ClientSecretKey != nil
}

// Scope returns the space-separated scope string for request bodies.
func (c *ClientConfig) Scope() string {
	return strings.Join(c.Scopes, " ")
}

// NewAssertionJWT signs a fresh client assertion for the given
// authorization server issuer. Only valid on confidential clients.
func (c *ClientConfig) NewAssertionJWT(authServerIssuer string) (string, error) {
	if !c.IsConfidential() {
		return "", fmt.Errorf("client assertions require a client secret key")
	}
	claims := jwt.RegisteredClaims{
		Issuer:   c.ClientID,
		Subject:  c.ClientID,
		Audience: jwt.ClaimStrings{authServerIssuer},
		ID:       uuid.NewString(),
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	tok := jwt.NewWithClaims(signingMethodES256, claims)
	tok.Header["kid"] = c.ClientSecretKeyID
	return tok.SignedString(c.ClientSecretKey)
}

// ClientMetadata renders the client metadata document to publish at the
// ClientID URL.
func (c *ClientConfig) ClientMetadata() (*ClientMetadata, error) {
	meta := ClientMetadata{
		ClientID:                c.ClientID,
		ApplicationType:         "web",
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		Scope:                   c.Scope(),
		ResponseTypes:           []string{"code"},
		RedirectURIs:            []string{c.CallbackURL},
		DPoPBoundAccessTokens:   true,
		TokenEndpointAuthMethod: "none",
	}
	if c.IsConfidential() {
		pub, err := c.ClientSecretKey.PublicKey()
		if err != nil {
			return nil, fmt.Errorf("extracting client public key: %w", err)
		}
		jwk, err := pub.JWK()
		if err != nil {
			return nil, fmt.Errorf("exporting client public key: %w", err)
		}
		jwk.Use = "sig"
		kid := c.ClientSecretKeyID
		jwk.KeyID = &kid
		meta.TokenEndpointAuthMethod = "private_key_jwt"
		meta.TokenEndpointAuthSigningAlg = "ES256"
		meta.JWKS = &clientJWKS{Keys: []atcrypto.JWK{*jwk}}
	}
	return &meta, nil
}

const clientAssertionTypeJWT = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// assertionFields fills the optional client assertion pair for form bodies,
// returning nils for public clients.
func (c *ClientConfig) assertionFields(authServerIssuer string) (*string, *string, error) {
	if !c.IsConfidential() {
		return nil, nil, nil
	}
	assertion, err := c.NewAssertionJWT(authServerIssuer)
	if err != nil {
		return nil, nil, err
	}
	typ := clientAssertionTypeJWT
	return &typ, &assertion, nil
}
