package oauth

import (
	"net/url"
	"testing"

	atcrypto "github.com/PIPOGit/OAuthBluesky-sub000/atproto/crypto"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalhostConfig(t *testing.T) {
	assert := assert.New(t)

	config := NewLocalhostConfig("http://127.0.0.1:8080/oauth/callback", []string{"atproto", "transition:generic"})
	u, err := url.Parse(config.ClientID)
	require.NoError(t, err)
	assert.Equal("http", u.Scheme)
	assert.Equal("localhost", u.Host)
	assert.Equal("http://127.0.0.1:8080/oauth/callback", u.Query().Get("redirect_uri"))
	assert.Equal("atproto transition:generic", u.Query().Get("scope"))
	assert.False(config.IsConfidential())
}

func TestPublicClientMetadata(t *testing.T) {
	assert := assert.New(t)

	config := NewPublicConfig(testClientID, "https://app.example.com/oauth/callback", []string{"atproto"})
	meta, err := config.ClientMetadata()
	require.NoError(t, err)
	assert.NoError(meta.Validate(testClientID))
	assert.Equal("none", meta.TokenEndpointAuthMethod)
	assert.Nil(meta.JWKS)
	assert.True(meta.DPoPBoundAccessTokens)
	assert.Equal([]string{"https://app.example.com/oauth/callback"}, meta.RedirectURIs)
}

func TestConfidentialClient(t *testing.T) {
	assert := assert.New(t)

	priv, err := atcrypto.GeneratePrivateKeyP256()
	require.NoError(t, err)

	config := NewPublicConfig(testClientID, "https://app.example.com/oauth/callback", []string{"atproto"})
	require.NoError(t, config.SetClientSecret(priv.Multibase(), "key-1"))
	assert.True(config.IsConfidential())

	meta, err := config.ClientMetadata()
	require.NoError(t, err)
	assert.Equal("private_key_jwt", meta.TokenEndpointAuthMethod)
	assert.Equal("ES256", meta.TokenEndpointAuthSigningAlg)
	require.NotNil(t, meta.JWKS)
	require.Len(t, meta.JWKS.Keys, 1)
	require.NotNil(t, meta.JWKS.Keys[0].KeyID)
	assert.Equal("key-1", *meta.JWKS.Keys[0].KeyID)

	assertion, err := config.NewAssertionJWT("https://auth.example.com")
	require.NoError(t, err)
	pub, err := priv.PublicKey()
	require.NoError(t, err)
	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(assertion, claims, func(tok *jwt.Token) (any, error) {
		return pub, nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	require.NoError(t, err)
	assert.Equal("key-1", tok.Header["kid"])
	assert.Equal(testClientID, claims["iss"])
	assert.Equal(testClientID, claims["sub"])
	aud, err := claims.GetAudience()
	require.NoError(t, err)
	assert.Equal(jwt.ClaimStrings{"https://auth.example.com"}, aud)
}

func TestAssertionRequiresSecret(t *testing.T) {
	config := NewPublicConfig(testClientID, "https://app.example.com/oauth/callback", []string{"atproto"})
	_, err := config.NewAssertionJWT("https://auth.example.com")
	assert.Error(t, err)
}

func TestSetClientSecretRejectsGarbage(t *testing.T) {
	config := NewPublicConfig(testClientID, "https://app.example.com/oauth/callback", []string{"atproto"})
	assert.Error(t, config.SetClientSecret("not-multibase", "key-1"))
}
