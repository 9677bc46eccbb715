package oauth

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/PIPOGit/OAuthBluesky-sub000/atproto/identity"
	"github.com/PIPOGit/OAuthBluesky-sub000/atproto/syntax"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer = "https://auth.example.com"
	testDID    = syntax.DID("did:plc:abc123def456ghi789jkl012")
)

func makeToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	header, err := json.Marshal(map[string]any{"alg": "ES256", "typ": "at+jwt"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString([]byte("sig"))
}

func validInputs(t *testing.T, now time.Time) (string, *AuthServerMetadata, *TokenResponse, *identity.DIDDocument, *ProtectedResourceMetadata) {
	token := makeToken(t, map[string]any{
		"iss": testIssuer,
		"sub": testDID.String(),
		"exp": now.Add(time.Hour).Unix(),
	})
	meta := &AuthServerMetadata{Issuer: testIssuer}
	auth := &TokenResponse{AccessToken: token, Subject: testDID.String()}
	doc := &identity.DIDDocument{DID: testDID}
	pdsMeta := &ProtectedResourceMetadata{AuthorizationServers: []string{testIssuer}}
	return token, meta, auth, doc, pdsMeta
}

func TestValidateAccessToken(t *testing.T) {
	assert := assert.New(t)
	now := time.Now()
	token, meta, auth, doc, pdsMeta := validInputs(t, now)

	status, err := ValidateAccessToken(now, token, meta, auth, doc, pdsMeta, testDID)
	require.NoError(t, err)
	assert.False(status.NeedsRefresh)
	assert.WithinDuration(now.Add(time.Hour), status.ExpiresAt, time.Second)
}

func TestValidateAccessTokenMissingInputs(t *testing.T) {
	now := time.Now()
	token, meta, auth, doc, pdsMeta := validInputs(t, now)

	cases := []struct {
		name string
		run  func() error
		code TokenErrorCode
	}{
		{"no auth server metadata", func() error {
			_, err := ValidateAccessToken(now, token, nil, auth, doc, pdsMeta, testDID)
			return err
		}, TokenErrNoAuthServerMeta},
		{"no authentication", func() error {
			_, err := ValidateAccessToken(now, token, meta, nil, doc, pdsMeta, testDID)
			return err
		}, TokenErrNoAuthentication},
		{"no access token", func() error {
			_, err := ValidateAccessToken(now, "", meta, auth, doc, pdsMeta, testDID)
			return err
		}, TokenErrNoAccessToken},
		{"no DID document", func() error {
			_, err := ValidateAccessToken(now, token, meta, auth, nil, pdsMeta, testDID)
			return err
		}, TokenErrNoDIDDocument},
		{"no PDS metadata", func() error {
			_, err := ValidateAccessToken(now, token, meta, auth, doc, nil, testDID)
			return err
		}, TokenErrNoPDSMetadata},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			require.Error(t, err)
			var terr *TokenError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, tc.code, terr.Code)
		})
	}
}

func TestValidateAccessTokenClaimChecks(t *testing.T) {
	now := time.Now()
	_, meta, auth, doc, pdsMeta := validInputs(t, now)

	check := func(t *testing.T, token string, wantCode TokenErrorCode) {
		t.Helper()
		_, err := ValidateAccessToken(now, token, meta, auth, doc, pdsMeta, testDID)
		require.Error(t, err)
		var terr *TokenError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, wantCode, terr.Code)
	}

	t.Run("not a JWT", func(t *testing.T) {
		check(t, "opaque-token", TokenErrInvalidToken)
	})
	t.Run("garbage payload", func(t *testing.T) {
		check(t, "aGVhZGVy.!!!!.c2ln", TokenErrInvalidToken)
	})
	t.Run("issuer mismatch", func(t *testing.T) {
		check(t, makeToken(t, map[string]any{
			"iss": "https://evil.example.com",
			"sub": testDID.String(),
			"exp": now.Add(time.Hour).Unix(),
		}), TokenErrAuthServerMismatch)
	})
	t.Run("subject mismatch", func(t *testing.T) {
		check(t, makeToken(t, map[string]any{
			"iss": testIssuer,
			"sub": "did:plc:someoneelse0000000000000",
			"exp": now.Add(time.Hour).Unix(),
		}), TokenErrDIDMismatch)
	})
	t.Run("missing expiry", func(t *testing.T) {
		check(t, makeToken(t, map[string]any{
			"iss": testIssuer,
			"sub": testDID.String(),
		}), TokenErrInvalidToken)
	})
	t.Run("expired", func(t *testing.T) {
		check(t, makeToken(t, map[string]any{
			"iss": testIssuer,
			"sub": testDID.String(),
			"exp": now.Add(-time.Minute).Unix(),
		}), TokenErrExpiredToken)
	})
	t.Run("expiry exactly now", func(t *testing.T) {
		check(t, makeToken(t, map[string]any{
			"iss": testIssuer,
			"sub": testDID.String(),
			"exp": now.Unix(),
		}), TokenErrExpiredToken)
	})
}

func TestValidateAccessTokenRefreshWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	_, meta, auth, doc, pdsMeta := validInputs(t, now)

	inWindow := makeToken(t, map[string]any{
		"iss": testIssuer,
		"sub": testDID.String(),
		"exp": now.Add(RefreshLeadWindow - time.Second).Unix(),
	})
	status, err := ValidateAccessToken(now, inWindow, meta, auth, doc, pdsMeta, testDID)
	require.NoError(t, err)
	assert.True(t, status.NeedsRefresh)

	atBoundary := makeToken(t, map[string]any{
		"iss": testIssuer,
		"sub": testDID.String(),
		"exp": now.Add(RefreshLeadWindow).Unix(),
	})
	status, err = ValidateAccessToken(now, atBoundary, meta, auth, doc, pdsMeta, testDID)
	require.NoError(t, err)
	assert.True(t, status.NeedsRefresh)

	outside := makeToken(t, map[string]any{
		"iss": testIssuer,
		"sub": testDID.String(),
		"exp": now.Add(RefreshLeadWindow + time.Second).Unix(),
	})
	status, err = ValidateAccessToken(now, outside, meta, auth, doc, pdsMeta, testDID)
	require.NoError(t, err)
	assert.False(t, status.NeedsRefresh)
}
