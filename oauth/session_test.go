package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	atcrypto "github.com/PIPOGit/OAuthBluesky-sub000/atproto/crypto"
	"github.com/PIPOGit/OAuthBluesky-sub000/atproto/syntax"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unverifiedProofClaims decodes a DPoP proof without checking the
// signature, the way a server extracts claims before key confirmation.
func unverifiedProofClaims(t *testing.T, proof string) (map[string]any, jwt.MapClaims) {
	t.Helper()
	claims := jwt.MapClaims{}
	tok, _, err := jwt.NewParser().ParseUnverified(proof, claims)
	require.NoError(t, err)
	return tok.Header, claims
}

func newTestSession(t *testing.T, hostURL string) (*ClientSession, *MemStore) {
	t.Helper()
	priv, err := atcrypto.GeneratePrivateKeyP256()
	require.NoError(t, err)

	did := syntax.DID("did:plc:abc123def456ghi789jkl012")
	data := SessionData{
		SessionID:               "sess-1",
		AccountDID:              did,
		HostURL:                 hostURL,
		AuthServerURL:           "https://auth.example.com",
		AuthServerIssuer:        "https://auth.example.com",
		AuthServerTokenEndpoint: "https://auth.example.com/oauth/token",
		AccessToken:             "access-token-1",
		RefreshToken:            "refresh-token-1",
		AccessTokenHash:         S256CodeChallenge("access-token-1"),
		DPoPPrivateKeyMultibase: priv.Multibase(),
	}
	store := NewMemStore()
	require.NoError(t, store.SaveSession(context.Background(), data))

	config := NewPublicConfig(testClientID, "https://app.example.com/callback", []string{"atproto"})
	app := NewClientApp(&config, store)
	sess, err := app.NewSession(&data)
	require.NoError(t, err)
	return sess, store
}

func TestDoWithAuthNonceRetry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var requests int
	var proofs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		proofs = append(proofs, r.Header.Get("DPoP"))
		assert.Equal("DPoP access-token-1", r.Header.Get("Authorization"))
		if requests == 1 {
			w.Header().Set("DPoP-Nonce", "host-nonce-2")
			w.Header().Set("WWW-Authenticate", `DPoP error="use_dpop_nonce"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "use_dpop_nonce"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	sess, store := newTestSession(t, srv.URL)
	sess.Client = srv.Client()

	req, err := http.NewRequest("GET", srv.URL+"/xrpc/app.bsky.actor.getProfile?actor=alice", nil)
	require.NoError(t, err)
	resp, err := sess.DoWithAuth(ctx, req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, requests)

	// first proof carried no nonce; retry picked up the server's value
	_, first := unverifiedProofClaims(t, proofs[0])
	assert.NotContains(first, "nonce")
	_, second := unverifiedProofClaims(t, proofs[1])
	assert.Equal("host-nonce-2", second["nonce"])

	// both proofs bind the same access token
	assert.Equal(S256CodeChallenge("access-token-1"), first["ath"])
	assert.Equal(S256CodeChallenge("access-token-1"), second["ath"])

	// fresh jti per proof
	assert.NotEqual(first["jti"], second["jti"])

	// rotation was checkpointed, along with the challenge header
	saved, err := store.GetSession(ctx, sess.Data.AccountDID, "sess-1")
	require.NoError(t, err)
	assert.Equal("host-nonce-2", saved.DPoPHostNonce)
	assert.Equal(`DPoP error="use_dpop_nonce"`, saved.HostWWWAuthenticate)
}

func TestDoWithAuthRetryBounded(t *testing.T) {
	assert := assert.New(t)

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("DPoP-Nonce", "always-stale")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "use_dpop_nonce"}`))
	}))
	defer srv.Close()

	sess, _ := newTestSession(t, srv.URL)
	sess.Client = srv.Client()

	req, err := http.NewRequest("GET", srv.URL+"/xrpc/app.bsky.actor.getProfile", nil)
	require.NoError(t, err)
	_, err = sess.DoWithAuth(context.Background(), req)
	require.Error(t, err)
	assert.Equal(2, requests, "exactly one retry")

	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.True(herr.IsDPoPNonceError())
}

func TestDoWithAuthReplaysBody(t *testing.T) {
	assert := assert.New(t)

	var requests int
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		raw, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(raw))
		if requests == 1 {
			w.Header().Set("DPoP-Nonce", "n2")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": "use_dpop_nonce"}`))
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	sess, _ := newTestSession(t, srv.URL)
	sess.Client = srv.Client()

	payload := `{"collection": "app.bsky.feed.post"}`
	req, err := http.NewRequest("POST", srv.URL+"/xrpc/com.atproto.repo.createRecord", bytes.NewReader([]byte(payload)))
	require.NoError(t, err)
	resp, err := sess.DoWithAuth(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, 2, requests)
	assert.Equal(payload, bodies[0])
	assert.Equal(payload, bodies[1])
}

func TestDoWithAuthOtherErrorsNotRetried(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": "insufficient_scope"}`))
	}))
	defer srv.Close()

	sess, _ := newTestSession(t, srv.URL)
	sess.Client = srv.Client()

	req, err := http.NewRequest("GET", srv.URL+"/xrpc/app.bsky.actor.getProfile", nil)
	require.NoError(t, err)
	_, err = sess.DoWithAuth(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 1, requests)

	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "insufficient_scope", herr.ErrorCode())
}

func TestRefreshTokens(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	newToken := makeToken(t, map[string]any{"iss": "https://auth.example.com", "sub": "did:plc:abc123def456ghi789jkl012"})
	var grantType, refreshToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		grantType = r.PostForm.Get("grant_type")
		refreshToken = r.PostForm.Get("refresh_token")
		assert.NotEmpty(r.Header.Get("DPoP"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TokenResponse{
			AccessToken:  newToken,
			RefreshToken: "refresh-token-2",
			TokenType:    "DPoP",
			Subject:      "did:plc:abc123def456ghi789jkl012",
			Scope:        "atproto",
			ExpiresIn:    3600,
		})
	}))
	defer srv.Close()

	sess, store := newTestSession(t, "https://pds.example.com")
	sess.Client = srv.Client()
	sess.Data.AuthServerTokenEndpoint = srv.URL + "/oauth/token"

	require.NoError(t, sess.RefreshTokens(ctx))
	assert.Equal("refresh_token", grantType)
	assert.Equal("refresh-token-1", refreshToken)
	assert.Equal(newToken, sess.AccessToken())
	assert.Equal(S256CodeChallenge(newToken), sess.Data.AccessTokenHash)

	saved, err := store.GetSession(ctx, sess.Data.AccountDID, "sess-1")
	require.NoError(t, err)
	assert.Equal(newToken, saved.AccessToken)
	assert.Equal("refresh-token-2", saved.RefreshToken)
}
