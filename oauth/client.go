package oauth

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	atcrypto "github.com/PIPOGit/OAuthBluesky-sub000/atproto/crypto"
	"github.com/PIPOGit/OAuthBluesky-sub000/atproto/identity"
	"github.com/PIPOGit/OAuthBluesky-sub000/atproto/syntax"

	"github.com/google/go-querystring/query"
)

// ClientApp ties together the auth flow: identity resolution, server
// discovery, PAR, the callback token exchange, and session resumption.
//
// The HTTP client used here is intentionally NOT the retrying client from
// the util package: DPoP proofs are single-use, so a transport-level retry
// of a proofed request would be rejected as a replay.
type ClientApp struct {
	Config   *ClientConfig
	Store    ClientAuthStore
	Dir      *identity.Directory
	Resolver *Resolver
	Client   *http.Client
}

func NewClientApp(config *ClientConfig, store ClientAuthStore) *ClientApp {
	return &ClientApp{
		Config:   config,
		Store:    store,
		Dir:      identity.DefaultDirectory(),
		Resolver: NewResolver(),
		Client: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// StartAuthFlow resolves the account identifier (handle or DID), discovers
// its PDS and authorization server, submits a pushed authorization request,
// persists the pending request state, and returns the URL to redirect the
// user to.
func (app *ClientApp) StartAuthFlow(ctx context.Context, identifier string) (string, error) {
	did, doc, loginHint, err := app.resolveIdentifier(ctx, identifier)
	if err != nil {
		return "", err
	}
	pdsURL, err := doc.PDSEndpoint()
	if err != nil {
		return "", fmt.Errorf("resolving PDS for %s: %w", did, err)
	}

	pdsMeta, err := app.Resolver.ResolveProtectedResource(ctx, pdsURL)
	if err != nil {
		return "", err
	}
	authServerURL, err := pdsMeta.AuthServerURL()
	if err != nil {
		return "", err
	}
	meta, err := app.Resolver.ResolveAuthServerMetadata(ctx, authServerURL)
	if err != nil {
		return "", err
	}

	priv, err := atcrypto.GeneratePrivateKeyP256()
	if err != nil {
		return "", fmt.Errorf("generating DPoP key: %w", err)
	}
	pkce, err := NewPKCE()
	if err != nil {
		return "", err
	}
	state := randomToken()

	assertionType, assertion, err := app.Config.assertionFields(meta.Issuer)
	if err != nil {
		return "", err
	}
	parBody := PushedAuthRequest{
		ClientID:            app.Config.ClientID,
		State:               state,
		RedirectURI:         app.Config.CallbackURL,
		Scope:               app.Config.Scope(),
		ResponseType:        "code",
		CodeChallenge:       pkce.Challenge,
		CodeChallengeMethod: pkce.Method,
		Prompt:              "login",
		LoginHint:           loginHint,
		ClientAssertionType: assertionType,
		ClientAssertion:     assertion,
	}
	vals, err := query.Values(parBody)
	if err != nil {
		return "", fmt.Errorf("encoding PAR body: %w", err)
	}

	nonces := NewNonceStore("")
	raw, err := postFormWithDPoP(ctx, app.Client, priv, app.Config.ClientID, meta.PushedAuthorizationRequestEndpoint, vals, nonces)
	if err != nil {
		return "", fmt.Errorf("pushed authorization request failed: %w", err)
	}
	var parResp PushedAuthResponse
	if err := json.Unmarshal(raw, &parResp); err != nil {
		return "", fmt.Errorf("parsing PAR response: %w", err)
	}
	if parResp.RequestURI == "" {
		return "", fmt.Errorf("PAR response missing request_uri")
	}

	info := AuthRequestData{
		State:                   state,
		AccountDID:              &did,
		HostURL:                 pdsURL,
		Scope:                   app.Config.Scope(),
		AuthServerURL:           authServerURL,
		AuthServerIssuer:        meta.Issuer,
		AuthServerTokenEndpoint: meta.TokenEndpoint,
		RevocationEndpoint:      meta.RevocationEndpoint,
		AuthServerMeta:          meta,
		DIDDoc:                  doc,
		PDSMeta:                 pdsMeta,
		RequestURI:              parResp.RequestURI,
		PKCEVerifier:            pkce.Verifier,
		DPoPAuthServerNonce:     nonces.Received(),
		DPoPPrivateKeyMultibase: priv.Multibase(),
	}
	if err := app.Store.SaveAuthRequestInfo(ctx, info); err != nil {
		return "", fmt.Errorf("persisting auth request: %w", err)
	}

	redirect := url.Values{}
	redirect.Set("client_id", app.Config.ClientID)
	redirect.Set("request_uri", parResp.RequestURI)
	slog.Info("auth flow started", "did", did, "authserver", authServerURL)
	return meta.AuthorizationEndpoint + "?" + redirect.Encode(), nil
}

func (app *ClientApp) resolveIdentifier(ctx context.Context, identifier string) (syntax.DID, *identity.DIDDocument, string, error) {
	identifier = strings.TrimSpace(strings.TrimPrefix(identifier, "@"))
	var did syntax.DID
	var loginHint string
	if strings.HasPrefix(identifier, "did:") {
		d, err := syntax.ParseDID(identifier)
		if err != nil {
			return "", nil, "", err
		}
		did = d
		loginHint = d.String()
	} else {
		handle, err := syntax.ParseHandle(identifier)
		if err != nil {
			return "", nil, "", err
		}
		d, err := app.Dir.ResolveHandle(ctx, handle)
		if err != nil {
			return "", nil, "", fmt.Errorf("resolving handle %s: %w", handle, err)
		}
		did = d
		loginHint = handle.String()
	}
	doc, err := app.Dir.ResolveDID(ctx, did)
	if err != nil {
		return "", nil, "", fmt.Errorf("resolving DID %s: %w", did, err)
	}
	return did, doc, loginHint, nil
}

// ProcessCallback consumes the redirect query parameters, verifies them
// against the persisted auth request, exchanges the code for tokens, and
// persists the new session. The auth request record is deleted whether the
// exchange succeeds or not; a state token is good for one attempt.
func (app *ClientApp) ProcessCallback(ctx context.Context, params url.Values) (*SessionData, error) {
	cb := parseCallbackParams(params)
	if cb.Error != "" {
		return nil, fmt.Errorf("authorization request denied: %s (%s)", cb.Error, cb.ErrorDescription)
	}
	if cb.State == "" {
		return nil, tokenError(TokenErrInvalidCode, "callback has no state parameter")
	}
	info, err := app.Store.GetAuthRequestInfo(ctx, cb.State)
	if err != nil {
		return nil, tokenError(TokenErrInvalidCode, "unknown or reused state token")
	}
	defer func() {
		if err := app.Store.DeleteAuthRequestInfo(ctx, cb.State); err != nil {
			slog.Warn("failed to delete auth request record", "err", err)
		}
	}()
	if subtle.ConstantTimeCompare([]byte(info.State), []byte(cb.State)) != 1 {
		return nil, tokenError(TokenErrInvalidCode, "state token mismatch")
	}
	if cb.ISS != "" && cb.ISS != info.AuthServerIssuer {
		return nil, tokenError(TokenErrAuthServerMismatch, fmt.Sprintf("callback iss %s, expected %s", cb.ISS, info.AuthServerIssuer))
	}
	if cb.Code == "" {
		return nil, tokenError(TokenErrNoAuthCode, "callback has no authorization code")
	}

	priv, err := atcrypto.ParsePrivateMultibase(info.DPoPPrivateKeyMultibase)
	if err != nil {
		return nil, fmt.Errorf("parsing persisted DPoP key: %w", err)
	}
	assertionType, assertion, err := app.Config.assertionFields(info.AuthServerIssuer)
	if err != nil {
		return nil, err
	}
	tokenBody := InitialTokenRequest{
		ClientID:            app.Config.ClientID,
		RedirectURI:         app.Config.CallbackURL,
		GrantType:           "authorization_code",
		Code:                cb.Code,
		CodeVerifier:        info.PKCEVerifier,
		ClientAssertionType: assertionType,
		ClientAssertion:     assertion,
	}
	vals, err := query.Values(tokenBody)
	if err != nil {
		return nil, fmt.Errorf("encoding token request: %w", err)
	}

	nonces := NewNonceStore(info.DPoPAuthServerNonce)
	raw, err := postFormWithDPoP(ctx, app.Client, priv, app.Config.ClientID, info.AuthServerTokenEndpoint, vals, nonces)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	var tokenResp TokenResponse
	if err := json.Unmarshal(raw, &tokenResp); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, tokenError(TokenErrNoAccessToken, "token response has no access token")
	}
	grantedDID, err := syntax.ParseDID(tokenResp.Subject)
	if err != nil {
		return nil, fmt.Errorf("token response subject: %w", err)
	}
	if info.AccountDID != nil && grantedDID != *info.AccountDID {
		return nil, tokenError(TokenErrDIDMismatch, fmt.Sprintf("granted %s, requested %s", grantedDID, *info.AccountDID))
	}

	sess := SessionData{
		SessionID:               randomToken(),
		AccountDID:              grantedDID,
		HostURL:                 info.HostURL,
		Scope:                   tokenResp.Scope,
		AuthServerURL:           info.AuthServerURL,
		AuthServerIssuer:        info.AuthServerIssuer,
		AuthServerTokenEndpoint: info.AuthServerTokenEndpoint,
		RevocationEndpoint:      info.RevocationEndpoint,
		AuthServerMeta:          info.AuthServerMeta,
		DIDDoc:                  info.DIDDoc,
		PDSMeta:                 info.PDSMeta,
		AccessToken:             tokenResp.AccessToken,
		RefreshToken:            tokenResp.RefreshToken,
		AccessTokenHash:         S256CodeChallenge(tokenResp.AccessToken),
		Authentication:          &tokenResp,
		DPoPAuthServerNonce:     nonces.Received(),
		DPoPPrivateKeyMultibase: info.DPoPPrivateKeyMultibase,
	}
	if sess.Scope == "" {
		sess.Scope = info.Scope
	}
	if err := app.Store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}
	slog.Info("auth flow completed", "did", grantedDID, "session", sess.SessionID)
	return &sess, nil
}

// ResumeSession loads persisted session data, validates the stored access
// token against the persisted discovery documents, and reconstructs a live
// [ClientSession]. A token inside the refresh lead window, or an expired
// token with a refresh token still on hand, is refreshed before the session
// is returned; any other validation failure surfaces as a *TokenError and
// the caller should force a fresh login.
func (app *ClientApp) ResumeSession(ctx context.Context, did syntax.DID, sessionID string) (*ClientSession, error) {
	sess, err := app.loadSession(ctx, did, sessionID)
	if err != nil {
		return nil, err
	}
	data := sess.Data
	status, err := ValidateAccessToken(time.Now(), data.AccessToken, data.AuthServerMeta, data.Authentication, data.DIDDoc, data.PDSMeta, data.AccountDID)
	switch {
	case err == nil && !status.NeedsRefresh:
		return sess, nil
	case err == nil:
		slog.Info("access token near expiry, refreshing", "did", did, "expires", status.ExpiresAt)
	case errors.Is(err, &TokenError{Code: TokenErrExpiredToken}) && data.RefreshToken != "":
		slog.Info("access token expired, refreshing", "did", did)
	default:
		return nil, err
	}
	if err := sess.RefreshTokens(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

func (app *ClientApp) loadSession(ctx context.Context, did syntax.DID, sessionID string) (*ClientSession, error) {
	data, err := app.Store.GetSession(ctx, did, sessionID)
	if err != nil {
		return nil, err
	}
	return app.sessionFromData(data)
}

// NewSession wraps freshly-exchanged session data (e.g. the return value of
// ProcessCallback) without a store round-trip.
func (app *ClientApp) NewSession(data *SessionData) (*ClientSession, error) {
	return app.sessionFromData(data)
}

func (app *ClientApp) sessionFromData(data *SessionData) (*ClientSession, error) {
	priv, err := atcrypto.ParsePrivateMultibase(data.DPoPPrivateKeyMultibase)
	if err != nil {
		return nil, fmt.Errorf("parsing persisted DPoP key: %w", err)
	}
	return &ClientSession{
		Client:     app.Client,
		Config:     app.Config,
		Store:      app.Store,
		Data:       data,
		DPoPKey:    priv,
		authNonces: NewNonceStore(data.DPoPAuthServerNonce),
		hostNonces: NewNonceStore(data.DPoPHostNonce),
	}, nil
}

// RefreshSession loads a persisted session, performs a refresh_token
// grant, and returns the session with its new token set already persisted.
func (app *ClientApp) RefreshSession(ctx context.Context, did syntax.DID, sessionID string) (*ClientSession, error) {
	sess, err := app.loadSession(ctx, did, sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.RefreshTokens(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

// Logout revokes the session's tokens (best effort) and deletes the stored
// session. The session is loaded without token validation; a logout must
// work even when the token set is expired or inconsistent.
func (app *ClientApp) Logout(ctx context.Context, did syntax.DID, sessionID string) error {
	sess, err := app.loadSession(ctx, did, sessionID)
	if err != nil {
		return err
	}
	if err := sess.RevokeTokens(ctx); err != nil {
		slog.Warn("token revocation failed", "did", did, "err", err)
	}
	return app.Store.DeleteSession(ctx, did, sessionID)
}

const maxResponseBodySize = 1024 * 1024

// postFormWithDPoP sends a form-encoded POST to an auth server endpoint
// with a DPoP proof and no ath claim, absorbing at most one use_dpop_nonce
// challenge. The nonce store is updated from every response, success or
// failure, so callers can persist the latest nonce afterwards.
func postFormWithDPoP(ctx context.Context, client *http.Client, priv atcrypto.PrivateKey, clientID, endpoint string, vals url.Values, nonces *NonceStore) ([]byte, error) {
	body := []byte(vals.Encode())

	attempt := func() ([]byte, error) {
		proof, err := NewDPoPProof(priv, clientID, http.MethodPost, endpoint, nonces.Consume())
		if err != nil {
			return nil, fmt.Errorf("signing DPoP proof: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("DPoP", proof)
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		nonces.Observe(resp.Header.Get("DPoP-Nonce"))
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return nil, errorFromResponse(resp)
		}
		defer resp.Body.Close()
		return io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	}

	raw, err := attempt()
	if herr := asDPoPNonceError(err); herr != nil {
		slog.Info("auth server requested new DPoP nonce, retrying", "endpoint", endpoint, "status", herr.StatusCode)
		return attempt()
	}
	return raw, err
}

func asDPoPNonceError(err error) *HTTPError {
	var herr *HTTPError
	if errors.As(err, &herr) && herr.IsDPoPNonceError() {
		return herr
	}
	return nil
}
