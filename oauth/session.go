package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	atcrypto "github.com/PIPOGit/OAuthBluesky-sub000/atproto/crypto"

	"github.com/google/go-querystring/query"
)

// ClientSession is a live authenticated session for one account: the token
// set, the session's DPoP key, and the nonce state for both the auth server
// and the PDS host. Safe for concurrent use.
type ClientSession struct {
	Client  *http.Client
	Config  *ClientConfig
	Store   ClientAuthStore
	Data    *SessionData
	DPoPKey atcrypto.PrivateKey

	authNonces *NonceStore
	hostNonces *NonceStore

	// lk guards the token fields of Data. The nonce stores carry their
	// own locks.
	lk sync.RWMutex
}

// DoWithAuth sends an HTTP request to the session's PDS with an access
// token and a bound DPoP proof attached. If the host answers with a
// use_dpop_nonce challenge the request is retried exactly once with the
// fresh nonce; any other failure, and any failure of the retry itself, is
// returned as-is.
//
// Requests with a body must set GetBody (http.NewRequest does this for
// common reader types); a challenge on a non-replayable body is returned
// without retry.
func (s *ClientSession) DoWithAuth(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := s.attemptWithAuth(ctx, req)
	herr := asDPoPNonceError(err)
	if herr == nil {
		return resp, err
	}
	if req.Body != nil && req.GetBody == nil {
		return nil, fmt.Errorf("cannot retry request with non-replayable body: %w", herr)
	}
	slog.Info("host requested new DPoP nonce, retrying", "url", req.URL, "status", herr.StatusCode)
	return s.attemptWithAuth(ctx, req)
}

func (s *ClientSession) attemptWithAuth(ctx context.Context, req *http.Request) (*http.Response, error) {
	accessToken := s.AccessToken()
	proof, err := NewAccessDPoPProof(s.DPoPKey, s.Config.ClientID, req.Method, req.URL.String(), s.hostNonces.Consume(), accessToken)
	if err != nil {
		return nil, fmt.Errorf("signing DPoP proof: %w", err)
	}
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		req.Body = body
	}
	req.Header.Set("Authorization", "DPoP "+accessToken)
	req.Header.Set("DPoP", proof)
	if s.Config.UserAgent != "" {
		req.Header.Set("User-Agent", s.Config.UserAgent)
	}

	resp, err := s.Client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	rotated := s.hostNonces.Observe(resp.Header.Get("DPoP-Nonce"))
	if wa := resp.Header.Get("WWW-Authenticate"); wa != "" {
		s.lk.Lock()
		s.Data.HostWWWAuthenticate = wa
		s.lk.Unlock()
	}
	if rotated {
		s.checkpoint(ctx)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errorFromResponse(resp)
	}
	return resp, nil
}

// AccessToken returns the current access token.
func (s *ClientSession) AccessToken() string {
	s.lk.RLock()
	defer s.lk.RUnlock()
	return s.Data.AccessToken
}

// RefreshTokens performs a refresh_token grant against the auth server and
// replaces the session's token set wholesale, then persists the session.
func (s *ClientSession) RefreshTokens(ctx context.Context) error {
	s.lk.RLock()
	refreshToken := s.Data.RefreshToken
	endpoint := s.Data.AuthServerTokenEndpoint
	issuer := s.Data.AuthServerIssuer
	s.lk.RUnlock()
	if refreshToken == "" {
		return tokenError(TokenErrNoAuthentication, "session has no refresh token")
	}

	assertionType, assertion, err := s.Config.assertionFields(issuer)
	if err != nil {
		return err
	}
	body := RefreshTokenRequest{
		ClientID:            s.Config.ClientID,
		RedirectURI:         s.Config.CallbackURL,
		GrantType:           "refresh_token",
		RefreshToken:        refreshToken,
		ClientAssertionType: assertionType,
		ClientAssertion:     assertion,
	}
	vals, err := query.Values(body)
	if err != nil {
		return fmt.Errorf("encoding refresh request: %w", err)
	}

	raw, err := postFormWithDPoP(ctx, s.Client, s.DPoPKey, s.Config.ClientID, endpoint, vals, s.authNonces)
	if err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}
	var tokenResp TokenResponse
	if err := json.Unmarshal(raw, &tokenResp); err != nil {
		return fmt.Errorf("parsing refresh response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return tokenError(TokenErrNoAccessToken, "refresh response has no access token")
	}

	s.lk.Lock()
	s.Data.AccessToken = tokenResp.AccessToken
	if tokenResp.RefreshToken != "" {
		s.Data.RefreshToken = tokenResp.RefreshToken
	}
	s.Data.AccessTokenHash = S256CodeChallenge(tokenResp.AccessToken)
	s.Data.Authentication = &tokenResp
	if tokenResp.Scope != "" {
		s.Data.Scope = tokenResp.Scope
	}
	s.lk.Unlock()

	s.checkpoint(ctx)
	slog.Info("session tokens refreshed", "did", s.Data.AccountDID)
	return nil
}

// RevokeTokens asks the auth server to revoke the refresh token (which
// cascades to the access token). Servers without a revocation endpoint are
// not an error; tokens then simply age out.
func (s *ClientSession) RevokeTokens(ctx context.Context) error {
	s.lk.RLock()
	endpoint := s.Data.RevocationEndpoint
	issuer := s.Data.AuthServerIssuer
	token := s.Data.RefreshToken
	hint := "refresh_token"
	if token == "" {
		token = s.Data.AccessToken
		hint = "access_token"
	}
	s.lk.RUnlock()
	if endpoint == "" {
		return nil
	}
	if token == "" {
		return nil
	}

	assertionType, assertion, err := s.Config.assertionFields(issuer)
	if err != nil {
		return err
	}
	body := RevokeTokenRequest{
		ClientID:            s.Config.ClientID,
		Token:               token,
		TokenTypeHint:       hint,
		ClientAssertionType: assertionType,
		ClientAssertion:     assertion,
	}
	vals, err := query.Values(body)
	if err != nil {
		return fmt.Errorf("encoding revocation request: %w", err)
	}
	_, err = postFormWithDPoP(ctx, s.Client, s.DPoPKey, s.Config.ClientID, endpoint, vals, s.authNonces)
	if err != nil {
		return fmt.Errorf("token revocation failed: %w", err)
	}
	return nil
}

// checkpoint persists the current session data, including the latest
// nonces. Persistence failures are logged, not returned: the in-memory
// session is still coherent and the next checkpoint retries.
func (s *ClientSession) checkpoint(ctx context.Context) {
	s.lk.Lock()
	s.Data.DPoPAuthServerNonce = s.authNonces.Received()
	s.Data.DPoPHostNonce = s.hostNonces.Received()
	data := *s.Data
	s.lk.Unlock()
	if err := s.Store.SaveSession(ctx, data); err != nil {
		slog.Warn("failed to persist session", "did", data.AccountDID, "err", err)
	}
}
