package oauth

import (
	"fmt"
	"net/url"

	"github.com/PIPOGit/OAuthBluesky-sub000/atproto/crypto"
	"github.com/PIPOGit/OAuthBluesky-sub000/atproto/identity"
	"github.com/PIPOGit/OAuthBluesky-sub000/atproto/syntax"
)

// ProtectedResourceMetadata is the resource server discovery document
// served at /.well-known/oauth-protected-resource (RFC 9728). For atproto
// the resource server is the account's PDS host.
type ProtectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
	ScopesSupported      []string `json:"scopes_supported,omitempty"`
}

// AuthServerURL returns the authorization server this resource delegates
// to. atproto hosts declare exactly one; when several appear the first
// entry wins.
func (m *ProtectedResourceMetadata) AuthServerURL() (string, error) {
	if len(m.AuthorizationServers) == 0 {
		return "", fmt.Errorf("protected resource metadata declares no authorization servers")
	}
	u := m.AuthorizationServers[0]
	if !isSafeServerURL(u) {
		return "", fmt.Errorf("unsafe authorization server URL: %s", u)
	}
	return u, nil
}

// AuthServerMetadata is the authorization server discovery document served
// at /.well-known/oauth-authorization-server (RFC 8414), restricted to the
// fields the atproto profile requires.
type AuthServerMetadata struct {
	Issuer                                     string   `json:"issuer"`
	AuthorizationEndpoint                      string   `json:"authorization_endpoint"`
	TokenEndpoint                              string   `json:"token_endpoint"`
	PushedAuthorizationRequestEndpoint         string   `json:"pushed_authorization_request_endpoint"`
	RevocationEndpoint                         string   `json:"revocation_endpoint,omitempty"`
	ResponseTypesSupported                     []string `json:"response_types_supported"`
	GrantTypesSupported                        []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported              []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported          []string `json:"token_endpoint_auth_methods_supported"`
	TokenEndpointAuthSigningAlgValuesSupported []string `json:"token_endpoint_auth_signing_alg_values_supported"`
	ScopesSupported                            []string `json:"scopes_supported"`
	DPoPSigningAlgValuesSupported              []string `json:"dpop_signing_alg_values_supported"`
	AuthorizationResponseIssParameterSupported bool     `json:"authorization_response_iss_parameter_supported"`
	RequirePushedAuthorizationRequests         bool     `json:"require_pushed_authorization_requests"`
	ClientIDMetadataDocumentSupported          bool     `json:"client_id_metadata_document_supported"`
}

// Validate checks the metadata against the atproto OAuth profile. fetchURL
// is the server URL the document was fetched from; the issuer must match
// its origin.
func (m *AuthServerMetadata) Validate(fetchURL string) error {
	if !isSafeServerURL(m.Issuer) {
		return fmt.Errorf("invalid issuer URL: %s", m.Issuer)
	}
	iss, err := url.Parse(m.Issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}
	if iss.Path != "" && iss.Path != "/" {
		return fmt.Errorf("issuer must not have a path: %s", m.Issuer)
	}
	fetched, err := url.Parse(fetchURL)
	if err != nil {
		return fmt.Errorf("invalid metadata URL: %w", err)
	}
	if iss.Host != fetched.Host || iss.Scheme != fetched.Scheme {
		return fmt.Errorf("issuer %s does not match metadata origin %s", m.Issuer, fetchURL)
	}
	if m.AuthorizationEndpoint == "" {
		return fmt.Errorf("missing authorization_endpoint")
	}
	if m.TokenEndpoint == "" {
		return fmt.Errorf("missing token_endpoint")
	}
	if m.PushedAuthorizationRequestEndpoint == "" {
		return fmt.Errorf("missing pushed_authorization_request_endpoint")
	}
	if !contains(m.ResponseTypesSupported, "code") {
		return fmt.Errorf("response type 'code' not supported")
	}
	if !contains(m.GrantTypesSupported, "authorization_code") {
		return fmt.Errorf("grant type 'authorization_code' not supported")
	}
	if !contains(m.GrantTypesSupported, "refresh_token") {
		return fmt.Errorf("grant type 'refresh_token' not supported")
	}
	if !contains(m.CodeChallengeMethodsSupported, "S256") {
		return fmt.Errorf("code challenge method 'S256' not supported")
	}
	if !contains(m.TokenEndpointAuthMethodsSupported, "none") {
		return fmt.Errorf("token endpoint auth method 'none' not supported")
	}
	if !contains(m.TokenEndpointAuthSigningAlgValuesSupported, "ES256") {
		return fmt.Errorf("token endpoint auth signing algorithm 'ES256' not supported")
	}
	if !contains(m.ScopesSupported, "atproto") {
		return fmt.Errorf("scope 'atproto' not supported")
	}
	if !contains(m.DPoPSigningAlgValuesSupported, "ES256") {
		return fmt.Errorf("DPoP signing algorithm 'ES256' not supported")
	}
	if !m.AuthorizationResponseIssParameterSupported {
		return fmt.Errorf("authorization response 'iss' parameter not supported")
	}
	if !m.RequirePushedAuthorizationRequests {
		return fmt.Errorf("pushed authorization requests not required")
	}
	if !m.ClientIDMetadataDocumentSupported {
		return fmt.Errorf("client ID metadata documents not supported")
	}
	return nil
}

func contains(vals []string, want string) bool {
	for _, v := range vals {
		if v == want {
			return true
		}
	}
	return false
}

// isSafeServerURL enforces the atproto rules for server URLs: https with a
// hostname and no port. Plain http is allowed only for loopback hosts, to
// keep local development and test servers usable.
func isSafeServerURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" || u.User != nil {
		return false
	}
	switch u.Scheme {
	case "https":
		return u.Port() == ""
	case "http":
		return isLoopbackHost(u.Hostname())
	}
	return false
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// ClientMetadata is the client ID metadata document. Public clients host
// this at their client_id URL; the engine also generates it from a
// [ClientConfig] for serving.
type ClientMetadata struct {
	ClientID                    string      `json:"client_id"`
	ApplicationType             string      `json:"application_type,omitempty"`
	GrantTypes                  []string    `json:"grant_types"`
	Scope                       string      `json:"scope"`
	ResponseTypes               []string    `json:"response_types"`
	RedirectURIs                []string    `json:"redirect_uris"`
	DPoPBoundAccessTokens       bool        `json:"dpop_bound_access_tokens"`
	TokenEndpointAuthMethod     string      `json:"token_endpoint_auth_method,omitempty"`
	TokenEndpointAuthSigningAlg string      `json:"token_endpoint_auth_signing_alg,omitempty"`
	ClientName                  string      `json:"client_name,omitempty"`
	ClientURI                   string      `json:"client_uri,omitempty"`
	JWKSURI                     string      `json:"jwks_uri,omitempty"`
	JWKS                        *clientJWKS `json:"jwks,omitempty"`
}

type clientJWKS struct {
	Keys []crypto.JWK `json:"keys"`
}

func (m *ClientMetadata) Validate(clientID string) error {
	if m.ClientID != clientID {
		return fmt.Errorf("client_id %s does not match document URL %s", m.ClientID, clientID)
	}
	if !contains(m.GrantTypes, "authorization_code") {
		return fmt.Errorf("missing grant type 'authorization_code'")
	}
	if !contains(m.ResponseTypes, "code") {
		return fmt.Errorf("missing response type 'code'")
	}
	if len(m.RedirectURIs) == 0 {
		return fmt.Errorf("missing redirect_uris")
	}
	if !m.DPoPBoundAccessTokens {
		return fmt.Errorf("dpop_bound_access_tokens must be true")
	}
	return nil
}

// PushedAuthRequest is the form body for the PAR endpoint. Assertion fields
// are only set for confidential clients.
type PushedAuthRequest struct {
	ClientID            string  `url:"client_id"`
	State               string  `url:"state"`
	RedirectURI         string  `url:"redirect_uri"`
	Scope               string  `url:"scope"`
	ResponseType        string  `url:"response_type"`
	CodeChallenge       string  `url:"code_challenge"`
	CodeChallengeMethod string  `url:"code_challenge_method"`
	Prompt              string  `url:"prompt,omitempty"`
	LoginHint           string  `url:"login_hint,omitempty"`
	ClientAssertionType *string `url:"client_assertion_type,omitempty"`
	ClientAssertion     *string `url:"client_assertion,omitempty"`
}

// PushedAuthResponse is the JSON body returned by a successful PAR.
type PushedAuthResponse struct {
	RequestURI string `json:"request_uri"`
	ExpiresIn  int64  `json:"expires_in"`
}

// InitialTokenRequest is the form body for the authorization_code grant.
type InitialTokenRequest struct {
	ClientID            string  `url:"client_id"`
	RedirectURI         string  `url:"redirect_uri"`
	GrantType           string  `url:"grant_type"`
	Code                string  `url:"code"`
	CodeVerifier        string  `url:"code_verifier"`
	ClientAssertionType *string `url:"client_assertion_type,omitempty"`
	ClientAssertion     *string `url:"client_assertion,omitempty"`
}

// RefreshTokenRequest is the form body for the refresh_token grant.
type RefreshTokenRequest struct {
	ClientID            string  `url:"client_id"`
	RedirectURI         string  `url:"redirect_uri"`
	GrantType           string  `url:"grant_type"`
	RefreshToken        string  `url:"refresh_token"`
	ClientAssertionType *string `url:"client_assertion_type,omitempty"`
	ClientAssertion     *string `url:"client_assertion,omitempty"`
}

// RevokeTokenRequest is the form body for the revocation endpoint.
type RevokeTokenRequest struct {
	ClientID            string  `url:"client_id"`
	Token               string  `url:"token"`
	TokenTypeHint       string  `url:"token_type_hint,omitempty"`
	ClientAssertionType *string `url:"client_assertion_type,omitempty"`
	ClientAssertion     *string `url:"client_assertion,omitempty"`
}

// TokenResponse is the JSON body from the token endpoint, for both the
// initial exchange and refreshes.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Subject      string `json:"sub"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
}

// AuthRequestData is the state persisted between the PAR redirect and the
// callback. Keyed by the OAuth state token; one-shot. The discovery
// documents resolved while starting the flow ride along so the session
// built from the callback can carry them without re-fetching.
type AuthRequestData struct {
	State                   string                     `json:"state"`
	AccountDID              *syntax.DID                `json:"account_did,omitempty"`
	HostURL                 string                     `json:"host_url"`
	Scope                   string                     `json:"scope"`
	AuthServerURL           string                     `json:"authserver_url"`
	AuthServerIssuer        string                     `json:"authserver_issuer"`
	AuthServerTokenEndpoint string                     `json:"authserver_token_endpoint"`
	RevocationEndpoint      string                     `json:"revocation_endpoint,omitempty"`
	AuthServerMeta          *AuthServerMetadata        `json:"authserver_metadata,omitempty"`
	DIDDoc                  *identity.DIDDocument      `json:"did_doc,omitempty"`
	PDSMeta                 *ProtectedResourceMetadata `json:"pds_metadata,omitempty"`
	RequestURI              string                     `json:"request_uri"`
	PKCEVerifier            string                     `json:"pkce_verifier"`
	DPoPAuthServerNonce     string                     `json:"dpop_authserver_nonce"`
	DPoPPrivateKeyMultibase string                     `json:"dpop_private_key_multibase"`
}

// SessionData is the durable per-account session state: the token set, the
// DPoP key, the last-seen nonces, and the discovery documents that token
// validation checks the access token against on resume. A refresh replaces
// the token fields wholesale.
type SessionData struct {
	SessionID               string                     `json:"session_id"`
	AccountDID              syntax.DID                 `json:"account_did"`
	HostURL                 string                     `json:"host_url"`
	Scope                   string                     `json:"scope"`
	AuthServerURL           string                     `json:"authserver_url"`
	AuthServerIssuer        string                     `json:"authserver_issuer"`
	AuthServerTokenEndpoint string                     `json:"authserver_token_endpoint"`
	RevocationEndpoint      string                     `json:"revocation_endpoint,omitempty"`
	AuthServerMeta          *AuthServerMetadata        `json:"authserver_metadata,omitempty"`
	DIDDoc                  *identity.DIDDocument      `json:"did_doc,omitempty"`
	PDSMeta                 *ProtectedResourceMetadata `json:"pds_metadata,omitempty"`
	AccessToken             string                     `json:"access_token"`
	RefreshToken            string                     `json:"refresh_token"`
	AccessTokenHash         string                     `json:"access_token_hash"`
	Authentication          *TokenResponse             `json:"authentication,omitempty"`
	DPoPAuthServerNonce     string                     `json:"dpop_authserver_nonce"`
	DPoPHostNonce           string                     `json:"dpop_host_nonce"`
	HostWWWAuthenticate     string                     `json:"host_www_authenticate,omitempty"`
	DPoPPrivateKeyMultibase string                     `json:"dpop_private_key_multibase"`
}

// CallbackParams are the query parameters delivered to the redirect URI.
type CallbackParams struct {
	State            string
	ISS              string
	Code             string
	Error            string
	ErrorDescription string
}

func parseCallbackParams(params url.Values) CallbackParams {
	return CallbackParams{
		State:            params.Get("state"),
		ISS:              params.Get("iss"),
		Code:             params.Get("code"),
		Error:            params.Get("error"),
		ErrorDescription: params.Get("error_description"),
	}
}
