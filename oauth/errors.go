package oauth

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// TokenErrorCode is the closed set of access-token validation failures. The
// numeric values are part of the engine's contract with callers (they get
// persisted and displayed), so they must not be renumbered.
type TokenErrorCode int

const (
	TokenErrGeneric            TokenErrorCode = 0
	TokenErrNoAuthServerMeta   TokenErrorCode = 1
	TokenErrNoAuthCode         TokenErrorCode = 2
	TokenErrNoAuthentication   TokenErrorCode = 3
	TokenErrNoAccessToken      TokenErrorCode = 4
	TokenErrNoDIDDocument      TokenErrorCode = 5
	TokenErrNoPDSMetadata      TokenErrorCode = 6
	TokenErrInvalidToken       TokenErrorCode = 7
	TokenErrAuthServerMismatch TokenErrorCode = 10
	TokenErrDIDMismatch        TokenErrorCode = 11
	TokenErrExpiredToken       TokenErrorCode = 12
	TokenErrInvalidCode        TokenErrorCode = 13
)

func (c TokenErrorCode) String() string {
	switch c {
	case TokenErrGeneric:
		return "generic"
	case TokenErrNoAuthServerMeta:
		return "no auth server metadata"
	case TokenErrNoAuthCode:
		return "no authorization code"
	case TokenErrNoAuthentication:
		return "no authentication response"
	case TokenErrNoAccessToken:
		return "no access token"
	case TokenErrNoDIDDocument:
		return "no DID document"
	case TokenErrNoPDSMetadata:
		return "no PDS metadata"
	case TokenErrInvalidToken:
		return "invalid access token"
	case TokenErrAuthServerMismatch:
		return "auth server mismatch"
	case TokenErrDIDMismatch:
		return "DID mismatch"
	case TokenErrExpiredToken:
		return "expired access token"
	case TokenErrInvalidCode:
		return "invalid authorization code"
	}
	return "unknown"
}

// TokenError is a non-retryable validation failure raised by token validation
// or the auth flow. Callers typically respond by forcing a fresh login.
type TokenError struct {
	Code   TokenErrorCode
	Reason string
}

func (e *TokenError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("token error %02d: %s", e.Code, e.Code)
	}
	return fmt.Sprintf("token error %02d: %s: %s", e.Code, e.Code, e.Reason)
}

// Is matches any *TokenError with the same code, so callers can use
// errors.Is(err, &TokenError{Code: TokenErrExpiredToken}).
func (e *TokenError) Is(target error) bool {
	t, ok := target.(*TokenError)
	return ok && t.Code == e.Code
}

func tokenError(code TokenErrorCode, reason string) *TokenError {
	return &TokenError{Code: code, Reason: reason}
}

// HTTPError is any non-2xx response from an auth server or resource server.
// It carries the parsed JSON body when the response had one, which is where
// the `use_dpop_nonce` challenge lives.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       map[string]any
	Wrapped    error
}

func (e *HTTPError) Error() string {
	if code := e.ErrorCode(); code != "" {
		return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.URL, code)
	}
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

func (e *HTTPError) Unwrap() error {
	return e.Wrapped
}

// ErrorCode returns the OAuth `error` field from the JSON body, if any.
func (e *HTTPError) ErrorCode() string {
	if e.Body == nil {
		return ""
	}
	s, _ := e.Body["error"].(string)
	return s
}

// IsDPoPNonceError reports whether this response is the canonical DPoP
// nonce challenge: HTTP 400 or 401 with a JSON body whose `error` field is
// `use_dpop_nonce`. This predicate is the sole trigger for the single-retry
// protocol.
func (e *HTTPError) IsDPoPNonceError() bool {
	if e.StatusCode != http.StatusBadRequest && e.StatusCode != http.StatusUnauthorized {
		return false
	}
	return e.ErrorCode() == "use_dpop_nonce"
}

const maxErrorBodySize = 64 * 1024

// errorFromResponse drains and closes the response body and builds an
// [HTTPError] from it.
func errorFromResponse(resp *http.Response) *HTTPError {
	defer resp.Body.Close()
	herr := &HTTPError{
		StatusCode: resp.StatusCode,
		URL:        resp.Request.URL.String(),
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		herr.Wrapped = err
		return herr
	}
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "json") || looksLikeJSON(raw) {
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err == nil {
			herr.Body = body
		}
	}
	return herr
}

func looksLikeJSON(raw []byte) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{")
}
