package oauth

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func responseWith(status int, contentType, body string) *http.Response {
	u, _ := url.Parse("https://pds.example.com/xrpc/test")
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    &http.Request{URL: u},
	}
}

func TestIsDPoPNonceError(t *testing.T) {
	assert := assert.New(t)

	cases := []struct {
		status int
		body   string
		want   bool
	}{
		{401, `{"error": "use_dpop_nonce"}`, true},
		{400, `{"error": "use_dpop_nonce", "error_description": "stale"}`, true},
		{403, `{"error": "use_dpop_nonce"}`, false},
		{401, `{"error": "invalid_token"}`, false},
		{401, `not json`, false},
		{500, `{"error": "use_dpop_nonce"}`, false},
	}
	for _, tc := range cases {
		herr := errorFromResponse(responseWith(tc.status, "application/json", tc.body))
		assert.Equal(tc.want, herr.IsDPoPNonceError(), "status=%d body=%s", tc.status, tc.body)
	}
}

func TestErrorFromResponseWithoutJSON(t *testing.T) {
	assert := assert.New(t)

	herr := errorFromResponse(responseWith(502, "text/html", "<html>bad gateway</html>"))
	assert.Equal(502, herr.StatusCode)
	assert.Nil(herr.Body)
	assert.Equal("", herr.ErrorCode())
	assert.False(herr.IsDPoPNonceError())
}

func TestTokenErrorIs(t *testing.T) {
	assert := assert.New(t)

	err := fmt.Errorf("validation: %w", tokenError(TokenErrExpiredToken, "old"))
	assert.True(errors.Is(err, &TokenError{Code: TokenErrExpiredToken}))
	assert.False(errors.Is(err, &TokenError{Code: TokenErrDIDMismatch}))

	var terr *TokenError
	assert.True(errors.As(err, &terr))
	assert.Equal(TokenErrExpiredToken, terr.Code)
	assert.Contains(terr.Error(), "12")
}

func TestAsDPoPNonceErrorUnwraps(t *testing.T) {
	herr := errorFromResponse(responseWith(401, "application/json", `{"error": "use_dpop_nonce"}`))
	wrapped := fmt.Errorf("token refresh failed: %w", herr)
	assert.NotNil(t, asDPoPNonceError(wrapped))
	assert.Nil(t, asDPoPNonceError(errors.New("plain")))
	assert.Nil(t, asDPoPNonceError(nil))
}
