package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/carlmjohnson/versioninfo"
)

// APIClient makes authenticated XRPC calls against a session's PDS host,
// routing everything through [ClientSession.DoWithAuth] so token binding
// and nonce handling apply uniformly.
type APIClient struct {
	Session *ClientSession
	Host    string
}

// APIClient returns an XRPC client bound to this session's PDS.
func (s *ClientSession) APIClient() *APIClient {
	return &APIClient{
		Session: s,
		Host:    s.Data.HostURL,
	}
}

// Get performs an XRPC query (HTTP GET). out may be nil to discard the
// response body.
func (c *APIClient) Get(ctx context.Context, nsid string, params map[string]string, out any) error {
	return c.do(ctx, http.MethodGet, nsid, params, nil, out)
}

// Post performs an XRPC procedure (HTTP POST) with a JSON body. body and
// out may each be nil.
func (c *APIClient) Post(ctx context.Context, nsid string, body any, out any) error {
	return c.do(ctx, http.MethodPost, nsid, nil, body, out)
}

func (c *APIClient) do(ctx context.Context, method, nsid string, params map[string]string, body, out any) error {
	endpoint := c.Host + "/xrpc/" + nsid
	if len(params) > 0 {
		vals := url.Values{}
		for k, v := range params {
			vals.Set(k, v)
		}
		endpoint += "?" + vals.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding XRPC body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", userAgent())

	resp, err := c.Session.DoWithAuth(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding XRPC response: %w", err)
	}
	return nil
}

func userAgent() string {
	return "oauthbluesky/" + versioninfo.Short()
}
