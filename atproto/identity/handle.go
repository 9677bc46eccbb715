package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/PIPOGit/OAuthBluesky-sub000/atproto/syntax"
)

// ResolveHandleDNS does the DNS TXT variant of handle resolution: a "did="
// record under the "_atproto." sub-domain of the handle.
//
// Does not cross-verify, just does the handle resolution step.
func ResolveHandleDNS(ctx context.Context, handle syntax.Handle) (syntax.DID, error) {
	res, err := net.DefaultResolver.LookupTXT(ctx, "_atproto."+handle.String())
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return "", ErrHandleNotFound
		}
		return "", fmt.Errorf("handle DNS resolution failed: %w", err)
	}

	for _, s := range res {
		if strings.HasPrefix(s, "did=") {
			parts := strings.SplitN(s, "=", 2)
			did, err := syntax.ParseDID(parts[1])
			if err != nil {
				return "", fmt.Errorf("invalid DID in handle DNS record: %w", err)
			}
			return did, nil
		}
	}
	return "", ErrHandleNotFound
}

// ResolveHandleWellKnown does the HTTPS variant of handle resolution: fetching
// the "/.well-known/atproto-did" path on the handle's hostname.
func ResolveHandleWellKnown(ctx context.Context, c *http.Client, handle syntax.Handle) (syntax.DID, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("https://%s/.well-known/atproto-did", handle), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to resolve handle (%s) through HTTP well-known route: %w", handle, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", ErrHandleNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to resolve handle (%s) through HTTP well-known route: status=%d", handle, resp.StatusCode)
	}

	if resp.ContentLength > 2048 {
		return "", fmt.Errorf("HTTP well-known route returned too much data during handle resolution")
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if err != nil {
		return "", fmt.Errorf("HTTP well-known response failed to read: %w", err)
	}
	return syntax.ParseDID(strings.TrimSpace(string(b)))
}
