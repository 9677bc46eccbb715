package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PIPOGit/OAuthBluesky-sub000/util"

	lru "github.com/hashicorp/golang-lru/v2"
)

const maxMetadataBodySize = 256 * 1024

// Resolver fetches and validates OAuth discovery documents: protected
// resource metadata from PDS hosts and authorization server metadata.
// Validated auth server metadata is cached per-process, since it changes
// rarely and every login and session resume needs it.
type Resolver struct {
	Client *http.Client

	metaCache *lru.Cache[string, *AuthServerMetadata]
}

func NewResolver() *Resolver {
	cache, _ := lru.New[string, *AuthServerMetadata](64)
	return &Resolver{
		Client:    util.RobustHTTPClient(),
		metaCache: cache,
	}
}

// ResolveProtectedResource fetches the /.well-known/oauth-protected-resource
// document from a resource server (PDS host).
func (r *Resolver) ResolveProtectedResource(ctx context.Context, hostURL string) (*ProtectedResourceMetadata, error) {
	if !isSafeServerURL(hostURL) {
		return nil, fmt.Errorf("unsafe resource server URL: %s", hostURL)
	}
	var meta ProtectedResourceMetadata
	if err := r.fetchJSON(ctx, hostURL, "/.well-known/oauth-protected-resource", &meta); err != nil {
		return nil, fmt.Errorf("fetching protected resource metadata: %w", err)
	}
	if len(meta.AuthorizationServers) == 0 {
		return nil, fmt.Errorf("protected resource metadata for %s declares no authorization servers", hostURL)
	}
	return &meta, nil
}

// ResolveAuthServerMetadata fetches, validates, and caches the
// /.well-known/oauth-authorization-server document.
func (r *Resolver) ResolveAuthServerMetadata(ctx context.Context, serverURL string) (*AuthServerMetadata, error) {
	if !isSafeServerURL(serverURL) {
		return nil, fmt.Errorf("unsafe authorization server URL: %s", serverURL)
	}
	if meta, ok := r.metaCache.Get(serverURL); ok {
		return meta, nil
	}
	var meta AuthServerMetadata
	if err := r.fetchJSON(ctx, serverURL, "/.well-known/oauth-authorization-server", &meta); err != nil {
		return nil, fmt.Errorf("fetching auth server metadata: %w", err)
	}
	if err := meta.Validate(serverURL); err != nil {
		return nil, fmt.Errorf("invalid auth server metadata for %s: %w", serverURL, err)
	}
	r.metaCache.Add(serverURL, &meta)
	return &meta, nil
}

// ResolveClientMetadata fetches and validates a client ID metadata document.
// Used when this process plays the server side (e.g. inspecting another
// client), and in tests against our own generated document.
func (r *Resolver) ResolveClientMetadata(ctx context.Context, clientID string) (*ClientMetadata, error) {
	u, err := url.Parse(clientID)
	if err != nil || (u.Scheme != "https" && !(u.Scheme == "http" && isLoopbackHost(u.Hostname()))) {
		return nil, fmt.Errorf("invalid client ID URL: %s", clientID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, clientID, nil)
	if err != nil {
		return nil, err
	}
	var meta ClientMetadata
	if err := r.doJSON(req, &meta); err != nil {
		return nil, fmt.Errorf("fetching client metadata: %w", err)
	}
	if err := meta.Validate(clientID); err != nil {
		return nil, fmt.Errorf("invalid client metadata at %s: %w", clientID, err)
	}
	return &meta, nil
}

func (r *Resolver) fetchJSON(ctx context.Context, serverURL, wellKnownPath string, out any) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + wellKnownPath
	u.RawQuery = ""
	u.Fragment = ""
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	return r.doJSON(req, out)
}

func (r *Resolver) doJSON(req *http.Request, out any) error {
	resp, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBodySize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response JSON: %w", err)
	}
	return nil
}
