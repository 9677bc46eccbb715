package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveProtectedResource(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/.well-known/oauth-protected-resource", r.URL.Path)
		json.NewEncoder(w).Encode(ProtectedResourceMetadata{
			AuthorizationServers: []string{"https://auth.example.com"},
		})
	}))
	defer srv.Close()

	r := NewResolver()
	r.Client = srv.Client()
	meta, err := r.ResolveProtectedResource(ctx, srv.URL)
	require.NoError(t, err)
	u, err := meta.AuthServerURL()
	require.NoError(t, err)
	assert.Equal("https://auth.example.com", u)
}

func TestResolveProtectedResourceEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"authorization_servers": []}`))
	}))
	defer srv.Close()

	r := NewResolver()
	r.Client = srv.Client()
	_, err := r.ResolveProtectedResource(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestResolveAuthServerMetadataCached(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	raw, err := os.ReadFile("testdata/authserver_metadata.json")
	require.NoError(t, err)
	var doc AuthServerMetadata
	require.NoError(t, json.Unmarshal(raw, &doc))

	var fetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		assert.Equal("/.well-known/oauth-authorization-server", r.URL.Path)
		resp := doc
		resp.Issuer = "http://" + r.Host
		resp.AuthorizationEndpoint = resp.Issuer + "/oauth/authorize"
		resp.TokenEndpoint = resp.Issuer + "/oauth/token"
		resp.PushedAuthorizationRequestEndpoint = resp.Issuer + "/oauth/par"
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	r := NewResolver()
	r.Client = srv.Client()
	meta, err := r.ResolveAuthServerMetadata(ctx, srv.URL)
	require.NoError(t, err)
	assert.Equal(srv.URL, meta.Issuer)

	again, err := r.ResolveAuthServerMetadata(ctx, srv.URL)
	require.NoError(t, err)
	assert.Same(meta, again)
	assert.Equal(1, fetches)
}

func TestResolveAuthServerMetadataRejectsBadIssuer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := os.ReadFile("testdata/authserver_metadata.json")
		require.NoError(t, err)
		// issuer in the fixture does not match the test server origin
		w.Write(raw)
	}))
	defer srv.Close()

	r := NewResolver()
	r.Client = srv.Client()
	_, err := r.ResolveAuthServerMetadata(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestResolverRejectsUnsafeURLs(t *testing.T) {
	r := NewResolver()
	_, err := r.ResolveProtectedResource(context.Background(), "http://pds.example.com")
	assert.Error(t, err)
	_, err = r.ResolveAuthServerMetadata(context.Background(), "ftp://auth.example.com")
	assert.Error(t, err)
}
