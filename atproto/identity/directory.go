package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/PIPOGit/OAuthBluesky-sub000/atproto/syntax"
	"github.com/PIPOGit/OAuthBluesky-sub000/util"
)

// DefaultPLCURL is the well-known public PLC directory.
var DefaultPLCURL = "https://plc.directory"

// Directory resolves handles and DIDs via the network.
//
// Safe for concurrent use. The zero value is not usable; construct with
// [DefaultDirectory] or populate the fields explicitly.
type Directory struct {
	// HTTP client for all resolution fetches. These are plain unauthenticated
	// GETs, so a retrying client is appropriate here.
	Client *http.Client

	// Base URL of the PLC directory used for did:plc resolution.
	PLCURL string

	// Base URL of an XRPC service answering com.atproto.identity.resolveHandle
	// queries (eg, a PDS or AppView). When empty, handle resolution falls back
	// to the HTTP well-known and DNS TXT methods.
	ResolveService string
}

func DefaultDirectory() *Directory {
	return &Directory{
		Client:         util.RobustHTTPClient(),
		PLCURL:         DefaultPLCURL,
		ResolveService: "https://bsky.social",
	}
}

type resolveHandleResponse struct {
	DID syntax.DID `json:"did"`
}

// ResolveHandle resolves an atproto handle to its DID.
//
// When a ResolveService is configured the com.atproto.identity.resolveHandle
// XRPC query is used; otherwise the HTTP well-known method is tried first,
// then DNS TXT.
func (d *Directory) ResolveHandle(ctx context.Context, handle syntax.Handle) (syntax.DID, error) {
	handle = handle.Normalize()
	if handle.IsInvalidHandle() {
		return "", ErrHandleNotFound
	}

	if d.ResolveService != "" {
		did, err := d.resolveHandleXRPC(ctx, handle)
		handleResolution.WithLabelValues("xrpc", resolutionStatus(err)).Inc()
		return did, err
	}

	did, err := ResolveHandleWellKnown(ctx, d.Client, handle)
	if err == nil {
		handleResolution.WithLabelValues("wellknown", "ok").Inc()
		return did, nil
	}
	did, err = ResolveHandleDNS(ctx, handle)
	handleResolution.WithLabelValues("dns", resolutionStatus(err)).Inc()
	return did, err
}

func (d *Directory) resolveHandleXRPC(ctx context.Context, handle syntax.Handle) (syntax.DID, error) {
	u := fmt.Sprintf("%s/xrpc/com.atproto.identity.resolveHandle?handle=%s", d.ResolveService, url.QueryEscape(handle.String()))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("handle resolution request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return "", ErrHandleNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("handle resolution failed: HTTP %d", resp.StatusCode)
	}
	var body resolveHandleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("invalid resolveHandle response: %w", err)
	}
	if body.DID == "" {
		return "", ErrHandleNotFound
	}
	return body.DID, nil
}

// ResolveDID resolves a DID to its DID document. Supports the did:plc and
// did:web methods.
//
// WARNING: this does *not* bi-directionally verify account metadata; it only
// implements direct DID-to-DID-document lookup.
func (d *Directory) ResolveDID(ctx context.Context, did syntax.DID) (*DIDDocument, error) {
	var doc *DIDDocument
	var err error
	switch did.Method() {
	case "plc":
		doc, err = d.resolveDIDPLC(ctx, did)
	case "web":
		doc, err = d.resolveDIDWeb(ctx, did)
	default:
		return nil, fmt.Errorf("DID method not supported: %s", did.Method())
	}
	didResolution.WithLabelValues(did.Method(), resolutionStatus(err)).Inc()
	return doc, err
}

func (d *Directory) resolveDIDPLC(ctx context.Context, did syntax.DID) (*DIDDocument, error) {
	// plcURL has scheme, hostname, optional port; no path or trailing slash
	req, err := http.NewRequestWithContext(ctx, "GET", d.PLCURL+"/"+did.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed did:plc directory resolution: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrDIDNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed did:plc directory resolution, HTTP status: %d", resp.StatusCode)
	}

	return decodeDIDDocument(resp, did)
}

func (d *Directory) resolveDIDWeb(ctx context.Context, did syntax.DID) (*DIDDocument, error) {
	hostname := did.Identifier()
	handle, err := syntax.ParseHandle(hostname)
	if err != nil {
		return nil, fmt.Errorf("did:web identifier not a simple hostname: %s", hostname)
	}
	if !handle.AllowedTLD() {
		return nil, fmt.Errorf("did:web hostname has disallowed TLD: %s", hostname)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", "https://"+hostname+"/.well-known/did.json", nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.Client.Do(req)
	// look for NXDOMAIN
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return nil, ErrDIDNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed HTTP fetch of did:web well-known document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrDIDNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed did:web well-known fetch, HTTP status: %d", resp.StatusCode)
	}

	return decodeDIDDocument(resp, did)
}

func decodeDIDDocument(resp *http.Response, did syntax.DID) (*DIDDocument, error) {
	var doc DIDDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed parse of DID document JSON: %w", err)
	}
	if doc.DID != did {
		return nil, fmt.Errorf("DID document 'id' (%s) does not match requested DID (%s)", doc.DID, did)
	}
	return &doc, nil
}

func resolutionStatus(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
