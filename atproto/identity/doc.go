/*
Package identity resolves atproto handles and DIDs from the network.

The [Directory] struct is the main entrypoint: it resolves a handle to a DID
(via an XRPC directory service, HTTP well-known lookup, or DNS TXT record),
and a DID to its DID document (via the PLC directory for did:plc, or
well-known fetch for did:web). The DID document carries the account's PDS
service endpoint, which is where the OAuth flow continues.

Resolution here is direct lookup only; it does not bi-directionally verify
handle/DID bindings.
*/
package identity
