/*
Package oauth implements a DPoP-constrained OAuth2 client engine for the
atproto profile ("OAuth for AT Protocol"), suitable for web services
logging users in with their Bluesky/atproto accounts.

It covers the full flow: identity resolution (handle to DID to PDS),
authorization server discovery, PKCE and pushed authorization requests
(PAR), DPoP proof signing with per-server nonce tracking, the code/token
exchange, access token validation and refresh, and an authenticated HTTP
wrapper for calling the account's PDS.

Quickstart for a public web service:

	config := oauth.NewPublicConfig(
		"https://app.example.com/oauth/client-metadata.json",
		"https://app.example.com/oauth/callback",
		[]string{"atproto", "transition:generic"},
	)
	app := oauth.NewClientApp(&config, oauth.NewMemStore())

	// Login handler: redirect the user to their auth server.
	redirectURL, err := app.StartAuthFlow(ctx, "alice.example")

	// Callback handler: exchange the code and persist a session.
	sessData, err := app.ProcessCallback(ctx, req.URL.Query())

	// Later, with the account DID and session ID from your web session.
	// ResumeSession validates the stored access token and refreshes it
	// when it is expired or about to expire.
	sess, err := app.ResumeSession(ctx, did, sessionID)
	client := sess.APIClient()
	err = client.Get(ctx, "app.bsky.actor.getProfile",
		map[string]string{"actor": did.String()}, &profile)

Production deployments should provide a database-backed [ClientAuthStore]
instead of [MemStore], and confidential clients call
[ClientConfig.SetClientSecret] with their signing key.
*/
package oauth
