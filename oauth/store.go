package oauth

import (
	"context"
	"errors"

	"github.com/PIPOGit/OAuthBluesky-sub000/atproto/syntax"
)

var (
	ErrSessionNotFound     = errors.New("OAuth session not found")
	ErrAuthRequestNotFound = errors.New("OAuth auth request not found")
)

// ClientAuthStore is the persistence interface for auth requests (short
// lived, keyed by state token) and sessions (long lived, keyed by account
// DID plus session ID).
//
// Implementations must treat SessionData and AuthRequestData as opaque and
// store them whole; partial updates would tear the token set.
type ClientAuthStore interface {
	GetAuthRequestInfo(ctx context.Context, state string) (*AuthRequestData, error)
	SaveAuthRequestInfo(ctx context.Context, info AuthRequestData) error
	DeleteAuthRequestInfo(ctx context.Context, state string) error

	GetSession(ctx context.Context, did syntax.DID, sessionID string) (*SessionData, error)
	SaveSession(ctx context.Context, sess SessionData) error
	DeleteSession(ctx context.Context, did syntax.DID, sessionID string) error
}
