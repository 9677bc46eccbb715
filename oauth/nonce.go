package oauth

import "sync"

// NonceStore tracks the DPoP anti-replay nonce for one server (each session
// keeps one store for its auth server and one for its PDS host). The two
// slots record the nonce most recently embedded in an outgoing proof and
// the nonce most recently announced by the server; when they differ the
// next proof picks up the fresh value.
type NonceStore struct {
	mu       sync.Mutex
	used     string
	received string
}

// NewNonceStore seeds a store with a previously persisted nonce, which may
// be empty for a server never contacted before.
func NewNonceStore(initial string) *NonceStore {
	return &NonceStore{used: initial, received: initial}
}

// Observe records a DPoP-Nonce response header value. Empty values are
// ignored (most responses do not carry the header). Returns true when the
// server announced a nonce different from the last one seen, meaning the
// persisted session state is now stale.
func (s *NonceStore) Observe(nonce string) bool {
	if nonce == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if nonce == s.received {
		return false
	}
	s.received = nonce
	return true
}

// Consume returns the nonce to embed in the next proof and marks it used.
func (s *NonceStore) Consume() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used = s.received
	return s.used
}

// Used returns the nonce embedded in the most recent proof.
func (s *NonceStore) Used() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Received returns the most recent server-announced nonce. This is the
// value to persist between process restarts.
func (s *NonceStore) Received() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received
}
