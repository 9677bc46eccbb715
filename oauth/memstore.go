package oauth

import (
	"context"
	"sync"

	"github.com/PIPOGit/OAuthBluesky-sub000/atproto/syntax"
)

// MemStore is a process-local [ClientAuthStore]. Suitable for development
// and tests; sessions do not survive restarts.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string]SessionData
	requests map[string]AuthRequestData
}

var _ ClientAuthStore = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		sessions: make(map[string]SessionData),
		requests: make(map[string]AuthRequestData),
	}
}

func sessionKey(did syntax.DID, sessionID string) string {
	return did.String() + "/" + sessionID
}

func (s *MemStore) GetAuthRequestInfo(ctx context.Context, state string) (*AuthRequestData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.requests[state]
	if !ok {
		return nil, ErrAuthRequestNotFound
	}
	return &info, nil
}

func (s *MemStore) SaveAuthRequestInfo(ctx context.Context, info AuthRequestData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[info.State] = info
	return nil
}

func (s *MemStore) DeleteAuthRequestInfo(ctx context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[state]; !ok {
		return ErrAuthRequestNotFound
	}
	delete(s.requests, state)
	return nil
}

func (s *MemStore) GetSession(ctx context.Context, did syntax.DID, sessionID string) (*SessionData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionKey(did, sessionID)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

func (s *MemStore) SaveSession(ctx context.Context, sess SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionKey(sess.AccountDID, sess.SessionID)] = sess
	return nil
}

func (s *MemStore) DeleteSession(ctx context.Context, did syntax.DID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(did, sessionID)
	if _, ok := s.sessions[key]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, key)
	return nil
}
