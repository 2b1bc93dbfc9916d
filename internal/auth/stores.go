package auth

import (
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
)

const (
	// DefaultVerifierTTL bounds how long an authorization round trip may take.
	DefaultVerifierTTL = 10 * time.Minute
	// DefaultSessionTTL matches the 24h session window.
	DefaultSessionTTL = 24 * time.Hour
)

// VerifierStore is a short-lived state → PKCE verifier mapping.
//
// The verifier is correlated by the one-time OAuth state value instead of the
// session cookie, so the authorization round trip survives unreliable cookie
// persistence. Entries expire on their own and are removed on first read.
type VerifierStore struct {
	entries *cache.Cache
}

// NewVerifierStore creates a verifier store whose entries expire after ttl.
func NewVerifierStore(ttl time.Duration) *VerifierStore {
	if ttl <= 0 {
		ttl = DefaultVerifierTTL
	}
	return &VerifierStore{entries: cache.New(ttl, ttl)}
}

// Put records the verifier for a pending authorization identified by state.
func (v *VerifierStore) Put(state, verifier string) {
	v.entries.Set(state, verifier, cache.DefaultExpiration)
}

// Take returns the verifier for state and removes it; one state redeems once.
func (v *VerifierStore) Take(state string) (string, bool) {
	raw, found := v.entries.Get(state)
	if !found {
		return "", false
	}
	v.entries.Delete(state)
	return raw.(string), true
}

// SessionStore maps session cookie IDs to in-memory [Session] values.
//
// Sessions expire after the configured TTL; nothing is persisted.
type SessionStore struct {
	sessions  *cache.Cache
	refresher Refresher
	fallback  *TokenSet
}

// NewSessionStore creates a session store. Every issued session shares the
// refresher and the optional fallback token pair.
func NewSessionStore(refresher Refresher, fallback *TokenSet, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		sessions:  cache.New(ttl, time.Hour),
		refresher: refresher,
		fallback:  fallback,
	}
}

// Get returns the session for sid if it exists and has not expired.
func (s *SessionStore) Get(sid string) (*Session, bool) {
	raw, found := s.sessions.Get(sid)
	if !found {
		return nil, false
	}
	return raw.(*Session), true
}

// Issue creates a fresh session and returns its new cookie ID.
func (s *SessionStore) Issue() (string, *Session) {
	sid := uuid.New().String()
	session := NewSession(s.refresher, s.fallback)
	s.sessions.Set(sid, session, cache.DefaultExpiration)
	return sid, session
}

// Standalone returns a session bound to no cookie, for CLI use.
func (s *SessionStore) Standalone() *Session {
	return NewSession(s.refresher, s.fallback)
}
