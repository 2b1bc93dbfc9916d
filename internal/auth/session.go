// package auth owns OAuth session state: the per-session token pair,
// the refresh-once retry wrapper, and the transient PKCE/session stores.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rmtj/malup/internal/shared"
)

// TokenSet is an access/refresh token pair held by a session.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Refresher exchanges a refresh token for a new token pair at the remote token endpoint.
type Refresher interface {
	RefreshTokens(ctx context.Context, refreshToken string) (TokenSet, error)
}

// Session holds the mutable token slot for one user session.
//
// Tokens come from the session itself once the user has logged in, with an
// optional statically configured fallback pair for unauthenticated-session
// mode. The mutex serializes refreshes so concurrent requests on the same
// session cannot race the token slot.
type Session struct {
	mu        sync.Mutex
	tokens    *TokenSet
	fallback  *TokenSet
	refresher Refresher
}

// NewSession creates a session backed by the given refresher. fallback may be
// nil when no static token pair is configured.
func NewSession(refresher Refresher, fallback *TokenSet) *Session {
	if fallback != nil && fallback.AccessToken == "" {
		fallback = nil
	}
	return &Session{refresher: refresher, fallback: fallback}
}

// AccessToken returns the current access token, preferring session tokens
// over the configured fallback. Fails with [shared.ErrAuthRequired] when
// neither source holds a token.
func (s *Session) AccessToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens != nil && s.tokens.AccessToken != "" {
		return s.tokens.AccessToken, nil
	}
	if s.fallback != nil {
		return s.fallback.AccessToken, nil
	}
	return "", shared.ErrAuthRequired
}

// SetTokens replaces the session token pair (after a login exchange).
func (s *Session) SetTokens(ts TokenSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = &ts
}

// Clear drops the session token pair (logout). The configured fallback, if
// any, remains usable.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = nil
}

// LoggedIn reports whether any token is available to this session.
func (s *Session) LoggedIn() bool {
	_, err := s.AccessToken()
	return err == nil
}

// Refresh exchanges the current refresh token for a new pair, replaces the
// held pair in place, and returns the new access token. Fails with
// [shared.ErrNoRefreshToken] when no refresh token is held.
func (s *Session) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refreshToken := ""
	if s.tokens != nil {
		refreshToken = s.tokens.RefreshToken
	} else if s.fallback != nil {
		refreshToken = s.fallback.RefreshToken
	}
	if refreshToken == "" {
		return "", shared.ErrNoRefreshToken
	}

	ts, err := s.refresher.RefreshTokens(ctx, refreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	s.tokens = &ts
	return ts.AccessToken, nil
}

// WithRetry invokes action with the current access token. If the action fails
// because the remote rejected the token ([shared.ErrTokenRejected]), it
// refreshes once and re-invokes the action with the new token. Any other
// failure, or a second failure after refresh, propagates unchanged.
//
// Every remote call in the preview/update/snapshot pipelines goes through
// this wrapper; it is the single place 401-style failures are reconciled.
func (s *Session) WithRetry(ctx context.Context, action func(token string) error) error {
	token, err := s.AccessToken()
	if err != nil {
		return err
	}

	err = action(token)
	if err == nil || !errors.Is(err, shared.ErrTokenRejected) {
		return err
	}

	token, refreshErr := s.Refresh(ctx)
	if refreshErr != nil {
		return refreshErr
	}
	return action(token)
}
