package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/rmtj/malup/internal/auth"
	"github.com/rmtj/malup/internal/mal"
	"github.com/rmtj/malup/internal/shared"
)

// AuthAPI is the slice of the remote client the OAuth surface needs.
type AuthAPI interface {
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (auth.TokenSet, error)
	Me(ctx context.Context, token string) (*mal.User, error)
}

// AuthHandler serves the OAuth2/PKCE round trip and the session endpoints.
// Implements the Handler interface for registration with a Router.
type AuthHandler struct {
	api       AuthAPI
	verifiers *auth.VerifierStore
	logger    *log.Logger
}

// NewAuthHandler creates the auth surface over the remote client and the
// one-time verifier store.
func NewAuthHandler(api AuthAPI, verifiers *auth.VerifierStore, logger *log.Logger) *AuthHandler {
	return &AuthHandler{
		api:       api,
		verifiers: verifiers,
		logger:    logger,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *AuthHandler) Routes() []string {
	return []string{"/login", "/callback", "/logout", "/me"}
}

// ServeHTTP dispatches to the route-specific handlers.
func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/login":
		h.handleLogin(w, r)
	case "/callback":
		h.handleCallback(w, r)
	case "/logout":
		h.handleLogout(w, r)
	case "/me":
		h.handleMe(w, r)
	default:
		http.NotFound(w, r)
	}
}

// handleLogin generates the per-attempt PKCE verifier and CSRF state, parks
// the verifier keyed by state for the callback, and redirects to the
// provider's consent page.
func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	state := shared.GenerateID()
	verifier := oauth2.GenerateVerifier()
	h.verifiers.Put(state, verifier)

	h.logger.Info("Issued authorization redirect", "state", state)
	http.Redirect(w, r, h.api.AuthCodeURL(state, verifier), http.StatusFound)
}

// handleCallback redeems the authorization code against the verifier parked
// for its state, stores the token pair on the session, and renders a
// popup-aware completion page.
func (h *AuthHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()
	state := query.Get("state")
	if state == "" {
		http.Error(w, "Missing state", http.StatusBadRequest)
		return
	}

	if errParam := query.Get("error"); errParam != "" {
		h.logger.Warn("Authorization denied", "error", errParam, "description", query.Get("error_description"))
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	// The verifier redeems exactly once; a replayed or fabricated state misses.
	verifier, ok := h.verifiers.Take(state)
	if !ok {
		http.Error(w, "Missing or mismatched PKCE verifier", http.StatusBadRequest)
		return
	}

	tokens, err := h.api.Exchange(r.Context(), query.Get("code"), verifier)
	if err != nil {
		h.logger.Error("Token exchange failed", "error", err)
		http.Error(w, "Token exchange failed.", http.StatusInternalServerError)
		return
	}

	if sess := SessionFrom(r.Context()); sess != nil {
		sess.SetTokens(tokens)
	}

	// Best effort; the popup message carries the display name when available.
	userData := map[string]any{"loggedIn": true}
	if user, err := h.api.Me(r.Context(), tokens.AccessToken); err == nil {
		userData["name"] = user.DisplayName()
	} else {
		h.logger.Warn("Could not fetch user after exchange", "error", err)
	}

	h.renderCallbackPage(w, userData)
}

// renderCallbackPage notifies the opener window when the flow ran in a
// popup, closing it afterwards; standalone windows fall back to a redirect.
func (h *AuthHandler) renderCallbackPage(w http.ResponseWriter, userData map[string]any) {
	payload, err := json.Marshal(userData)
	if err != nil {
		payload = []byte(`{"loggedIn":true}`)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html><html><head><title>Auth Complete</title></head>
<body style="background:#0b0f14;color:#e6edf3;font-family:ui-sans-serif,system-ui;display:flex;align-items:center;justify-content:center;height:100vh;margin:0;">
<div style="text-align:center;">
  <div style="margin-bottom:20px;">✅ Authentication complete!</div>
  <div style="font-size:14px;color:#9fb0c0;">This window will close automatically...</div>
</div>
<script>
  (function() {
    try {
      if (window.opener && !window.opener.closed) {
        window.opener.postMessage({ type: 'oauth-success', userData: %s }, '*');
        setTimeout(function() { window.close(); }, 1000);
      } else {
        setTimeout(function() { location.replace('/'); }, 1000);
      }
    } catch (e) {
      setTimeout(function() { location.replace('/'); }, 1000);
    }
  })();
</script>
</body></html>`, payload)
}

// handleLogout drops the session's token pair. The session itself survives,
// tokenless, until its TTL runs out.
func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if sess := SessionFrom(r.Context()); sess != nil {
		sess.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleMe reports whether the session holds a usable token, refreshing once
// when the remote rejects it. Always 200; the body carries the verdict.
func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")

	sess := SessionFrom(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}
	if _, err := sess.AccessToken(); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}

	var user *mal.User
	err := sess.WithRetry(r.Context(), func(token string) error {
		var meErr error
		user, meErr = h.api.Me(r.Context(), token)
		return meErr
	})
	if err != nil {
		h.logger.Warn("Profile lookup failed", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"loggedIn": true, "name": user.DisplayName()})
}
