package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rmtj/malup/internal/auth"
	"github.com/rmtj/malup/internal/mal"
	"github.com/rmtj/malup/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

type callbackResult struct {
	code string
	err  error
}

// AuthLogin walks the OAuth2 authorization code flow from the terminal.
//
// A short-lived HTTP server on the configured redirect URI catches the
// provider's callback, the code is exchanged, and the resulting token
// pair is printed so it can be stored in config.toml or the environment.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	client, err := r.requireClient()
	if err != nil {
		return err
	}

	redirect := r.config.MAL.RedirectURI
	if redirect == "" {
		return fmt.Errorf("%w: mal.redirect_uri is required for login", shared.ErrMissingConfig)
	}
	u, err := url.Parse(redirect)
	if err != nil {
		return fmt.Errorf("%w: invalid redirect URI %q: %v", shared.ErrInvalidConfig, redirect, err)
	}

	state := shared.GenerateID()
	verifier := oauth2.GenerateVerifier()
	authURL := client.AuthCodeURL(state, verifier)

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	path := u.Path
	if path == "" {
		path = "/"
	}
	mux.HandleFunc(path, func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "State mismatch", http.StatusBadRequest)
			results <- callbackResult{err: shared.ErrInvalidState}
		case q.Get("error") != "":
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			results <- callbackResult{err: fmt.Errorf("%w: provider returned %q", shared.ErrAuthRequired, q.Get("error"))}
		case q.Get("code") == "":
			http.Error(w, "Missing code", http.StatusBadRequest)
			results <- callbackResult{err: fmt.Errorf("%w: callback carried no code", shared.ErrAuthRequired)}
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, "<html><body><p>Authorized. You can close this tab.</p></body></html>")
			results <- callbackResult{code: q.Get("code")}
		}
	})

	listener, err := net.Listen("tcp", u.Host)
	if err != nil {
		return fmt.Errorf("%w: cannot listen on %s: %v", shared.ErrServiceUnavailable, u.Host, err)
	}
	server := &http.Server{Handler: mux}
	go server.Serve(listener)
	defer server.Close()

	r.writePlain("Open this URL in your browser to authorize:\n\n%s\n\n", authURL)
	r.logger.Infof("waiting for callback on %s", redirect)

	timeout := time.Duration(cmd.Int("timeout")) * time.Second
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var result callbackResult
	select {
	case result = <-results:
	case <-waitCtx.Done():
		return fmt.Errorf("%w: no authorization received within %s", shared.ErrAuthRequired, timeout)
	}
	if result.err != nil {
		return result.err
	}

	tokens, err := client.Exchange(ctx, result.code, verifier)
	if err != nil {
		return err
	}

	name := "User"
	sess := auth.NewSession(client, &tokens)
	var me *mal.User
	if err := sess.WithRetry(ctx, func(token string) error {
		var meErr error
		me, meErr = client.Me(ctx, token)
		return meErr
	}); err == nil {
		name = me.DisplayName()
	}

	r.writePlain("✓ Authorized as %s\n\n", name)
	r.writePlainHeader("Tokens")
	r.writePlain("access_token  = %q\n", tokens.AccessToken)
	r.writePlain("refresh_token = %q\n", tokens.RefreshToken)
	r.writePlain("\nAdd these to the [mal] section of config.toml, or export\nMAL_ACCESS_TOKEN and MAL_REFRESH_TOKEN.\n")
	return nil
}

// AuthStatus checks whether the configured token pair reaches the catalog.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	client, err := r.requireClient()
	if err != nil {
		return err
	}

	sess := r.session()
	if !sess.LoggedIn() {
		return r.writePlain("✗ Not authenticated: no tokens configured. Run `malup auth login`.\n")
	}

	var me *mal.User
	if err := sess.WithRetry(ctx, func(token string) error {
		var meErr error
		me, meErr = client.Me(ctx, token)
		return meErr
	}); err != nil {
		return r.writePlain("✗ Not authenticated: %v\n", err)
	}

	return r.writePlain("✓ Authenticated as %s\n", me.DisplayName())
}
