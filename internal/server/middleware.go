package server

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rmtj/malup/internal/auth"
)

// SessionCookie names the cookie carrying the session id.
const SessionCookie = "malup_sid"

type contextKey string

const sessionKey contextKey = "session"

// LoggingMiddleware logs each request's method, path, status, and duration.
func LoggingMiddleware(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(recorder, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"duration", time.Since(start),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// SessionMiddleware resolves the token session for the request's browser,
// issuing a fresh one (and its cookie) when none exists, and injects it into
// the request context for [SessionFrom].
func SessionMiddleware(store *auth.SessionStore) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sess *auth.Session

			if cookie, err := r.Cookie(SessionCookie); err == nil {
				sess, _ = store.Get(cookie.Value)
			}
			if sess == nil {
				sid, issued := store.Issue()
				sess = issued
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    sid,
					Path:     "/",
					MaxAge:   int(auth.DefaultSessionTTL.Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}

			next.ServeHTTP(w, r.WithContext(NewSessionContext(r.Context(), sess)))
		})
	}
}

// NewSessionContext returns a context carrying the session.
func NewSessionContext(ctx context.Context, sess *auth.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFrom extracts the request's token session, nil when no session
// middleware ran.
func SessionFrom(ctx context.Context) *auth.Session {
	sess, _ := ctx.Value(sessionKey).(*auth.Session)
	return sess
}
