// Package server provides HTTP routing, middleware, and the web surface of
// the bulk list updater.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Sessions
//
// [SessionMiddleware] resolves the per-browser token session from a cookie,
// issuing one on first contact, and injects it into the request context.
// Handlers retrieve it with [SessionFrom]; the OAuth callback stores the
// exchanged token pair on it, and the pipeline endpoints read tokens through
// it. Nothing is persisted beyond the in-memory session store's TTL.
//
// # OAuth Flow
//
// [AuthHandler] serves the authorization-code round trip: /login generates a
// PKCE verifier, parks it in a one-time state-keyed store, and redirects to
// the provider; /callback redeems the code, stores the token pair on the
// session, and renders a popup-aware completion page. /me and /logout round
// out the session surface.
//
// # Pipeline Endpoints
//
// [PipelineHandler] exposes the preview, confirm, and snapshot operations as
// JSON endpoints. A missing token maps to a 401 with a distinguishable error
// body; per-item failures ride along inside a 200 results payload.
package server
