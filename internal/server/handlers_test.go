package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rmtj/malup/internal/auth"
	"github.com/rmtj/malup/internal/shared"
	"github.com/rmtj/malup/internal/tasks"
)

// mockPipeline returns canned results, or ErrAuthRequired when the session
// holds no token.
type mockPipeline struct {
	planned   []tasks.PlannedUpdate
	results   []tasks.UpdateResult
	entries   []tasks.ListEntry
	err       error
	lastLines []string
	lastPlan  []tasks.PlannedUpdate
}

func (m *mockPipeline) gate(sess *auth.Session) error {
	if m.err != nil {
		return m.err
	}
	if _, err := sess.AccessToken(); err != nil {
		return err
	}
	return nil
}

func (m *mockPipeline) Preview(ctx context.Context, sess *auth.Session, lines []string, progress chan<- tasks.ProgressUpdate) ([]tasks.PlannedUpdate, error) {
	m.lastLines = lines
	if err := m.gate(sess); err != nil {
		return nil, err
	}
	return m.planned, nil
}

func (m *mockPipeline) Confirm(ctx context.Context, sess *auth.Session, planned []tasks.PlannedUpdate, lines []string, progress chan<- tasks.ProgressUpdate) ([]tasks.UpdateResult, error) {
	m.lastPlan = planned
	m.lastLines = lines
	if err := m.gate(sess); err != nil {
		return nil, err
	}
	return m.results, nil
}

func (m *mockPipeline) Snapshot(ctx context.Context, sess *auth.Session, progress chan<- tasks.ProgressUpdate) ([]tasks.ListEntry, error) {
	if err := m.gate(sess); err != nil {
		return nil, err
	}
	return m.entries, nil
}

func requestWithSession(method, target string, body []byte, token string) *http.Request {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader([]byte("{}"))
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)

	var sess *auth.Session
	if token != "" {
		sess = auth.NewSession(nil, &auth.TokenSet{AccessToken: token})
	} else {
		sess = auth.NewSession(nil, nil)
	}
	return req.WithContext(NewSessionContext(req.Context(), sess))
}

func TestPipelineHandlerPreview(t *testing.T) {
	t.Run("returns planned items", func(t *testing.T) {
		pipeline := &mockPipeline{
			planned: []tasks.PlannedUpdate{{InputTitle: "Trigun", MatchedTitle: "Trigun", AnimeID: 6}},
		}
		handler := NewPipelineHandler(pipeline, shared.NewLogger(nil))

		body, _ := json.Marshal(map[string]any{"shows": []string{"Trigun"}})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithSession(http.MethodPost, "/preview-shows", body, "tok"))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Results []tasks.PlannedUpdate `json:"results"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid response JSON: %v", err)
		}
		if len(resp.Results) != 1 || resp.Results[0].MatchedTitle != "Trigun" {
			t.Errorf("unexpected results %+v", resp.Results)
		}
		if len(pipeline.lastLines) != 1 || pipeline.lastLines[0] != "Trigun" {
			t.Errorf("expected lines forwarded, got %v", pipeline.lastLines)
		}
	})

	t.Run("missing token maps to 401", func(t *testing.T) {
		handler := NewPipelineHandler(&mockPipeline{}, shared.NewLogger(nil))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithSession(http.MethodPost, "/preview-shows", nil, ""))

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Authentication required") {
			t.Errorf("expected auth error message, got %s", rec.Body.String())
		}
	})

	t.Run("other failures map to 500", func(t *testing.T) {
		pipeline := &mockPipeline{err: fmt.Errorf("%w: boom", shared.ErrAPIRequest)}
		handler := NewPipelineHandler(pipeline, shared.NewLogger(nil))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithSession(http.MethodPost, "/preview-shows", nil, "tok"))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("rejects GET", func(t *testing.T) {
		handler := NewPipelineHandler(&mockPipeline{}, shared.NewLogger(nil))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithSession(http.MethodGet, "/preview-shows", nil, "tok"))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rec.Code)
		}
	})
}

func TestPipelineHandlerAdd(t *testing.T) {
	t.Run("forwards the echoed plan", func(t *testing.T) {
		episodes := 12
		pipeline := &mockPipeline{
			results: []tasks.UpdateResult{{Title: "Trigun", Status: tasks.StatusCompleted, Episodes: &episodes}},
		}
		handler := NewPipelineHandler(pipeline, shared.NewLogger(nil))

		body, _ := json.Marshal(map[string]any{
			"matches": []tasks.PlannedUpdate{{MatchedTitle: "Trigun", AnimeID: 6, PlannedStatus: tasks.StatusCompleted}},
		})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithSession(http.MethodPost, "/add-shows", body, "tok"))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if len(pipeline.lastPlan) != 1 || pipeline.lastPlan[0].AnimeID != 6 {
			t.Errorf("expected plan forwarded, got %+v", pipeline.lastPlan)
		}
	})

	t.Run("missing token maps to 401 with the add message", func(t *testing.T) {
		handler := NewPipelineHandler(&mockPipeline{}, shared.NewLogger(nil))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithSession(http.MethodPost, "/add-shows", nil, ""))

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "before adding shows") {
			t.Errorf("expected add-specific message, got %s", rec.Body.String())
		}
	})
}

func TestPipelineHandlerList(t *testing.T) {
	t.Run("returns the snapshot", func(t *testing.T) {
		pipeline := &mockPipeline{
			entries: []tasks.ListEntry{{ID: 1, Title: "Cowboy Bebop", Status: "completed"}},
		}
		handler := NewPipelineHandler(pipeline, shared.NewLogger(nil))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithSession(http.MethodGet, "/my-list", nil, "tok"))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp struct {
			Results []tasks.ListEntry `json:"results"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid response JSON: %v", err)
		}
		if len(resp.Results) != 1 || resp.Results[0].Title != "Cowboy Bebop" {
			t.Errorf("unexpected results %+v", resp.Results)
		}
	})

	t.Run("missing token maps to 401", func(t *testing.T) {
		handler := NewPipelineHandler(&mockPipeline{}, shared.NewLogger(nil))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithSession(http.MethodGet, "/my-list", nil, ""))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestPipelineHandlerExport(t *testing.T) {
	pipeline := &mockPipeline{
		entries: []tasks.ListEntry{{ID: 1, Title: "Cowboy Bebop", Status: "completed"}},
	}
	handler := NewPipelineHandler(pipeline, shared.NewLogger(nil))

	t.Run("defaults to a CSV attachment", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithSession(http.MethodGet, "/my-list/export", nil, "tok"))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
			t.Errorf("expected text/csv, got %s", ct)
		}
		if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "animelist.csv") {
			t.Errorf("expected csv attachment, got %s", cd)
		}
		if !strings.Contains(rec.Body.String(), "Cowboy Bebop") {
			t.Errorf("expected entry in export, got %s", rec.Body.String())
		}
	})

	t.Run("honors the format parameter", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithSession(http.MethodGet, "/my-list/export?format=json", nil, "tok"))

		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %s", ct)
		}
	})

	t.Run("rejects unknown formats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithSession(http.MethodGet, "/my-list/export?format=xlsx", nil, "tok"))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestRouter(t *testing.T) {
	t.Run("filters methods", func(t *testing.T) {
		router := NewBasicRouter()
		router.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("pong"))
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if rec.Body.String() != "pong" {
			t.Errorf("expected pong, got %s", rec.Body.String())
		}
	})

	t.Run("applies middleware in order", func(t *testing.T) {
		router := NewBasicRouter()
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}
		router.Use(mark("first"), mark("second"))
		router.Handle(http.MethodGet, "/ok", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
		if len(order) != 2 || order[0] != "first" || order[1] != "second" {
			t.Errorf("unexpected middleware order %v", order)
		}
	})
}

func TestSessionMiddleware(t *testing.T) {
	store := auth.NewSessionStore(nil, nil, auth.DefaultSessionTTL)
	router := NewBasicRouter()
	router.Use(SessionMiddleware(store))

	var seen *auth.Session
	router.Handle(http.MethodGet, "/check", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFrom(r.Context())
	}))

	t.Run("issues a session and cookie on first contact", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/check", nil))

		if seen == nil {
			t.Fatal("expected a session in context")
		}
		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Name != SessionCookie {
			t.Fatalf("expected a session cookie, got %v", cookies)
		}
	})

	t.Run("reuses the session for a returning cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/check", nil))
		sid := rec.Result().Cookies()[0].Value
		first := seen

		req := httptest.NewRequest(http.MethodGet, "/check", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sid})
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if seen != first {
			t.Error("expected the same session across requests")
		}
		if len(rec.Result().Cookies()) != 0 {
			t.Error("expected no new cookie for a returning session")
		}
	})
}
