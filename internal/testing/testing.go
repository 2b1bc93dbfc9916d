// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"

	"github.com/rmtj/malup/internal/auth"
	"github.com/rmtj/malup/internal/mal"
	"github.com/rmtj/malup/internal/tasks"
)

// MockPipeline is a test double for [tasks.Pipeline] returning canned values.
type MockPipeline struct {
	Planned []tasks.PlannedUpdate
	Results []tasks.UpdateResult
	Entries []tasks.ListEntry
	Err     error
}

func (m *MockPipeline) Preview(ctx context.Context, sess *auth.Session, lines []string, progress chan<- tasks.ProgressUpdate) ([]tasks.PlannedUpdate, error) {
	return m.Planned, m.Err
}

func (m *MockPipeline) Confirm(ctx context.Context, sess *auth.Session, planned []tasks.PlannedUpdate, lines []string, progress chan<- tasks.ProgressUpdate) ([]tasks.UpdateResult, error) {
	return m.Results, m.Err
}

func (m *MockPipeline) Snapshot(ctx context.Context, sess *auth.Session, progress chan<- tasks.ProgressUpdate) ([]tasks.ListEntry, error) {
	return m.Entries, m.Err
}

// MockCatalog is a test double for [tasks.CatalogAPI] returning canned values.
type MockCatalog struct {
	Node      *mal.AnimeNode
	SearchErr error
	UpdateErr error
	Page      *mal.ListPage
	PageErr   error
}

func (m *MockCatalog) SearchAnime(ctx context.Context, title, token string) (*mal.AnimeNode, error) {
	return m.Node, m.SearchErr
}

func (m *MockCatalog) UpdateListStatus(ctx context.Context, animeID int, upd mal.ListStatusUpdate, token string) error {
	return m.UpdateErr
}

func (m *MockCatalog) ListPage(ctx context.Context, next string, pageSize int, token string) (*mal.ListPage, error) {
	return m.Page, m.PageErr
}

// StaticRefresher is a test double for [auth.Refresher] returning a fixed pair.
type StaticRefresher struct {
	Tokens auth.TokenSet
	Err    error
}

func (r *StaticRefresher) RefreshTokens(ctx context.Context, refreshToken string) (auth.TokenSet, error) {
	return r.Tokens, r.Err
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
