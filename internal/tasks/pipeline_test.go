package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rmtj/malup/internal/auth"
	"github.com/rmtj/malup/internal/mal"
	"github.com/rmtj/malup/internal/shared"
)

type stubRefresher struct {
	calls  int
	result auth.TokenSet
	err    error
}

func (r *stubRefresher) RefreshTokens(ctx context.Context, refreshToken string) (auth.TokenSet, error) {
	r.calls++
	if r.err != nil {
		return auth.TokenSet{}, r.err
	}
	return r.result, nil
}

type appliedUpdate struct {
	animeID int
	upd     mal.ListStatusUpdate
}

// mockCatalog is an in-memory CatalogAPI. When rejectToken is set, every call
// made with it fails like a remote 401.
type mockCatalog struct {
	search      map[string]*mal.AnimeNode
	searchErr   map[string]error
	updateErrs  map[int]error
	rejectToken string
	applied     []appliedUpdate
	searchCalls int
	pages       []*mal.ListPage
	pageIndex   int
	pageCalls   int
	nextSeen    []string
	pageErr     error
}

func (m *mockCatalog) rejected(token string) bool {
	return m.rejectToken != "" && token == m.rejectToken
}

func (m *mockCatalog) SearchAnime(ctx context.Context, title, token string) (*mal.AnimeNode, error) {
	m.searchCalls++
	if m.rejected(token) {
		return nil, fmt.Errorf("%w: invalid_token", shared.ErrTokenRejected)
	}
	if err, ok := m.searchErr[title]; ok {
		return nil, err
	}
	if node, ok := m.search[title]; ok {
		return node, nil
	}
	return nil, fmt.Errorf("%w for %q", shared.ErrNoMatch, title)
}

func (m *mockCatalog) UpdateListStatus(ctx context.Context, animeID int, upd mal.ListStatusUpdate, token string) error {
	if m.rejected(token) {
		return fmt.Errorf("%w: invalid_token", shared.ErrTokenRejected)
	}
	if err, ok := m.updateErrs[animeID]; ok {
		return err
	}
	m.applied = append(m.applied, appliedUpdate{animeID: animeID, upd: upd})
	return nil
}

func (m *mockCatalog) ListPage(ctx context.Context, next string, pageSize int, token string) (*mal.ListPage, error) {
	m.pageCalls++
	m.nextSeen = append(m.nextSeen, next)
	if m.rejected(token) {
		return nil, fmt.Errorf("%w: invalid_token", shared.ErrTokenRejected)
	}
	if m.pageErr != nil {
		return nil, m.pageErr
	}
	if m.pageIndex >= len(m.pages) {
		return &mal.ListPage{}, nil
	}
	page := m.pages[m.pageIndex]
	m.pageIndex++
	return page, nil
}

func testSession(token string) *auth.Session {
	if token == "" {
		return auth.NewSession(&stubRefresher{}, nil)
	}
	return auth.NewSession(&stubRefresher{}, &auth.TokenSet{AccessToken: token, RefreshToken: token + "-r"})
}

func testEngine(catalog *mockCatalog) *Engine {
	return NewEngine(catalog, shared.PipelineConfig{
		PacingMS:     1,
		PageSize:     100,
		MaxListPages: 5,
		MaxListItems: 400,
	})
}

// listPageOf builds a page of count entries with ids starting at startID,
// each completed with a score of 7.
func listPageOf(startID, count int, next string) *mal.ListPage {
	page := &mal.ListPage{}
	page.Paging.Next = next
	for i := 0; i < count; i++ {
		watched := 12
		score := 7
		total := 12
		page.Data = append(page.Data, mal.ListDatum{Node: mal.ListNode{
			ID:          startID + i,
			Title:       fmt.Sprintf("Show %d", startID+i),
			NumEpisodes: &total,
			MyListStatus: &mal.MyListStatus{
				Status:             "completed",
				NumEpisodesWatched: &watched,
				Score:              &score,
				UpdatedAt:          "2024-01-01T00:00:00+00:00",
			},
		}})
	}
	return page
}

func TestEnginePreview(t *testing.T) {
	ctx := context.Background()

	t.Run("fails upfront without a token", func(t *testing.T) {
		engine := testEngine(&mockCatalog{})
		_, err := engine.Preview(ctx, testSession(""), []string{"Cowboy Bebop"}, nil)
		if !errors.Is(err, shared.ErrAuthRequired) {
			t.Fatalf("expected ErrAuthRequired, got %v", err)
		}
	})

	t.Run("one item per line in input order", func(t *testing.T) {
		catalog := &mockCatalog{
			search: map[string]*mal.AnimeNode{
				"Cowboy Bebop": {ID: 1, Title: "Cowboy Bebop", NumEpisodes: 26},
				"Trigun":       {ID: 6, Title: "Trigun", NumEpisodes: 26},
			},
		}
		engine := testEngine(catalog)

		lines := []string{
			"Cowboy Bebop (12)[8]",
			"Bad Score (1)[11]",
			"Nonexistent Show",
			"Trigun",
		}
		planned, err := engine.Preview(ctx, testSession("tok"), lines, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(planned) != len(lines) {
			t.Fatalf("expected %d items, got %d", len(lines), len(planned))
		}

		first := planned[0]
		if first.Error != "" {
			t.Fatalf("expected first item to succeed, got error %q", first.Error)
		}
		if first.AnimeID != 1 || first.MatchedTitle != "Cowboy Bebop" || first.TotalEpisodes != 26 {
			t.Errorf("unexpected match %+v", first)
		}
		if first.PlannedEpisodes != 12 || first.PlannedStatus != StatusWatching {
			t.Errorf("unexpected plan %+v", first)
		}
		if first.PlannedScore == nil || *first.PlannedScore != 8 {
			t.Errorf("expected planned score 8, got %v", first.PlannedScore)
		}

		if planned[1].Error != "Score must be between 1 and 10" {
			t.Errorf("expected score error on item 2, got %q", planned[1].Error)
		}
		if !strings.Contains(planned[2].Error, "Nonexistent Show") {
			t.Errorf("expected no-match error on item 3, got %q", planned[2].Error)
		}
		if planned[3].Error != "" || planned[3].PlannedStatus != StatusCompleted {
			t.Errorf("expected item 4 completed with no error, got %+v", planned[3])
		}
	})

	t.Run("score errors skip the remote lookup", func(t *testing.T) {
		catalog := &mockCatalog{}
		engine := testEngine(catalog)

		_, err := engine.Preview(ctx, testSession("tok"), []string{"Title (1)[99]"}, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if catalog.searchCalls != 0 {
			t.Errorf("expected no search calls, got %d", catalog.searchCalls)
		}
	})

	t.Run("empty titles become error items without remote calls", func(t *testing.T) {
		catalog := &mockCatalog{}
		engine := testEngine(catalog)

		planned, err := engine.Preview(ctx, testSession("tok"), []string{"   "}, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if planned[0].Error != "Title is empty" {
			t.Errorf("expected empty-title error, got %q", planned[0].Error)
		}
		if catalog.searchCalls != 0 {
			t.Errorf("expected no search calls, got %d", catalog.searchCalls)
		}
	})

	t.Run("a rejected token is refreshed once and the search retried", func(t *testing.T) {
		catalog := &mockCatalog{
			rejectToken: "stale",
			search: map[string]*mal.AnimeNode{
				"Cowboy Bebop": {ID: 1, Title: "Cowboy Bebop", NumEpisodes: 26},
			},
		}
		refresher := &stubRefresher{result: auth.TokenSet{AccessToken: "fresh", RefreshToken: "fresh-r"}}
		sess := auth.NewSession(refresher, &auth.TokenSet{AccessToken: "stale", RefreshToken: "stale-r"})
		engine := testEngine(catalog)

		planned, err := engine.Preview(ctx, sess, []string{"Cowboy Bebop"}, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if refresher.calls != 1 {
			t.Errorf("expected exactly 1 refresh, got %d", refresher.calls)
		}
		if catalog.searchCalls != 2 {
			t.Errorf("expected 2 search calls, got %d", catalog.searchCalls)
		}
		if planned[0].Error != "" {
			t.Errorf("expected retried item to succeed, got %q", planned[0].Error)
		}
	})

	t.Run("progress updates are emitted", func(t *testing.T) {
		catalog := &mockCatalog{
			search: map[string]*mal.AnimeNode{"Trigun": {ID: 6, Title: "Trigun", NumEpisodes: 26}},
		}
		engine := testEngine(catalog)

		progress := make(chan ProgressUpdate, 16)
		if _, err := engine.Preview(ctx, testSession("tok"), []string{"Trigun"}, progress); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		close(progress)

		var got []ProgressUpdate
		for u := range progress {
			got = append(got, u)
		}
		if len(got) == 0 {
			t.Fatal("expected at least one progress update")
		}
		if got[0].Phase != SearchCatalog {
			t.Errorf("expected search phase, got %s", got[0].Phase)
		}
	})
}

func TestEngineConfirm(t *testing.T) {
	ctx := context.Background()

	t.Run("fails upfront without a token", func(t *testing.T) {
		engine := testEngine(&mockCatalog{})
		_, err := engine.Confirm(ctx, testSession(""), []PlannedUpdate{{AnimeID: 1}}, nil, nil)
		if !errors.Is(err, shared.ErrAuthRequired) {
			t.Fatalf("expected ErrAuthRequired, got %v", err)
		}
	})

	t.Run("applies planned items and reports what was set", func(t *testing.T) {
		catalog := &mockCatalog{}
		engine := testEngine(catalog)

		score := 8
		planned := []PlannedUpdate{{
			InputTitle:      "Cowboy Bebop",
			MatchedTitle:    "Cowboy Bebop",
			AnimeID:         1,
			TotalEpisodes:   26,
			PlannedEpisodes: 12,
			PlannedScore:    &score,
			PlannedStatus:   StatusWatching,
		}}

		results, err := engine.Confirm(ctx, testSession("tok"), planned, nil, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("expected 1 result, got %d", len(results))
		}

		res := results[0]
		if res.Status != StatusWatching || res.Title != "Cowboy Bebop" {
			t.Errorf("unexpected result %+v", res)
		}
		if res.Episodes == nil || *res.Episodes != 12 || res.Total == nil || *res.Total != 26 {
			t.Errorf("unexpected episode fields %+v", res)
		}

		if len(catalog.applied) != 1 {
			t.Fatalf("expected 1 remote update, got %d", len(catalog.applied))
		}
		upd := catalog.applied[0]
		if upd.animeID != 1 || upd.upd.Status != StatusWatching || upd.upd.NumWatchedEpisodes != 12 {
			t.Errorf("unexpected remote update %+v", upd)
		}
		if upd.upd.Score == nil || *upd.upd.Score != 8 {
			t.Errorf("expected score 8 sent, got %v", upd.upd.Score)
		}
	})

	t.Run("items carrying errors pass through without remote calls", func(t *testing.T) {
		catalog := &mockCatalog{}
		engine := testEngine(catalog)

		planned := []PlannedUpdate{{InputTitle: "Broken", Error: "Score must be between 1 and 10"}}
		results, err := engine.Confirm(ctx, testSession("tok"), planned, nil, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if results[0].Status != StatusError || results[0].Error == "" {
			t.Errorf("expected terminal error result, got %+v", results[0])
		}
		if results[0].Title != "Broken" {
			t.Errorf("expected input title as label, got %q", results[0].Title)
		}
		if len(catalog.applied) != 0 {
			t.Errorf("expected no remote updates, got %d", len(catalog.applied))
		}
	})

	t.Run("one item failing never aborts the batch", func(t *testing.T) {
		catalog := &mockCatalog{
			updateErrs: map[int]error{2: fmt.Errorf("%w: server exploded", shared.ErrAPIRequest)},
		}
		engine := testEngine(catalog)

		planned := []PlannedUpdate{
			{MatchedTitle: "First", AnimeID: 1, PlannedEpisodes: 1, PlannedStatus: StatusCompleted},
			{MatchedTitle: "Second", AnimeID: 2, PlannedEpisodes: 2, PlannedStatus: StatusCompleted},
			{MatchedTitle: "Third", AnimeID: 3, PlannedEpisodes: 3, PlannedStatus: StatusCompleted},
		}
		results, err := engine.Confirm(ctx, testSession("tok"), planned, nil, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}
		if results[0].Status != StatusCompleted || results[2].Status != StatusCompleted {
			t.Errorf("expected surrounding items to succeed, got %+v", results)
		}
		if results[1].Status != StatusError || !strings.Contains(results[1].Error, "server exploded") {
			t.Errorf("expected item 2 to carry the remote message, got %+v", results[1])
		}
	})

	t.Run("recomputes the plan from raw lines when none is supplied", func(t *testing.T) {
		catalog := &mockCatalog{
			search: map[string]*mal.AnimeNode{
				"Trigun": {ID: 6, Title: "Trigun", NumEpisodes: 26},
			},
		}
		engine := testEngine(catalog)

		results, err := engine.Confirm(ctx, testSession("tok"), nil, []string{"Trigun", "Nonexistent Show"}, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
		if results[0].Status != StatusCompleted {
			t.Errorf("expected Trigun completed, got %+v", results[0])
		}
		if results[1].Status != StatusError {
			t.Errorf("expected second item to fail, got %+v", results[1])
		}
		if len(catalog.applied) != 1 || catalog.applied[0].animeID != 6 {
			t.Errorf("expected exactly one applied update for Trigun, got %+v", catalog.applied)
		}
	})

	t.Run("a second rejection after refresh becomes an item error", func(t *testing.T) {
		catalog := &mockCatalog{rejectToken: "stale"}
		// Refresh "succeeds" but hands back the same rejected token.
		refresher := &stubRefresher{result: auth.TokenSet{AccessToken: "stale", RefreshToken: "stale-r"}}
		sess := auth.NewSession(refresher, &auth.TokenSet{AccessToken: "stale", RefreshToken: "stale-r"})
		engine := testEngine(catalog)

		planned := []PlannedUpdate{{MatchedTitle: "First", AnimeID: 1, PlannedStatus: StatusCompleted}}
		results, err := engine.Confirm(ctx, sess, planned, nil, nil)
		if err != nil {
			t.Fatalf("expected no batch error, got %v", err)
		}
		if refresher.calls != 1 {
			t.Errorf("expected exactly 1 refresh, got %d", refresher.calls)
		}
		if results[0].Status != StatusError {
			t.Errorf("expected item error after second rejection, got %+v", results[0])
		}
	})
}

func TestEngineSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("fails upfront without a token", func(t *testing.T) {
		engine := testEngine(&mockCatalog{})
		_, err := engine.Snapshot(ctx, testSession(""), nil)
		if !errors.Is(err, shared.ErrAuthRequired) {
			t.Fatalf("expected ErrAuthRequired, got %v", err)
		}
	})

	t.Run("item cap stops the fetch mid-page", func(t *testing.T) {
		catalog := &mockCatalog{
			pages: []*mal.ListPage{
				listPageOf(0, 100, "next-1"),
				listPageOf(100, 100, "next-2"),
				listPageOf(200, 100, "next-3"),
			},
		}
		engine := NewEngine(catalog, shared.PipelineConfig{
			PacingMS:     1,
			PageSize:     100,
			MaxListPages: 5,
			MaxListItems: 250,
		})

		entries, err := engine.Snapshot(ctx, testSession("tok"), nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(entries) != 250 {
			t.Errorf("expected 250 entries, got %d", len(entries))
		}
		if catalog.pageCalls != 3 {
			t.Errorf("expected 3 page fetches, got %d", catalog.pageCalls)
		}
	})

	t.Run("page cap stops an endless cursor", func(t *testing.T) {
		catalog := &mockCatalog{
			pages: []*mal.ListPage{
				listPageOf(0, 10, "next-1"),
				listPageOf(10, 10, "next-2"),
				listPageOf(20, 10, "next-3"),
			},
		}
		engine := NewEngine(catalog, shared.PipelineConfig{
			PacingMS:     1,
			PageSize:     100,
			MaxListPages: 2,
			MaxListItems: 400,
		})

		entries, err := engine.Snapshot(ctx, testSession("tok"), nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(entries) != 20 {
			t.Errorf("expected 20 entries, got %d", len(entries))
		}
		if catalog.pageCalls != 2 {
			t.Errorf("expected 2 page fetches, got %d", catalog.pageCalls)
		}
	})

	t.Run("pagination follows the opaque next URL", func(t *testing.T) {
		catalog := &mockCatalog{
			pages: []*mal.ListPage{
				listPageOf(0, 5, "cursor-abc"),
				listPageOf(5, 5, ""),
			},
		}
		engine := testEngine(catalog)

		entries, err := engine.Snapshot(ctx, testSession("tok"), nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(entries) != 10 {
			t.Errorf("expected 10 entries, got %d", len(entries))
		}
		if len(catalog.nextSeen) != 2 || catalog.nextSeen[0] != "" || catalog.nextSeen[1] != "cursor-abc" {
			t.Errorf("unexpected cursor sequence %v", catalog.nextSeen)
		}
	})

	t.Run("entries are normalized", func(t *testing.T) {
		zero := 0
		watched := 3
		page := &mal.ListPage{Data: []mal.ListDatum{
			{Node: mal.ListNode{ID: 1}},
			{Node: mal.ListNode{
				ID:    2,
				Title: "Scored Zero",
				MyListStatus: &mal.MyListStatus{
					Status:             "watching",
					NumEpisodesWatched: &watched,
					Score:              &zero,
				},
			}},
		}}
		engine := testEngine(&mockCatalog{pages: []*mal.ListPage{page}})

		entries, err := engine.Snapshot(ctx, testSession("tok"), nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		bare := entries[0]
		if bare.Title != "Untitled" || bare.Status != "unknown" {
			t.Errorf("unexpected defaults %+v", bare)
		}
		if bare.WatchedEpisodes != nil || bare.TotalEpisodes != nil || bare.Score != nil || bare.UpdatedAt != nil {
			t.Errorf("expected nil fields for a bare node, got %+v", bare)
		}

		scored := entries[1]
		if scored.Score != nil {
			t.Errorf("expected score 0 normalized to nil, got %v", *scored.Score)
		}
		if scored.Status != "watching" || scored.WatchedEpisodes == nil || *scored.WatchedEpisodes != 3 {
			t.Errorf("unexpected normalized entry %+v", scored)
		}
	})

	t.Run("a page failure aborts the snapshot", func(t *testing.T) {
		catalog := &mockCatalog{pageErr: fmt.Errorf("%w: gateway timeout", shared.ErrAPIRequest)}
		engine := testEngine(catalog)

		_, err := engine.Snapshot(ctx, testSession("tok"), nil)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("a rejected token is refreshed once mid-pagination", func(t *testing.T) {
		catalog := &mockCatalog{
			rejectToken: "stale",
			pages:       []*mal.ListPage{listPageOf(0, 5, "")},
		}
		refresher := &stubRefresher{result: auth.TokenSet{AccessToken: "fresh", RefreshToken: "fresh-r"}}
		sess := auth.NewSession(refresher, &auth.TokenSet{AccessToken: "stale", RefreshToken: "stale-r"})
		engine := testEngine(catalog)

		entries, err := engine.Snapshot(ctx, sess, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if refresher.calls != 1 {
			t.Errorf("expected exactly 1 refresh, got %d", refresher.calls)
		}
		if len(entries) != 5 {
			t.Errorf("expected 5 entries, got %d", len(entries))
		}
	})
}
