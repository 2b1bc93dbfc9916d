package tasks

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/rmtj/malup/internal/auth"
	"github.com/rmtj/malup/internal/mal"
	"github.com/rmtj/malup/internal/shared"
)

// PlannedUpdate is the unit exchanged between the preview and confirm phases.
// The UI may echo a preview's items back to the confirm endpoint verbatim, so
// the JSON shape is a stable contract.
type PlannedUpdate struct {
	RawInput        string `json:"rawInput"`
	InputTitle      string `json:"inputTitle"`
	EpisodeCount    *int   `json:"episodeCount"`
	MatchedTitle    string `json:"matchedTitle"`
	AnimeID         int    `json:"animeId"`
	TotalEpisodes   int    `json:"totalEpisodes"`
	PlannedEpisodes int    `json:"plannedEpisodes"`
	PlannedScore    *int   `json:"plannedScore"`
	PlannedStatus   string `json:"plannedStatus"`
	Error           string `json:"error,omitempty"`
}

// label returns the best available display name for the item.
func (p PlannedUpdate) label() string {
	if p.MatchedTitle != "" {
		return p.MatchedTitle
	}
	if p.InputTitle != "" {
		return p.InputTitle
	}
	return p.RawInput
}

// UpdateResult is the terminal outcome for one input line of a confirm batch.
type UpdateResult struct {
	Title    string `json:"title"`
	Status   string `json:"status"`
	Episodes *int   `json:"episodes"`
	Score    *int   `json:"score"`
	Total    *int   `json:"total"`
	Error    string `json:"error,omitempty"`
}

// ListEntry is one normalized row of the user's remote list snapshot.
// Pointer fields serialize as null when the remote value is absent.
type ListEntry struct {
	ID              int     `json:"id"`
	Title           string  `json:"title"`
	Status          string  `json:"status"`
	WatchedEpisodes *int    `json:"watchedEpisodes"`
	TotalEpisodes   *int    `json:"totalEpisodes"`
	Score           *int    `json:"score"`
	UpdatedAt       *string `json:"updatedAt"`
}

// CatalogAPI is the remote catalog and list boundary consumed by the engine.
// This abstraction allows for easier testing and decoupling from concrete implementation.
type CatalogAPI interface {
	SearchAnime(ctx context.Context, title, token string) (*mal.AnimeNode, error)
	UpdateListStatus(ctx context.Context, animeID int, upd mal.ListStatusUpdate, token string) error
	ListPage(ctx context.Context, next string, pageSize int, token string) (*mal.ListPage, error)
}

// Pipeline defines the three batch operations exposed to HTTP handlers and
// the CLI. Every remote call inside them goes through the session's
// refresh-once retry wrapper.
type Pipeline interface {
	// Preview resolves raw input lines against the remote catalog, producing
	// one planned update (or error item) per line without mutating anything.
	Preview(ctx context.Context, sess *auth.Session, lines []string, progress chan<- ProgressUpdate) ([]PlannedUpdate, error)

	// Confirm applies a previously computed plan to the remote account. When
	// planned is empty and raw lines are supplied instead, it previews them
	// first (single-step "paste and go").
	Confirm(ctx context.Context, sess *auth.Session, planned []PlannedUpdate, lines []string, progress chan<- ProgressUpdate) ([]UpdateResult, error)

	// Snapshot paginates through the user's remote list up to the configured
	// page and item caps, normalizing each entry.
	Snapshot(ctx context.Context, sess *auth.Session, progress chan<- ProgressUpdate) ([]ListEntry, error)
}

// Engine implements Pipeline against a remote catalog client.
//
// Batches run strictly sequentially with a fixed pacing interval between
// remote calls, keeping under the remote API's rate limit and making a
// refresh triggered by item N visible to item N+1.
type Engine struct {
	catalog  CatalogAPI
	pace     time.Duration
	pageSize int
	maxPages int
	maxItems int
}

// NewEngine creates an Engine from the catalog client and pipeline tuning.
// Zero config values fall back to the standard defaults.
func NewEngine(catalog CatalogAPI, cfg shared.PipelineConfig) *Engine {
	e := &Engine{
		catalog:  catalog,
		pace:     time.Duration(cfg.PacingMS) * time.Millisecond,
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxListPages,
		maxItems: cfg.MaxListItems,
	}
	if cfg.PacingMS <= 0 {
		e.pace = 350 * time.Millisecond
	}
	if e.pageSize <= 0 {
		e.pageSize = 100
	}
	if e.maxPages <= 0 {
		e.maxPages = 5
	}
	if e.maxItems <= 0 {
		e.maxItems = 400
	}
	return e
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

// Preview resolves each line into a PlannedUpdate: parse, search the catalog
// for the first hit, compute the target plan. Lines that fail validation or
// lookup become error items; one item per line, input order preserved.
func (e *Engine) Preview(ctx context.Context, sess *auth.Session, lines []string, progress chan<- ProgressUpdate) ([]PlannedUpdate, error) {
	if e.catalog == nil {
		return nil, fmt.Errorf("%w: catalog client not initialized", shared.ErrServiceUnavailable)
	}
	if _, err := sess.AccessToken(); err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Every(e.pace), 1)
	total := len(lines)
	planned := make([]PlannedUpdate, 0, total)

	for i, line := range lines {
		intent := ParseShowInput(line)
		item := PlannedUpdate{
			RawInput:     intent.RawInput,
			InputTitle:   intent.Title,
			EpisodeCount: intent.EpisodeCount,
		}

		// Validation failures skip the remote lookup entirely, and with it
		// the pacing wait.
		if intent.ScoreError != "" {
			item.Error = intent.ScoreError
			e.sendProgress(progress, skippedShowUpdate(i+1, total, item.label(), item.Error))
			planned = append(planned, item)
			continue
		}
		if intent.Title == "" {
			item.Error = "Title is empty"
			e.sendProgress(progress, skippedShowUpdate(i+1, total, line, item.Error))
			planned = append(planned, item)
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		e.sendProgress(progress, searchShowUpdate(i+1, total, intent.Title))

		var node *mal.AnimeNode
		err := sess.WithRetry(ctx, func(token string) error {
			var searchErr error
			node, searchErr = e.catalog.SearchAnime(ctx, intent.Title, token)
			return searchErr
		})
		if err != nil {
			item.Error = err.Error()
			planned = append(planned, item)
			continue
		}

		plan := ComputePlan(intent.EpisodeCount, node.NumEpisodes)
		item.MatchedTitle = node.Title
		item.AnimeID = node.ID
		item.TotalEpisodes = node.NumEpisodes
		item.PlannedEpisodes = plan.WatchedEpisodes
		item.PlannedScore = intent.Score
		item.PlannedStatus = plan.Status
		planned = append(planned, item)
	}

	return planned, nil
}

// Confirm applies each planned item to the remote list. Items that already
// carry an error become terminal error results without a remote call; one
// item's failure never aborts the batch.
func (e *Engine) Confirm(ctx context.Context, sess *auth.Session, planned []PlannedUpdate, lines []string, progress chan<- ProgressUpdate) ([]UpdateResult, error) {
	if e.catalog == nil {
		return nil, fmt.Errorf("%w: catalog client not initialized", shared.ErrServiceUnavailable)
	}
	if _, err := sess.AccessToken(); err != nil {
		return nil, err
	}

	if len(planned) == 0 && len(lines) > 0 {
		var err error
		planned, err = e.Preview(ctx, sess, lines, progress)
		if err != nil {
			return nil, err
		}
	}

	limiter := rate.NewLimiter(rate.Every(e.pace), 1)
	total := len(planned)
	results := make([]UpdateResult, 0, total)

	for i, item := range planned {
		title := item.label()

		if item.Error != "" {
			results = append(results, UpdateResult{Title: title, Status: StatusError, Error: item.Error})
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		e.sendProgress(progress, applyShowUpdate(i+1, total, title))

		upd := mal.ListStatusUpdate{
			Status:             item.PlannedStatus,
			NumWatchedEpisodes: item.PlannedEpisodes,
			Score:              item.PlannedScore,
		}
		err := sess.WithRetry(ctx, func(token string) error {
			return e.catalog.UpdateListStatus(ctx, item.AnimeID, upd, token)
		})
		if err != nil {
			e.sendProgress(progress, failedShowUpdate(i+1, total, title, err))
			results = append(results, UpdateResult{Title: title, Status: StatusError, Error: err.Error()})
			continue
		}

		episodes := item.PlannedEpisodes
		totalEpisodes := item.TotalEpisodes
		e.sendProgress(progress, appliedShowUpdate(i+1, total, title, item.PlannedStatus))
		results = append(results, UpdateResult{
			Title:    title,
			Status:   item.PlannedStatus,
			Episodes: &episodes,
			Score:    item.PlannedScore,
			Total:    &totalEpisodes,
		})
	}

	return results, nil
}

// Snapshot pages through the user's list until the remote stops returning a
// next cursor or a cap is hit. Unlike the batch pipelines a page failure
// aborts the whole fetch; a partial list is not a useful snapshot.
func (e *Engine) Snapshot(ctx context.Context, sess *auth.Session, progress chan<- ProgressUpdate) ([]ListEntry, error) {
	if e.catalog == nil {
		return nil, fmt.Errorf("%w: catalog client not initialized", shared.ErrServiceUnavailable)
	}
	if _, err := sess.AccessToken(); err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Every(e.pace), 1)
	entries := make([]ListEntry, 0, e.pageSize)
	next := ""

	for page := 0; page < e.maxPages && len(entries) < e.maxItems; page++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		e.sendProgress(progress, fetchPageUpdate(page+1, e.maxPages, len(entries)))

		var result *mal.ListPage
		err := sess.WithRetry(ctx, func(token string) error {
			var fetchErr error
			result, fetchErr = e.catalog.ListPage(ctx, next, e.pageSize, token)
			return fetchErr
		})
		if err != nil {
			return nil, err
		}

		for _, d := range result.Data {
			if len(entries) >= e.maxItems {
				break
			}
			entries = append(entries, normalizeEntry(d.Node))
		}

		next = result.Paging.Next
		if next == "" {
			break
		}
	}

	e.sendProgress(progress, snapshotDoneUpdate(len(entries)))
	return entries, nil
}

// normalizeEntry coerces a raw list node into the snapshot shape: missing
// title becomes "Untitled", missing status "unknown", and absent numerics
// stay nil. A remote score of 0 means unscored and normalizes to nil.
func normalizeEntry(node mal.ListNode) ListEntry {
	entry := ListEntry{
		ID:            node.ID,
		Title:         node.Title,
		Status:        "unknown",
		TotalEpisodes: node.NumEpisodes,
	}
	if entry.Title == "" {
		entry.Title = "Untitled"
	}

	if ls := node.MyListStatus; ls != nil {
		if ls.Status != "" {
			entry.Status = ls.Status
		}
		entry.WatchedEpisodes = ls.NumEpisodesWatched
		if ls.Score != nil && *ls.Score != 0 {
			entry.Score = ls.Score
		}
		if ls.UpdatedAt != "" {
			updatedAt := ls.UpdatedAt
			entry.UpdatedAt = &updatedAt
		}
	}

	return entry
}
