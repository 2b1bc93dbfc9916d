package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	SearchCatalog Phase = iota
	ApplyUpdates
	FetchList
)

func (p Phase) String() string {
	switch p {
	case SearchCatalog:
		return "search_catalog"
	case ApplyUpdates:
		return "apply_updates"
	case FetchList:
		return "fetch_list"
	default:
		return ""
	}
}

func searchShowUpdate(step, total int, title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SearchCatalog,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Searching: %s...", step, total, title),
	}
}

func skippedShowUpdate(step, total int, title, reason string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SearchCatalog,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, title, reason),
	}
}

func applyShowUpdate(step, total int, title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ApplyUpdates,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Updating: %s...", step, total, title),
	}
}

func appliedShowUpdate(step, total int, title, status string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ApplyUpdates,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%s)", step, total, title, status),
	}
}

func failedShowUpdate(step, total int, title string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ApplyUpdates,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, title, err),
	}
}

func fetchPageUpdate(page, maxPages, collected int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchList,
		Step:    page,
		Total:   maxPages,
		Message: fmt.Sprintf("Fetching list page %d/%d (%d entries so far)...", page, maxPages, collected),
	}
}

func snapshotDoneUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchList,
		Step:    count,
		Total:   count,
		Message: fmt.Sprintf("Fetched %d list entries", count),
	}
}
