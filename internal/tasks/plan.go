package tasks

// List statuses applied to remote entries. StatusError marks a per-item
// failure in a results set, never a remote list state.
const (
	StatusWatching  = "watching"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Plan is the target list state computed for one show.
type Plan struct {
	WatchedEpisodes int
	Status          string
}

// ComputePlan derives the target status and watched-episode count from an
// optional explicit episode count and the show's total episode count.
//
// An explicit count below a known total means the user is mid-show; anything
// else, including no explicit count at all, means they finished it.
func ComputePlan(episodeCount *int, totalEpisodes int) Plan {
	if episodeCount != nil {
		status := StatusCompleted
		if totalEpisodes > 0 && *episodeCount < totalEpisodes {
			status = StatusWatching
		}
		return Plan{WatchedEpisodes: *episodeCount, Status: status}
	}
	return Plan{WatchedEpisodes: totalEpisodes, Status: StatusCompleted}
}
