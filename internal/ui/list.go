package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/rmtj/malup/internal/tasks"
)

var _ list.Item = entryItem{}

// entryItem wraps [tasks.ListEntry] to implement [list.Item].
type entryItem struct {
	entry tasks.ListEntry
}

func (i entryItem) FilterValue() string { return i.entry.Title }
func (i entryItem) Title() string       { return i.entry.Title }
func (i entryItem) Description() string {
	desc := i.entry.Status
	if i.entry.WatchedEpisodes != nil || i.entry.TotalEpisodes != nil {
		desc = fmt.Sprintf("%s • %s/%s eps", desc, countOrDash(i.entry.WatchedEpisodes), countOrDash(i.entry.TotalEpisodes))
	}
	if i.entry.Score != nil {
		desc = fmt.Sprintf("%s • ★ %d", desc, *i.entry.Score)
	}
	return desc
}

func countOrDash(p *int) string {
	if p == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *p)
}
