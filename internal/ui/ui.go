package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rmtj/malup/internal/auth"
	"github.com/rmtj/malup/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LoadingView ViewState = iota
	ListView
)

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	pipeline     tasks.Pipeline
	session      *auth.Session
	width        int
	height       int
	entryList    list.Model
	entries      []tasks.ListEntry
	progressChan chan tasks.ProgressUpdate
	resultChan   chan snapshotCompleteMsg
	progress     tasks.ProgressUpdate
	err          error
	help         help.Model
	keys         keyMap
}

type progressUpdateMsg tasks.ProgressUpdate

type snapshotCompleteMsg struct {
	entries []tasks.ListEntry
	err     error
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, pipeline tasks.Pipeline, session *auth.Session) *Model {
	return &Model{
		ctx:      ctx,
		view:     LoadingView,
		pipeline: pipeline,
		session:  session,
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init starts the snapshot fetch.
func (m *Model) Init() tea.Cmd {
	return m.startSnapshot()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.entryList.Width() != 0 {
			m.entryList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case LoadingView:
			if msg.String() == "q" || msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		case ListView:
			return m.handleListKeys(msg)
		}

	case progressUpdateMsg:
		m.progress = tasks.ProgressUpdate(msg)
		return m, m.waitForProgress()

	case snapshotCompleteMsg:
		m.err = msg.err
		m.entries = msg.entries
		m.progressChan = nil
		if msg.err != nil {
			return m, nil
		}

		items := make([]list.Item, len(msg.entries))
		for i, entry := range msg.entries {
			items[i] = entryItem{entry: entry}
		}
		m.entryList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.entryList.Title = fmt.Sprintf("My Anime List (%d entries)", len(msg.entries))
		m.entryList.SetSize(m.width-4, m.height-8)
		m.view = ListView
		return m, nil
	}

	if m.view == ListView {
		var cmd tea.Cmd
		m.entryList, cmd = m.entryList.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case LoadingView:
		return m.renderLoading()
	case ListView:
		return m.renderList()
	default:
		return ""
	}
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The list's own filter input owns the keyboard while active.
	if m.entryList.FilterState() != list.Filtering {
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.entryList, cmd = m.entryList.Update(msg)
	return m, cmd
}

func (m *Model) startSnapshot() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	resultChan := make(chan snapshotCompleteMsg, 1)

	progress := m.progressChan
	go func() {
		entries, err := m.pipeline.Snapshot(m.ctx, m.session, progress)
		resultChan <- snapshotCompleteMsg{entries: entries, err: err}
		close(progress)
	}()

	m.resultChan = resultChan
	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress := m.progressChan
	result := m.resultChan
	return func() tea.Msg {
		if progress == nil {
			return <-result
		}
		update, ok := <-progress
		if !ok {
			return <-result
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderLoading() string {
	title := styles.title.Render("Fetching your list")
	message := m.progress.Message
	if message == "" {
		message = "Contacting MyAnimeList..."
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, message, helpView)
}

func (m *Model) renderList() string {
	helpKeys := []key.Binding{m.keys.filter, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.entryList.View(), helpView)
}
