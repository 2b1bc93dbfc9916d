// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI is a browser for the user's remote anime list:
//  1. [LoadingView] : Monitor the paginated snapshot fetch in real time
//  2. [ListView] : Browse, filter, and inspect the fetched entries
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the pipeline engine, providing non-blocking status reporting during the fetch.
//
// Keyboard navigation uses vim-style bindings (j/k, /, esc, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
