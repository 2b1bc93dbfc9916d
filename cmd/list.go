package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rmtj/malup/internal/formatter"
	"github.com/rmtj/malup/internal/tasks"
	"github.com/rmtj/malup/internal/ui"
	"github.com/urfave/cli/v3"
)

// List fetches the user's anime list and renders or exports it.
func (r *Runner) List(ctx context.Context, cmd *cli.Command) error {
	pipeline, err := r.requirePipeline()
	if err != nil {
		return err
	}
	sess := r.session()

	if cmd.Bool("ui") {
		model := ui.NewModel(ctx, pipeline, sess)
		if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
			return fmt.Errorf("failed to run TUI: %w", err)
		}
		return nil
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	wait := r.drainProgress(progress)
	entries, err := pipeline.Snapshot(ctx, sess, progress)
	close(progress)
	wait()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(entries, true)
	}

	format := cmd.String("format")
	if path := cmd.String("export"); path != "" {
		written, err := formatter.WriteExport(entries, format, path)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Exported %d entries to %s\n", len(entries), written)
	}

	data, err := formatter.Export(entries, format)
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}
