package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rmtj/malup/internal/shared"
	"github.com/rmtj/malup/internal/tasks"
	"github.com/urfave/cli/v3"
)

// readShowLines collects input lines from the file argument, or stdin when
// no file is given. Blank lines are dropped.
func (r *Runner) readShowLines(cmd *cli.Command) ([]string, error) {
	var raw []byte
	var err error

	if path := cmd.StringArg("file"); path != "" {
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
	} else {
		raw, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("%w: reading stdin: %v", shared.ErrInvalidInput, err)
		}
	}

	lines := []string{}
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no show lines to process", shared.ErrMissingArgument)
	}
	return lines, nil
}

// Preview resolves show lines against the catalog and prints the plan.
func (r *Runner) Preview(ctx context.Context, cmd *cli.Command) error {
	pipeline, err := r.requirePipeline()
	if err != nil {
		return err
	}
	lines, err := r.readShowLines(cmd)
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	wait := r.drainProgress(progress)
	planned, err := pipeline.Preview(ctx, r.session(), lines, progress)
	close(progress)
	wait()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(planned, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Planned updates (%d)", len(planned)))
	for _, item := range planned {
		r.writePlain("%s\n", formatPlanned(item))
	}
	return nil
}

// Update resolves show lines and applies the resulting plan to the list.
func (r *Runner) Update(ctx context.Context, cmd *cli.Command) error {
	pipeline, err := r.requirePipeline()
	if err != nil {
		return err
	}
	lines, err := r.readShowLines(cmd)
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	wait := r.drainProgress(progress)
	results, err := pipeline.Confirm(ctx, r.session(), nil, lines, progress)
	close(progress)
	wait()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(results, cmd.Bool("pretty"))
	}

	applied := 0
	r.writePlainHeader(fmt.Sprintf("Update results (%d)", len(results)))
	for _, res := range results {
		r.writePlain("%s\n", formatResult(res))
		if res.Error == "" {
			applied++
		}
	}
	r.writePlain("\n%d of %d applied\n", applied, len(results))
	return nil
}

func formatPlanned(item tasks.PlannedUpdate) string {
	name := item.MatchedTitle
	if name == "" {
		name = item.InputTitle
	}
	if name == "" {
		name = item.RawInput
	}
	if item.Error != "" {
		return fmt.Sprintf("✗ %s: %s", name, item.Error)
	}
	line := fmt.Sprintf("✓ %s → %s, %d/%d eps", name, item.PlannedStatus, item.PlannedEpisodes, item.TotalEpisodes)
	if item.PlannedScore != nil {
		line = fmt.Sprintf("%s, score %d", line, *item.PlannedScore)
	}
	return line
}

func formatResult(res tasks.UpdateResult) string {
	if res.Error != "" {
		return fmt.Sprintf("✗ %s: %s", res.Title, res.Error)
	}
	line := fmt.Sprintf("✓ %s → %s", res.Title, res.Status)
	if res.Episodes != nil && res.Total != nil {
		line = fmt.Sprintf("%s, %d/%d eps", line, *res.Episodes, *res.Total)
	}
	if res.Score != nil {
		line = fmt.Sprintf("%s, score %d", line, *res.Score)
	}
	return line
}
