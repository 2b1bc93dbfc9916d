package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/rmtj/malup/internal/auth"
	"github.com/rmtj/malup/internal/mal"
	"github.com/rmtj/malup/internal/shared"
	"github.com/rmtj/malup/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config    *shared.Config
	client    *mal.Client
	sessions  *auth.SessionStore
	verifiers *auth.VerifierStore
	pipeline  tasks.Pipeline
	logger    *log.Logger
	output    io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config    *shared.Config
	Client    *mal.Client
	Sessions  *auth.SessionStore
	Verifiers *auth.VerifierStore
	Pipeline  tasks.Pipeline
	Logger    *log.Logger
	Output    io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Verifiers == nil {
		opts.Verifiers = auth.NewVerifierStore(auth.DefaultVerifierTTL)
	}

	return &Runner{
		config:    opts.Config,
		client:    opts.Client,
		sessions:  opts.Sessions,
		verifiers: opts.Verifiers,
		pipeline:  opts.Pipeline,
		logger:    opts.Logger,
		output:    opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, authCommand, previewCommand, updateCommand, listCommand, configCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// requireClient returns the configured MAL client or an error when credentials are missing.
func (r *Runner) requireClient() (*mal.Client, error) {
	if r.client == nil {
		return nil, fmt.Errorf("%w: set mal.client_id in config.toml or MAL_CLIENT_ID", shared.ErrMissingCredentials)
	}
	return r.client, nil
}

// requirePipeline returns the catalog pipeline or an error when credentials are missing.
func (r *Runner) requirePipeline() (tasks.Pipeline, error) {
	if r.pipeline == nil {
		return nil, fmt.Errorf("%w: set mal.client_id in config.toml or MAL_CLIENT_ID", shared.ErrMissingCredentials)
	}
	return r.pipeline, nil
}

// session returns a cookie-less session for CLI use, falling back to
// the configured token pair when present.
func (r *Runner) session() *auth.Session {
	if r.sessions != nil {
		return r.sessions.Standalone()
	}
	return auth.NewSession(r.client, nil)
}

// drainProgress logs pipeline progress until the channel closes.
// The returned function blocks until draining finishes.
func (r *Runner) drainProgress(progress <-chan tasks.ProgressUpdate) func() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			if update.Total > 0 {
				r.logger.Infof("[%d/%d] %s", update.Step, update.Total, update.Message)
			} else {
				r.logger.Info(update.Message)
			}
		}
	}()
	return wg.Wait
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
