package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rmtj/malup/internal/auth"
	"github.com/rmtj/malup/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve starts the HTTP server hosting the web UI and the pipeline API.
// The server runs until the context is canceled or an interrupt arrives,
// then drains in-flight requests before exiting.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	client, err := r.requireClient()
	if err != nil {
		return err
	}
	pipeline, err := r.requirePipeline()
	if err != nil {
		return err
	}
	if r.sessions == nil {
		r.sessions = auth.NewSessionStore(client, nil, auth.DefaultSessionTTL)
	}

	cfg := r.config.Server
	if host := cmd.String("host"); host != "" {
		cfg.Host = host
	}
	if port := cmd.Int("port"); port != 0 {
		cfg.Port = int(port)
	}
	if static := cmd.String("static"); static != "" {
		cfg.StaticDir = static
	}

	router := server.NewBasicRouter()
	router.Use(server.LoggingMiddleware(r.logger), server.SessionMiddleware(r.sessions))
	router.Handler(server.NewAuthHandler(client, r.verifiers, r.logger))
	router.Handler(server.NewPipelineHandler(pipeline, r.logger))
	router.Handle("GET", "/", server.NewStaticHandler(cfg.StaticDir))

	app := server.NewApp(cfg, router, r.logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r.logger.Infof("listening on http://%s", app.Addr())
	return app.Run(ctx)
}
