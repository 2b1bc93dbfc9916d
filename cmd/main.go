package main

import (
	"context"
	"errors"
	"os"

	"github.com/rmtj/malup/internal/auth"
	"github.com/rmtj/malup/internal/mal"
	"github.com/rmtj/malup/internal/shared"
	"github.com/rmtj/malup/internal/tasks"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	var client *mal.Client
	var sessions *auth.SessionStore
	var pipeline tasks.Pipeline

	if c, err := mal.NewClient(config.MAL, nil); err == nil {
		client = c
		fallback := &auth.TokenSet{
			AccessToken:  config.MAL.AccessToken,
			RefreshToken: config.MAL.RefreshToken,
		}
		sessions = auth.NewSessionStore(client, fallback, auth.DefaultSessionTTL)
		pipeline = tasks.NewEngine(client, config.Pipeline)
	} else {
		logger.Debugf("catalog client unavailable: %v", err)
	}

	runner := NewRunner(RunnerOpts{
		Config:   config,
		Client:   client,
		Sessions: sessions,
		Pipeline: pipeline,
		Logger:   logger,
	})

	app := &cli.Command{
		Name:     "malup",
		Usage:    "Bulk-update your MyAnimeList from pasted show lists",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		err_ := errors.Unwrap(err)
		if errors.Is(err_, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		} else {
			logger.Fatalf("application error: %v", err)
		}
	}
}
