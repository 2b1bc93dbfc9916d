package main

import (
	"context"

	"github.com/rmtj/malup/internal/shared"
	"github.com/urfave/cli/v3"
)

// ConfigInit writes the starter configuration file.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	return r.writePlain("✓ Wrote %s\n", path)
}

// ConfigShow prints the effective configuration with credentials masked.
func (r *Runner) ConfigShow(ctx context.Context, cmd *cli.Command) error {
	masked := *r.config
	masked.MAL.ClientSecret = mask(masked.MAL.ClientSecret)
	masked.MAL.AccessToken = mask(masked.MAL.AccessToken)
	masked.MAL.RefreshToken = mask(masked.MAL.RefreshToken)
	return r.writeJSON(masked, true)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
