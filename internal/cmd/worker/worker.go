// Package worker runs the index worker without the HTTP API, for deployments
// that scale indexing separately from request handling.
package worker

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chirino/weave-service/internal/cmd/serve"
	"github.com/chirino/weave-service/internal/config"
	"github.com/urfave/cli/v3"
)

// Command returns the worker sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "worker",
		Usage: "Drain the index queue until interrupted",
		Flags: serve.BackendFlags(&cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cfg.ApplyEnvOverrides(); err != nil {
				return err
			}
			ctx = config.WithContext(ctx, &cfg)
			backends, err := serve.OpenBackends(ctx, &cfg)
			if err != nil {
				return err
			}
			log.Info("Starting standalone index worker", "embedding", cfg.EmbedType, "vector", cfg.VectorType)
			backends.NewIndexWorker(&cfg).Start(ctx)
			return nil
		},
	}
}
