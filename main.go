package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/chirino/weave-service/internal/cmd/migrate"
	"github.com/chirino/weave-service/internal/cmd/serve"
	"github.com/chirino/weave-service/internal/cmd/worker"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "weave-service",
		Usage: "Memory weaving service: layered memories, a relation graph and hybrid search",
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
			worker.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
