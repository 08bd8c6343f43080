package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chirino/weave-service/internal/config"
	registrymigrate "github.com/chirino/weave-service/internal/registry/migrate"
	"github.com/urfave/cli/v3"

	// Import plugins to trigger init() registration of their migrators.
	_ "github.com/chirino/weave-service/internal/plugin/store/postgres"
	_ "github.com/chirino/weave-service/internal/plugin/vector/pgvector"
	_ "github.com/chirino/weave-service/internal/plugin/vector/qdrant"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database and vector store migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db-url",
				Sources:  cli.EnvVars("WEAVE_DB_URL", "DATABASE_URL"),
				Usage:    "Database connection URL",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "db-kind",
				Sources: cli.EnvVars("WEAVE_DB_KIND"),
				Usage:   "Store backend (postgres)",
				Value:   "postgres",
			},
			&cli.StringFlag{
				Name:    "vector-kind",
				Sources: cli.EnvVars("WEAVE_VECTOR_KIND"),
				Usage:   "Vector store (pgvector|qdrant)",
				Value:   "pgvector",
			},
			&cli.IntFlag{
				Name:    "embedding-dimension",
				Sources: cli.EnvVars("WEAVE_EMBEDDING_DIMENSION"),
				Usage:   "Embedding vector dimension",
				Value:   config.DefaultConfig().EmbeddingDimension,
			},
			&cli.StringFlag{
				Name:    "vector-qdrant-host",
				Sources: cli.EnvVars("WEAVE_VECTOR_QDRANT_HOST"),
				Usage:   "Qdrant host:port",
				Value:   "localhost:6334",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.DBURL = cmd.String("db-url")
			cfg.DatastoreType = cmd.String("db-kind")
			cfg.VectorType = cmd.String("vector-kind")
			cfg.EmbeddingDimension = int(cmd.Int("embedding-dimension"))
			cfg.QdrantHost = cmd.String("vector-qdrant-host")
			if err := cfg.ApplyEnvOverrides(); err != nil {
				return err
			}
			// This command exists to migrate; WEAVE_MIGRATE_AT_START only governs serve.
			cfg.MigrateAtStart = true
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...")
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
