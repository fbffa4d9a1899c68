package cli

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/docuflow/docuflow/internal/repositories"
)

func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	}
}

func runMigrate(ctx context.Context) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	pool, err := repositories.NewPool(ctx, config.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repositories.Migrate(ctx, pool); err != nil {
		return err
	}

	log.Info().Msg("Database schema applied")
	return nil
}
