package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xavierca1/quiz-mailer/internal/infra/database"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.cfg.RequireDatabase(); err != nil {
				return err
			}
			db, err := database.NewDBConnection(opts.cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := database.Migrate(db)
			if err != nil {
				return err
			}
			opts.logger.Info("migrations applied", zap.Uint("version", version))
			return nil
		},
	}
}
