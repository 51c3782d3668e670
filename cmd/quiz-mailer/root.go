package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xavierca1/quiz-mailer/internal/config"
	"github.com/xavierca1/quiz-mailer/internal/infra/logging"
	"github.com/xavierca1/quiz-mailer/internal/infra/worker"
)

type rootOptions struct {
	configFile string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "quiz-mailer",
		Short:         "Result email pipeline for quiz leads",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Format, cfg.Log.Level)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = logger.With(zap.String("command", cmd.Name()))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "optional config file (yaml, json or toml)")

	cmd.AddCommand(
		newServeCmd(opts),
		newJobCmd(opts, "reconcile", worker.JobReconcileOrphans, "Register notifications for leads that have no email trace"),
		newJobCmd(opts, "resolve", worker.JobResolvePending, "Turn pending notifications into queued messages"),
		newJobCmd(opts, "deliver", worker.JobDeliver, "Send due queued messages"),
		newMigrateCmd(opts),
		newNotifyCmd(opts),
	)
	return cmd
}
