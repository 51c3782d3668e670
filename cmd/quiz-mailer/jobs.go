package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newJobCmd runs one job invocation and prints its JSON summary, so an
// external cron can drive the pipeline without the HTTP server.
func newJobCmd(opts *rootOptions, use, job, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.jobs.Run(ctx, job)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
}
