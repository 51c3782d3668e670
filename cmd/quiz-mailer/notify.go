package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xavierca1/quiz-mailer/internal/infra/queue"
	"github.com/xavierca1/quiz-mailer/internal/usecase"
)

// newNotifyCmd publishes a lead.created event, e.g. to replay a lead by hand.
func newNotifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "notify <standard|hypothesis> <lead-id>",
		Short: "Publish a lead.created event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := usecase.LeadCreatedInput{LeadType: args[0], LeadID: args[1]}.ToLeadRef()
			if err != nil {
				return err
			}
			if opts.cfg.AMQP.URL == "" {
				return fmt.Errorf("AMQP_URL is not set")
			}

			mq, err := queue.NewRabbitMQ(opts.cfg.AMQP.URL)
			if err != nil {
				return err
			}
			defer mq.Close()

			var publisher queue.LeadEventPublisher = queue.NewProducer(mq.Ch)
			if err := publisher.PublishLeadCreated(cmd.Context(), ref); err != nil {
				return err
			}
			opts.logger.Info("lead event published", zap.Stringer("lead", ref))
			return nil
		},
	}
}
