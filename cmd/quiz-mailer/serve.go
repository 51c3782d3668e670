package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xavierca1/quiz-mailer/internal/infra/http/handlers"
	"github.com/xavierca1/quiz-mailer/internal/infra/queue"
	"github.com/xavierca1/quiz-mailer/internal/infra/worker"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the job scheduler and the lead event consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts, !noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "only serve HTTP triggers, leave scheduling to an external cron")
	return cmd
}

func serve(parent context.Context, opts *rootOptions, withScheduler bool) error {
	cfg, logger := opts.cfg, opts.logger

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		broker handlers.BrokerStatus
		mq     *queue.RabbitMQ
	)
	if cfg.AMQP.URL != "" {
		mq, err = queue.NewRabbitMQ(cfg.AMQP.URL)
		if err != nil {
			return err
		}
		defer mq.Close()
		broker = mq
	} else {
		logger.Info("AMQP_URL not set, lead events disabled; the orphan reconciler still covers new leads")
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Jobs:           handlers.NewJobHandler(a.jobs, logger),
		Status:         handlers.NewStatusHandler(a.status),
		Health:         handlers.NewHealthHandler(a.db, broker, version),
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var scheduler *worker.Scheduler
	if withScheduler {
		scheduler, err = worker.NewScheduler(a.jobs, worker.Schedule{
			ReconcileOrphans: cfg.Schedule.Reconcile,
			ResolvePending:   cfg.Schedule.Resolve,
			Deliver:          cfg.Schedule.Deliver,
		}, logger.Named("scheduler"))
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if scheduler != nil {
		g.Go(func() error { return scheduler.Start(ctx) })
	}

	if mq != nil {
		consumer := queue.NewWorker(mq.Ch, a.register, logger.Named("lead-events"))
		g.Go(func() error { return consumer.Start(ctx, queue.QueueName) })
	}

	return g.Wait()
}
