package main

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/xavierca1/quiz-mailer/internal/config"
	"github.com/xavierca1/quiz-mailer/internal/infra/database"
	"github.com/xavierca1/quiz-mailer/internal/infra/mail"
	"github.com/xavierca1/quiz-mailer/internal/infra/worker"
	"github.com/xavierca1/quiz-mailer/internal/usecase"
)

// app holds the wired pipeline shared by every command.
type app struct {
	db       *sql.DB
	register *usecase.RegisterNotificationUseCase
	status   *usecase.DeliveryStatusUseCase
	jobs     *worker.Jobs
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	db, err := database.NewDBConnection(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	leadRepo := database.NewLeadRepository(db)
	notificationRepo := database.NewPendingNotificationRepository(db)
	queueRepo := database.NewQueueRepository(db)
	auditRepo := database.NewAuditLogRepository(db)
	providerConfig := config.NewLayeredProviderLoader(database.NewSettingsRepository(db), cfg.ProviderDefaults())

	renderer, err := mail.NewTemplateRenderer()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load templates: %w", err)
	}

	register := usecase.NewRegisterNotificationUseCase(notificationRepo, logger.Named("register"))

	reconcile := usecase.NewReconcileOrphansUseCase(leadRepo, register, logger.Named("reconcile"))
	reconcile.Grace = cfg.Reconcile.Grace
	reconcile.Lookback = cfg.Reconcile.Lookback
	reconcile.BatchSize = cfg.Batch.Reconcile

	resolve := usecase.NewResolvePendingUseCase(notificationRepo, leadRepo, queueRepo, auditRepo,
		renderer, providerConfig, logger.Named("resolve"))
	resolve.Grace = cfg.Resolve.Grace
	resolve.BatchSize = cfg.Batch.Resolve

	deliver := usecase.NewDeliverQueuedUseCase(queueRepo, auditRepo, providerConfig, mail.NewTransport, logger.Named("deliver"))
	deliver.BatchSize = cfg.Batch.Deliver

	return &app{
		db:       db,
		register: register,
		status:   usecase.NewDeliveryStatusUseCase(notificationRepo, queueRepo, auditRepo),
		jobs:     worker.NewJobs(reconcile, resolve, deliver, logger),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

