package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xavierca1/quiz-mailer/internal/usecase"
)

type JobRunner interface {
	ReconcileOrphans(ctx context.Context) (usecase.ReconcileSummary, error)
	ResolvePending(ctx context.Context) (usecase.JobSummary, error)
	DeliverQueued(ctx context.Context) (usecase.JobSummary, error)
}

// JobHandler exposes each pipeline job as a POST trigger for external
// schedulers. Every invocation answers with the job summary.
type JobHandler struct {
	Jobs   JobRunner
	Logger *zap.Logger
}

func NewJobHandler(jobs JobRunner, logger *zap.Logger) *JobHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobHandler{Jobs: jobs, Logger: logger}
}

func (h *JobHandler) ReconcileOrphans(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Jobs.ReconcileOrphans(r.Context())
	h.respond(w, summary, err)
}

func (h *JobHandler) ResolvePending(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Jobs.ResolvePending(r.Context())
	h.respond(w, summary, err)
}

func (h *JobHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Jobs.DeliverQueued(r.Context())
	h.respond(w, summary, err)
}

func (h *JobHandler) respond(w http.ResponseWriter, summary any, err error) {
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func errorCode(err error) string {
	var domainErr *usecase.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	var techErr *usecase.TechnicalError
	if errors.As(err, &techErr) {
		return techErr.Code
	}
	return "INTERNAL"
}
