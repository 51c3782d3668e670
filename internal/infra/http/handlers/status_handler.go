package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xavierca1/quiz-mailer/internal/entity"
	"github.com/xavierca1/quiz-mailer/internal/usecase"
)

type DeliveryStatusReader interface {
	ForLead(ctx context.Context, ref entity.LeadRef) (*usecase.LeadEmailStatus, error)
	Failures(ctx context.Context, limit int) (*usecase.DeliveryFailures, error)
}

type StatusHandler struct {
	Status DeliveryStatusReader
}

func NewStatusHandler(status DeliveryStatusReader) *StatusHandler {
	return &StatusHandler{Status: status}
}

// HandleLeadEmails serves GET /leads/{leadType}/{leadID}/emails.
func (h *StatusHandler) HandleLeadEmails(w http.ResponseWriter, r *http.Request) {
	input := usecase.LeadCreatedInput{
		LeadType: chi.URLParam(r, "leadType"),
		LeadID:   chi.URLParam(r, "leadID"),
	}
	ref, err := input.ToLeadRef()
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, usecase.CodeInvalidInput, err.Error())
		return
	}

	status, err := h.Status.ForLead(r.Context(), ref)
	if err != nil {
		if usecase.IsDomainError(err) {
			writeErrorResponse(w, http.StatusBadRequest, errorCode(err), err.Error())
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, errorCode(err), "could not load delivery status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleFailures serves GET /emails/failures?limit=N.
func (h *StatusHandler) HandleFailures(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			writeErrorResponse(w, http.StatusBadRequest, usecase.CodeInvalidInput, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	failures, err := h.Status.Failures(r.Context(), limit)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, errorCode(err), "could not load failures")
		return
	}
	writeJSON(w, http.StatusOK, failures)
}
