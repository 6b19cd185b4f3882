// Package handler contains the HTTP handlers of the e-invoicing API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/taxops/einvoicing-system/internal/middleware"
	"github.com/taxops/einvoicing-system/internal/model"
	"github.com/taxops/einvoicing-system/internal/repository"
	"github.com/taxops/einvoicing-system/internal/scenario"
	"github.com/taxops/einvoicing-system/internal/service"
	"github.com/taxops/einvoicing-system/internal/submission"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Service defines the pipeline operations used by the HTTP handlers.
type Service interface {
	CreateInvoice(ctx context.Context, userID int64, inv *model.Invoice) (*model.Invoice, error)
	UpdateInvoice(ctx context.Context, userID int64, inv *model.Invoice) (*model.Invoice, error)
	GetInvoice(ctx context.Context, reference string) (*model.Invoice, error)
	ListInvoices(ctx context.Context, userID int64, status model.InvoiceStatus, limit, offset int) ([]model.Invoice, error)
	ValidateInvoice(ctx context.Context, reference string, includeRemote bool) (*model.Report, error)
	SubmitInvoice(ctx context.Context, userID int64, reference string) (*submission.Result, *model.Report, error)
	ListScenarioProgress(ctx context.Context, userID int64) ([]model.ScenarioProgress, error)
	RefreshCatalog()
}

// Handler implements the HTTP API of the e-invoicing service.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler instance.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

// CreateInvoice accepts a new draft invoice for the current user.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var inv model.Invoice
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	created, err := h.service.CreateInvoice(r.Context(), userID, &inv)
	if err != nil {
		h.logger.Error("create invoice error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// UpdateInvoice replaces a draft invoice's content and recomputes totals.
func (h *Handler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var inv model.Invoice
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	inv.Reference = chi.URLParam(r, "ref")

	updated, err := h.service.UpdateInvoice(r.Context(), userID, &inv)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInvoiceNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrInvoiceSubmitted):
			http.Error(w, "submitted invoices are immutable", http.StatusConflict)
		default:
			h.logger.Error("update invoice error", zap.Error(err), zap.String("invoice", inv.Reference))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// GetInvoice returns one invoice with its lines and totals.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "ref")

	inv, err := h.service.GetInvoice(r.Context(), reference)
	if err != nil {
		if errors.Is(err, repository.ErrInvoiceNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get invoice error", zap.Error(err), zap.String("invoice", reference))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, inv)
}

// ListInvoices returns the current user's invoices, newest first.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	limit := queryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	status := model.InvoiceStatus(r.URL.Query().Get("status"))

	invoices, err := h.service.ListInvoices(r.Context(), userID, status, limit, offset)
	if err != nil {
		h.logger.Error("list invoices error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(invoices) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, invoices)
}

// ValidateInvoice runs the validation aggregate and returns the full report.
// ?remote=false skips the authority pre-validation call.
func (h *Handler) ValidateInvoice(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "ref")
	includeRemote := r.URL.Query().Get("remote") != "false"

	report, err := h.service.ValidateInvoice(r.Context(), reference, includeRemote)
	if err != nil {
		if errors.Is(err, repository.ErrInvoiceNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("validate invoice error", zap.Error(err), zap.String("invoice", reference))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

type submitResponse struct {
	Result *submission.Result `json:"result,omitempty"`
	Report *model.Report      `json:"report,omitempty"`
}

// SubmitInvoice validates and submits an invoice to the authority. A report
// with errors refuses the submission with 422; submission outcomes, including
// failures, come back as a typed result with 200.
func (h *Handler) SubmitInvoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	reference := chi.URLParam(r, "ref")

	result, report, err := h.service.SubmitInvoice(r.Context(), userID, reference)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInvoiceNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrInvoiceSubmitted):
			http.Error(w, "invoice already submitted", http.StatusConflict)
		case errors.Is(err, service.ErrNotSubmittable):
			writeJSON(w, http.StatusUnprocessableEntity, submitResponse{Report: report})
		case errors.Is(err, scenario.ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("submit invoice error", zap.Error(err), zap.String("invoice", reference))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{Result: result, Report: report})
}

// ListScenarioProgress returns the user's compliance-scenario checklist.
func (h *Handler) ListScenarioProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	progress, err := h.service.ListScenarioProgress(r.Context(), userID)
	if err != nil {
		h.logger.Error("list scenario progress error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(progress) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, progress)
}

// RefreshCatalog drops cached reference-catalog answers so the next lookups
// hit the catalog again.
func (h *Handler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetUserIDFromContext(r.Context()); !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	h.service.RefreshCatalog()
	w.WriteHeader(http.StatusNoContent)
}

// Health reports service liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
