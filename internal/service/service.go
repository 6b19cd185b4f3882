// Package service wires the compliance pipeline: calculation, validation,
// submission and scenario tracking.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taxops/einvoicing-system/internal/calc"
	"github.com/taxops/einvoicing-system/internal/model"
	"github.com/taxops/einvoicing-system/internal/reference"
	"github.com/taxops/einvoicing-system/internal/repository"
	"github.com/taxops/einvoicing-system/internal/scenario"
	"github.com/taxops/einvoicing-system/internal/submission"
	"github.com/taxops/einvoicing-system/internal/validation"
)

// ErrNotSubmittable is returned when submission is requested for an invoice
// whose validation report carries errors.
var ErrNotSubmittable = errors.New("invoice has validation errors")

// Repository is the data-access contract used by the service.
type Repository interface {
	Close() error
	SaveInvoice(ctx context.Context, userID int64, inv *model.Invoice) error
	GetInvoice(ctx context.Context, reference string) (*model.Invoice, error)
	ListInvoices(ctx context.Context, userID int64, status model.InvoiceStatus, limit, offset int) ([]model.Invoice, error)
	ListScenarioProgress(ctx context.Context, userID int64) ([]model.ScenarioProgress, error)
}

// Validator produces a merged validation report for an invoice.
type Validator interface {
	Validate(ctx context.Context, inv *model.Invoice, opts validation.Options) *model.Report
}

// Orchestrator submits a validated invoice to the authority.
type Orchestrator interface {
	Submit(ctx context.Context, inv *model.Invoice, token string, opts submission.Options) *submission.Result
}

// Catalog answers reference lookups used to default omitted line fields.
type Catalog interface {
	Configured() bool
	RateFor(ctx context.Context, hsCode string, txn reference.TransactionContext) (*reference.RateInfo, error)
	DefaultUnit(ctx context.Context, hsCode string, txn reference.TransactionContext) (string, error)
	ThirdScheduleEligible(ctx context.Context, hsCode string, txn reference.TransactionContext) (bool, error)
	InvalidateCache()
}

// Service implements the invoice compliance pipeline.
type Service struct {
	repo          Repository
	validator     Validator
	orchestrator  Orchestrator
	tracker       *scenario.Tracker
	catalog       Catalog
	token         string
	includeRemote bool
	submitOpts    submission.Options
}

// NewService assembles the pipeline from its collaborators. catalog may be
// nil; drafts then carry exactly the values the caller supplied.
func NewService(repo Repository, validator Validator, orchestrator Orchestrator, tracker *scenario.Tracker, catalog Catalog, token string, includeRemote bool, submitOpts submission.Options) *Service {
	return &Service{
		repo:          repo,
		validator:     validator,
		orchestrator:  orchestrator,
		tracker:       tracker,
		catalog:       catalog,
		token:         token,
		includeRemote: includeRemote,
		submitOpts:    submitOpts,
	}
}

// Close releases service resources.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CreateInvoice computes all derived fields of a new draft and persists it.
// The invoice reference is generated here and stays stable for the lifetime
// of the invoice, including across submission retries.
func (s *Service) CreateInvoice(ctx context.Context, userID int64, inv *model.Invoice) (*model.Invoice, error) {
	inv.Reference = uuid.NewString()
	inv.Status = model.InvoiceStatusDraft
	inv.CreatedAt = time.Now()
	s.applyCatalogDefaults(ctx, inv)
	calc.Recalculate(inv)

	if err := s.repo.SaveInvoice(ctx, userID, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// UpdateInvoice recomputes lines and totals and persists the draft. The
// repository refuses updates to submitted invoices.
func (s *Service) UpdateInvoice(ctx context.Context, userID int64, inv *model.Invoice) (*model.Invoice, error) {
	stored, err := s.repo.GetInvoice(ctx, inv.Reference)
	if err != nil {
		return nil, err
	}
	if stored.Status == model.InvoiceStatusSubmitted {
		return nil, fmt.Errorf("%w: %s", repository.ErrInvoiceSubmitted, inv.Reference)
	}

	inv.Status = model.InvoiceStatusDraft
	inv.CreatedAt = stored.CreatedAt
	s.applyCatalogDefaults(ctx, inv)
	calc.Recalculate(inv)

	if err := s.repo.SaveInvoice(ctx, userID, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// applyCatalogDefaults fills omitted line fields from the reference catalog:
// tax rate, unit of measure, third-schedule eligibility and the notified
// retail price. Caller-supplied values win over catalog defaults, and a failed
// lookup leaves the line as submitted so that validation reports the gap
// instead of a draft write failing.
func (s *Service) applyCatalogDefaults(ctx context.Context, inv *model.Invoice) {
	if s.catalog == nil || !s.catalog.Configured() {
		return
	}

	txn := reference.TransactionContext{
		Date:      inv.InvoiceDate,
		BuyerType: inv.BuyerType,
		Province:  inv.BuyerProv,
	}
	for i := range inv.Lines {
		line := &inv.Lines[i]
		if line.HSCode == "" {
			continue
		}

		if line.TaxRate.IsZero() {
			if info, err := s.catalog.RateFor(ctx, line.HSCode, txn); err == nil {
				line.TaxRate = info.Rate
			}
		}
		if line.UnitCode == "" {
			if unit, err := s.catalog.DefaultUnit(ctx, line.HSCode, txn); err == nil && unit != "" {
				line.UnitCode = unit
			}
		}
		if eligible, err := s.catalog.ThirdScheduleEligible(ctx, line.HSCode, txn); err == nil && eligible {
			line.ThirdSchedule = true
			if line.RetailPrice.IsZero() {
				if info, err := s.catalog.RateFor(ctx, line.HSCode, txn); err == nil {
					line.RetailPrice = info.RetailPrice
				}
			}
		}
	}
}

// RefreshCatalog drops cached catalog answers so subsequent lookups refetch.
// Used when the authority publishes a new rate notification mid-day.
func (s *Service) RefreshCatalog() {
	if s.catalog != nil {
		s.catalog.InvalidateCache()
	}
}

// GetInvoice loads one invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, reference string) (*model.Invoice, error) {
	return s.repo.GetInvoice(ctx, reference)
}

// ListInvoices returns invoice headers for a user.
func (s *Service) ListInvoices(ctx context.Context, userID int64, status model.InvoiceStatus, limit, offset int) ([]model.Invoice, error) {
	return s.repo.ListInvoices(ctx, userID, status, limit, offset)
}

// ValidateInvoice runs the full validation aggregate on a stored invoice and
// returns the report. includeRemote additionally calls the authority's
// pre-validation endpoint.
func (s *Service) ValidateInvoice(ctx context.Context, reference string, includeRemote bool) (*model.Report, error) {
	inv, err := s.repo.GetInvoice(ctx, reference)
	if err != nil {
		return nil, err
	}

	report := s.validator.Validate(ctx, inv, validation.Options{
		IncludeRemote: includeRemote && s.includeRemote,
		Token:         s.token,
	})
	return report, nil
}

// SubmitInvoice validates and submits an invoice, recording scenario progress
// around the attempt. The returned report accompanies a refused submission;
// the result is nil in that case.
func (s *Service) SubmitInvoice(ctx context.Context, userID int64, reference string) (result *submission.Result, report *model.Report, err error) {
	inv, err := s.repo.GetInvoice(ctx, reference)
	if err != nil {
		return nil, nil, err
	}
	if inv.Status == model.InvoiceStatusSubmitted {
		return nil, nil, fmt.Errorf("%w: %s", repository.ErrInvoiceSubmitted, reference)
	}

	report = s.validator.Validate(ctx, inv, validation.Options{
		IncludeRemote: s.includeRemote,
		Token:         s.token,
	})
	if !report.CanSubmit {
		return nil, report, ErrNotSubmittable
	}

	if inv.ScenarioID != "" {
		if _, err := s.tracker.Begin(ctx, userID, inv.ScenarioID); err != nil {
			return nil, report, err
		}
		// The tracker must reach a terminal state even when submission exits
		// through an error path, so the update runs deferred.
		defer func() {
			var raw []byte
			if result != nil {
				raw = result.RawResponse
			}
			if result != nil && result.Success {
				if trackErr := s.tracker.Complete(ctx, userID, inv.ScenarioID, raw); trackErr != nil && err == nil {
					err = trackErr
				}
				return
			}
			if trackErr := s.tracker.Fail(ctx, userID, inv.ScenarioID, raw); trackErr != nil && err == nil {
				err = trackErr
			}
		}()
	}

	result = s.orchestrator.Submit(ctx, inv, s.token, s.submitOpts)
	return result, report, err
}

// ListScenarioProgress returns the certification checklist for a user.
func (s *Service) ListScenarioProgress(ctx context.Context, userID int64) ([]model.ScenarioProgress, error) {
	return s.repo.ListScenarioProgress(ctx, userID)
}
