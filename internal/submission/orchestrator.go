// Package submission drives the bounded-retry submission of a validated
// invoice to the authority and the durable recording of its outcome.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/taxops/einvoicing-system/internal/authority"
	"github.com/taxops/einvoicing-system/internal/model"
)

const (
	defaultMaxRetries     = 3
	defaultAttemptTimeout = 30 * time.Second

	backoffBase = 1 * time.Second
	backoffCap  = 10 * time.Second
)

// ErrSavedUpstream marks the one outcome that must never trigger a resubmit:
// the authority accepted the invoice but the local save failed.
var ErrSavedUpstream = errors.New("submitted upstream but failed to save locally")

// FailureClass tells the caller how a submission failed.
type FailureClass string

const (
	FailureNone FailureClass = ""
	// FailureValidation: structural precheck failed before any network call.
	// Caller error, not counted against the retry budget.
	FailureValidation FailureClass = "validation"
	// FailureRejected: transport accepted the request, authority business
	// logic rejected it. Not retried within this call.
	FailureRejected FailureClass = "authority-rejected"
	// FailureTransport: network or timeout failure after exhausting retries.
	FailureTransport FailureClass = "transport"
	// FailurePersistence: accepted upstream, local save failed.
	FailurePersistence FailureClass = "persistence"
)

// AmbiguousPolicy decides what to do with a response that carries neither an
// explicit error nor a positive indicator.
type AmbiguousPolicy string

const (
	// AmbiguousAccept treats an ambiguous response as success, logged for
	// follow-up.
	AmbiguousAccept AmbiguousPolicy = "accept"
	// AmbiguousManualReview surfaces ambiguous responses as a distinct state
	// requiring reconciliation instead of auto-succeeding.
	AmbiguousManualReview AmbiguousPolicy = "manual-review"
)

// Options bounds one submission call.
type Options struct {
	MaxRetries int
	Timeout    time.Duration
	Ambiguous  AmbiguousPolicy
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultAttemptTimeout
	}
	if o.Ambiguous == "" {
		o.Ambiguous = AmbiguousAccept
	}
	return o
}

// Result is the typed outcome of a submission call. Failures are returned
// here, never as panics or bare errors, so the caller can distinguish
// retryable from terminal outcomes.
type Result struct {
	Success      bool
	Status       model.InvoiceStatus
	Failure      FailureClass
	AuthorityRef string
	RawResponse  []byte
	Attempt      int
	IsTimeout    bool
	Message      string
}

// Submitter is the slice of the authority client the orchestrator needs.
type Submitter interface {
	Submit(ctx context.Context, token string, payload *authority.InvoicePayload) (*authority.Response, error)
}

// Store persists the terminal outcome of a submission, keyed by the invoice
// reference.
type Store interface {
	SaveSubmissionOutcome(ctx context.Context, reference string, status model.InvoiceStatus, authorityRef string, rawResponse []byte, submittedAt time.Time) error
}

// Orchestrator formats, submits and records invoices.
type Orchestrator struct {
	client Submitter
	store  Store
	logger *zap.Logger

	backoffBase time.Duration
	backoffCap  time.Duration
}

// NewOrchestrator wires an orchestrator over the authority client and the
// outcome store.
func NewOrchestrator(client Submitter, store Store, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		client:      client,
		store:       store,
		logger:      logger,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
	}
}

// Submit sends the invoice to the authority with bounded retries and a hard
// per-attempt timeout, then persists the outcome.
//
// Business-rule validation is the caller's responsibility; only structural
// preconditions are re-checked here, and their failure is not counted against
// the retry budget. The payload's reference number is stable across attempts
// so the authority can deduplicate.
func (o *Orchestrator) Submit(ctx context.Context, inv *model.Invoice, token string, opts Options) *Result {
	opts = opts.withDefaults()

	if msg := precheck(inv); msg != "" {
		return &Result{
			Status:  model.InvoiceStatusDraft,
			Failure: FailureValidation,
			Message: msg,
		}
	}

	payload := authority.BuildPayload(inv)

	var (
		attempt     int
		lastTimeout bool
		final       *Result
	)

	backoff := retry.WithMaxRetries(
		uint64(opts.MaxRetries-1),
		retry.WithCappedDuration(o.backoffCap, retry.NewExponential(o.backoffBase)),
	)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()

		resp, err := o.client.Submit(attemptCtx, token, payload)
		if err != nil {
			lastTimeout = errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
			o.logger.Warn("submission attempt failed",
				zap.String("invoice", inv.Reference),
				zap.Int("attempt", attempt),
				zap.Bool("timeout", lastTimeout),
				zap.Error(err))
			return retry.RetryableError(err)
		}

		final = o.classify(ctx, inv, resp, attempt, opts.Ambiguous)
		return nil
	})

	if final != nil {
		return final
	}

	// Retry budget exhausted on transport failures.
	msg := "maximum retries exceeded"
	if err != nil {
		msg = fmt.Sprintf("maximum retries exceeded: %v", err)
	}
	return &Result{
		Status:    model.InvoiceStatusDraft,
		Failure:   FailureTransport,
		Attempt:   attempt,
		IsTimeout: lastTimeout,
		Message:   msg,
	}
}

// classify interprets the authority response and persists terminal outcomes.
func (o *Orchestrator) classify(ctx context.Context, inv *model.Invoice, resp *authority.Response, attempt int, policy AmbiguousPolicy) *Result {
	raw, _ := json.Marshal(resp)

	// Explicit rejection: the transport accepted the request but business
	// logic refused the payload. Retrying the identical payload would fail
	// identically, so the caller decides what happens next.
	if resp.Rejected() {
		o.persist(ctx, inv.Reference, model.InvoiceStatusRejected, "", raw)
		return &Result{
			Status:      model.InvoiceStatusRejected,
			Failure:     FailureRejected,
			RawResponse: raw,
			Attempt:     attempt,
			Message:     resp.RejectionMessage(),
		}
	}

	status := model.InvoiceStatusSubmitted
	if !resp.Accepted() {
		// Neither an explicit error nor a positive indicator.
		o.logger.Warn("ambiguous authority response",
			zap.String("invoice", inv.Reference),
			zap.Int("attempt", attempt),
			zap.ByteString("body", raw))
		if policy == AmbiguousManualReview {
			o.persist(ctx, inv.Reference, model.InvoiceStatusAmbiguous, "", raw)
			return &Result{
				Status:      model.InvoiceStatusAmbiguous,
				RawResponse: raw,
				Attempt:     attempt,
				Message:     "authority response was neither success nor failure; manual reconciliation required",
			}
		}
	}

	if err := o.store.SaveSubmissionOutcome(ctx, inv.Reference, status, resp.InvoiceNumber, raw, time.Now()); err != nil {
		o.logger.Error("outcome persisted upstream but not locally",
			zap.String("invoice", inv.Reference),
			zap.Error(err))
		return &Result{
			Status:       status,
			Failure:      FailurePersistence,
			AuthorityRef: resp.InvoiceNumber,
			RawResponse:  raw,
			Attempt:      attempt,
			Message:      ErrSavedUpstream.Error(),
		}
	}

	return &Result{
		Success:      true,
		Status:       status,
		AuthorityRef: resp.InvoiceNumber,
		RawResponse:  raw,
		Attempt:      attempt,
	}
}

func (o *Orchestrator) persist(ctx context.Context, reference string, status model.InvoiceStatus, authorityRef string, raw []byte) {
	if err := o.store.SaveSubmissionOutcome(ctx, reference, status, authorityRef, raw, time.Now()); err != nil {
		o.logger.Error("save submission outcome", zap.String("invoice", reference), zap.Error(err))
	}
}

// precheck re-validates the structural preconditions. A non-empty return is
// the caller-error message.
func precheck(inv *model.Invoice) string {
	switch {
	case inv == nil:
		return "invoice is nil"
	case inv.Reference == "":
		return "invoice reference is empty"
	case inv.InvoiceType == "":
		return "invoice type is empty"
	case inv.InvoiceDate == "":
		return "invoice date is empty"
	case inv.SellerNTN == "" || inv.SellerName == "":
		return "seller identification is incomplete"
	case inv.BuyerNTN == "" || inv.BuyerName == "":
		return "buyer identification is incomplete"
	case len(inv.Lines) == 0:
		return "invoice has no items"
	}
	return ""
}
