package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/taxops/einvoicing-system/internal/model"
	"github.com/taxops/einvoicing-system/internal/reference"
	"github.com/taxops/einvoicing-system/internal/repository"
	"github.com/taxops/einvoicing-system/internal/scenario"
	"github.com/taxops/einvoicing-system/internal/submission"
	"github.com/taxops/einvoicing-system/internal/validation"
)

type stubRepo struct {
	saved    *model.Invoice
	saveErr  error
	getResp  *model.Invoice
	getErr   error
	listResp []model.Invoice

	progress map[string]*model.ScenarioProgress
}

func (r *stubRepo) Close() error { return nil }

func (r *stubRepo) SaveInvoice(_ context.Context, _ int64, inv *model.Invoice) error {
	r.saved = inv
	return r.saveErr
}

func (r *stubRepo) GetInvoice(_ context.Context, _ string) (*model.Invoice, error) {
	return r.getResp, r.getErr
}

func (r *stubRepo) ListInvoices(_ context.Context, _ int64, _ model.InvoiceStatus, _, _ int) ([]model.Invoice, error) {
	return r.listResp, nil
}

func (r *stubRepo) ListScenarioProgress(_ context.Context, _ int64) ([]model.ScenarioProgress, error) {
	return nil, nil
}

func (r *stubRepo) GetScenarioProgress(_ context.Context, userID int64, scenarioID string) (*model.ScenarioProgress, error) {
	p, ok := r.progress[scenarioID]
	if !ok {
		return nil, repository.ErrProgressNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *stubRepo) UpsertScenarioProgress(_ context.Context, progress *model.ScenarioProgress) error {
	if r.progress == nil {
		r.progress = make(map[string]*model.ScenarioProgress)
	}
	copied := *progress
	r.progress[progress.ScenarioID] = &copied
	return nil
}

type stubValidator struct {
	report *model.Report
}

func (v *stubValidator) Validate(_ context.Context, _ *model.Invoice, _ validation.Options) *model.Report {
	return v.report
}

type stubOrchestrator struct {
	result *submission.Result
	calls  int
}

func (o *stubOrchestrator) Submit(_ context.Context, _ *model.Invoice, _ string, _ submission.Options) *submission.Result {
	o.calls++
	return o.result
}

type stubCatalog struct {
	configured  bool
	info        *reference.RateInfo
	err         error
	calls       int
	invalidated bool
}

func (c *stubCatalog) Configured() bool { return c.configured }

func (c *stubCatalog) RateFor(_ context.Context, _ string, _ reference.TransactionContext) (*reference.RateInfo, error) {
	c.calls++
	return c.info, c.err
}

func (c *stubCatalog) DefaultUnit(_ context.Context, _ string, _ reference.TransactionContext) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.info.DefaultUnit, nil
}

func (c *stubCatalog) ThirdScheduleEligible(_ context.Context, _ string, _ reference.TransactionContext) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	return c.info.ThirdSchedule, nil
}

func (c *stubCatalog) InvalidateCache() { c.invalidated = true }

func cleanReport() *model.Report {
	r := &model.Report{
		Findings: []model.Finding{
			{Field: "invoice", Severity: model.SeveritySuccess, Code: "REQUIRED_FIELDS_OK"},
		},
	}
	r.Summarize()
	return r
}

func blockedReport() *model.Report {
	r := &model.Report{
		Findings: []model.Finding{
			{Field: "items", Severity: model.SeverityError, Code: "NO_ITEMS"},
		},
	}
	r.Summarize()
	return r
}

func draftInvoice() *model.Invoice {
	return &model.Invoice{
		Reference:   "ref-1",
		Status:      model.InvoiceStatusDraft,
		InvoiceType: "Sale Invoice",
		InvoiceDate: "2025-06-01",
		SellerNTN:   "1234567",
		SellerName:  "Seller Co",
		BuyerNTN:    "7654321",
		BuyerName:   "Buyer Co",
		Lines: []model.InvoiceLine{
			{
				HSCode:    "8471",
				Quantity:  decimal.NewFromInt(1),
				UnitPrice: decimal.NewFromInt(100),
				TaxRate:   decimal.NewFromInt(18),
			},
		},
	}
}

func newTestService(repo *stubRepo, v *stubValidator, o *stubOrchestrator) *Service {
	return NewService(repo, v, o, scenario.NewTracker(repo), nil, "token", true, submission.Options{})
}

func newTestServiceWithCatalog(repo *stubRepo, catalog *stubCatalog) *Service {
	return NewService(repo, &stubValidator{report: cleanReport()}, &stubOrchestrator{}, scenario.NewTracker(repo), catalog, "token", true, submission.Options{})
}

func TestCreateInvoice_GeneratesReferenceAndTotals(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo, &stubValidator{report: cleanReport()}, &stubOrchestrator{})

	inv := draftInvoice()
	inv.Reference = ""

	created, err := svc.CreateInvoice(context.Background(), 1, inv)
	if err != nil {
		t.Fatalf("CreateInvoice error: %v", err)
	}
	if created.Reference == "" {
		t.Fatalf("reference must be generated")
	}
	if created.Status != model.InvoiceStatusDraft {
		t.Fatalf("Status = %q, want %q", created.Status, model.InvoiceStatusDraft)
	}
	if created.Totals.GrandTotal.String() != "118" {
		t.Fatalf("GrandTotal = %s, want 118", created.Totals.GrandTotal)
	}
	if repo.saved == nil {
		t.Fatalf("invoice must be persisted")
	}
}

func TestCreateInvoice_DefaultsLinesFromCatalog(t *testing.T) {
	repo := &stubRepo{}
	catalog := &stubCatalog{
		configured: true,
		info: &reference.RateInfo{
			Rate:          decimal.NewFromInt(18),
			DefaultUnit:   "PCE",
			ThirdSchedule: true,
			RetailPrice:   decimal.NewFromInt(150),
		},
	}
	svc := newTestServiceWithCatalog(repo, catalog)

	inv := draftInvoice()
	inv.Lines[0].TaxRate = decimal.Zero
	inv.Lines[0].UnitCode = ""
	inv.Lines[0].Quantity = decimal.NewFromInt(2)

	created, err := svc.CreateInvoice(context.Background(), 1, inv)
	if err != nil {
		t.Fatalf("CreateInvoice error: %v", err)
	}

	line := created.Lines[0]
	if line.TaxRate.String() != "18" {
		t.Fatalf("TaxRate = %s, want the catalog rate 18", line.TaxRate)
	}
	if line.UnitCode != "PCE" {
		t.Fatalf("UnitCode = %q, want the catalog default PCE", line.UnitCode)
	}
	if !line.ThirdSchedule {
		t.Fatalf("ThirdSchedule must be set from the catalog")
	}
	if line.RetailPrice.String() != "150" {
		t.Fatalf("RetailPrice = %s, want the notified price 150", line.RetailPrice)
	}
	// Third-schedule lines are taxed on retail price: 2 * 150 * 18% on top.
	if created.Totals.GrandTotal.String() != "354" {
		t.Fatalf("GrandTotal = %s, want 354", created.Totals.GrandTotal)
	}
}

func TestCreateInvoice_CallerValuesWinOverCatalog(t *testing.T) {
	repo := &stubRepo{}
	catalog := &stubCatalog{
		configured: true,
		info: &reference.RateInfo{
			Rate:          decimal.NewFromInt(18),
			DefaultUnit:   "PCE",
			ThirdSchedule: true,
			RetailPrice:   decimal.NewFromInt(150),
		},
	}
	svc := newTestServiceWithCatalog(repo, catalog)

	inv := draftInvoice()
	inv.Lines[0].TaxRate = decimal.NewFromInt(5)
	inv.Lines[0].UnitCode = "BOX"
	inv.Lines[0].RetailPrice = decimal.NewFromInt(120)

	created, err := svc.CreateInvoice(context.Background(), 1, inv)
	if err != nil {
		t.Fatalf("CreateInvoice error: %v", err)
	}

	line := created.Lines[0]
	if line.TaxRate.String() != "5" {
		t.Fatalf("TaxRate = %s, want the caller's 5", line.TaxRate)
	}
	if line.UnitCode != "BOX" {
		t.Fatalf("UnitCode = %q, want the caller's BOX", line.UnitCode)
	}
	if line.RetailPrice.String() != "120" {
		t.Fatalf("RetailPrice = %s, want the caller's 120", line.RetailPrice)
	}
	if !line.ThirdSchedule {
		t.Fatalf("eligibility still comes from the catalog")
	}
}

func TestCreateInvoice_CatalogErrorLeavesLineAsSubmitted(t *testing.T) {
	repo := &stubRepo{}
	catalog := &stubCatalog{configured: true, err: errors.New("catalog status 502")}
	svc := newTestServiceWithCatalog(repo, catalog)

	inv := draftInvoice()
	inv.Lines[0].TaxRate = decimal.Zero
	inv.Lines[0].UnitCode = ""

	created, err := svc.CreateInvoice(context.Background(), 1, inv)
	if err != nil {
		t.Fatalf("draft creation must not fail on catalog errors: %v", err)
	}
	if !created.Lines[0].TaxRate.IsZero() || created.Lines[0].UnitCode != "" {
		t.Fatalf("line must stay as submitted on lookup failure, got %+v", created.Lines[0])
	}
}

func TestCreateInvoice_UnconfiguredCatalogSkipsLookups(t *testing.T) {
	repo := &stubRepo{}
	catalog := &stubCatalog{configured: false}
	svc := newTestServiceWithCatalog(repo, catalog)

	if _, err := svc.CreateInvoice(context.Background(), 1, draftInvoice()); err != nil {
		t.Fatalf("CreateInvoice error: %v", err)
	}
	if catalog.calls != 0 {
		t.Fatalf("catalog.calls = %d, want 0 when unconfigured", catalog.calls)
	}
}

func TestRefreshCatalog(t *testing.T) {
	repo := &stubRepo{}
	catalog := &stubCatalog{configured: true}
	svc := newTestServiceWithCatalog(repo, catalog)

	svc.RefreshCatalog()
	if !catalog.invalidated {
		t.Fatalf("refresh must invalidate the catalog cache")
	}

	// A service without a catalog refreshes as a no-op.
	newTestService(repo, &stubValidator{report: cleanReport()}, &stubOrchestrator{}).RefreshCatalog()
}

func TestUpdateInvoice_DefaultsLinesFromCatalog(t *testing.T) {
	stored := draftInvoice()
	repo := &stubRepo{getResp: stored}
	catalog := &stubCatalog{
		configured: true,
		info: &reference.RateInfo{
			Rate:        decimal.NewFromInt(17),
			DefaultUnit: "KG",
		},
	}
	svc := newTestServiceWithCatalog(repo, catalog)

	inv := draftInvoice()
	inv.Lines[0].TaxRate = decimal.Zero
	inv.Lines[0].UnitCode = ""

	updated, err := svc.UpdateInvoice(context.Background(), 1, inv)
	if err != nil {
		t.Fatalf("UpdateInvoice error: %v", err)
	}
	if updated.Lines[0].TaxRate.String() != "17" {
		t.Fatalf("TaxRate = %s, want the catalog rate 17", updated.Lines[0].TaxRate)
	}
	if updated.Lines[0].UnitCode != "KG" {
		t.Fatalf("UnitCode = %q, want the catalog default KG", updated.Lines[0].UnitCode)
	}
}

func TestUpdateInvoice_RefusesSubmitted(t *testing.T) {
	stored := draftInvoice()
	stored.Status = model.InvoiceStatusSubmitted
	repo := &stubRepo{getResp: stored}
	svc := newTestService(repo, &stubValidator{report: cleanReport()}, &stubOrchestrator{})

	_, err := svc.UpdateInvoice(context.Background(), 1, draftInvoice())
	if !errors.Is(err, repository.ErrInvoiceSubmitted) {
		t.Fatalf("err = %v, want ErrInvoiceSubmitted", err)
	}
}

func TestSubmitInvoice_RefusedOnValidationErrors(t *testing.T) {
	repo := &stubRepo{getResp: draftInvoice()}
	orch := &stubOrchestrator{}
	svc := newTestService(repo, &stubValidator{report: blockedReport()}, orch)

	result, report, err := svc.SubmitInvoice(context.Background(), 1, "ref-1")
	if !errors.Is(err, ErrNotSubmittable) {
		t.Fatalf("err = %v, want ErrNotSubmittable", err)
	}
	if result != nil {
		t.Fatalf("result = %+v, want nil for refused submission", result)
	}
	if report == nil || report.Summary.Errors != 1 {
		t.Fatalf("refusal must carry the report, got %+v", report)
	}
	if orch.calls != 0 {
		t.Fatalf("orchestrator.calls = %d, want 0", orch.calls)
	}
}

func TestSubmitInvoice_RefusesAlreadySubmitted(t *testing.T) {
	stored := draftInvoice()
	stored.Status = model.InvoiceStatusSubmitted
	repo := &stubRepo{getResp: stored}
	svc := newTestService(repo, &stubValidator{report: cleanReport()}, &stubOrchestrator{})

	_, _, err := svc.SubmitInvoice(context.Background(), 1, "ref-1")
	if !errors.Is(err, repository.ErrInvoiceSubmitted) {
		t.Fatalf("err = %v, want ErrInvoiceSubmitted", err)
	}
}

func TestSubmitInvoice_ScenarioCompletedOnSuccess(t *testing.T) {
	inv := draftInvoice()
	inv.ScenarioID = "SN001"
	repo := &stubRepo{getResp: inv}
	orch := &stubOrchestrator{
		result: &submission.Result{
			Success:      true,
			Status:       model.InvoiceStatusSubmitted,
			AuthorityRef: "AUTH-1",
			RawResponse:  []byte(`{"invoiceNumber":"AUTH-1"}`),
		},
	}
	svc := newTestService(repo, &stubValidator{report: cleanReport()}, orch)

	result, _, err := svc.SubmitInvoice(context.Background(), 1, "ref-1")
	if err != nil {
		t.Fatalf("SubmitInvoice error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}

	progress := repo.progress["SN001"]
	if progress == nil {
		t.Fatalf("scenario progress must be recorded")
	}
	if progress.Status != model.ScenarioCompleted {
		t.Fatalf("scenario status = %q, want %q", progress.Status, model.ScenarioCompleted)
	}
	if progress.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", progress.Attempts)
	}
	if string(progress.LastResponse) != `{"invoiceNumber":"AUTH-1"}` {
		t.Fatalf("LastResponse = %s, want the authority body", progress.LastResponse)
	}
}

func TestSubmitInvoice_ScenarioFailedOnFailure(t *testing.T) {
	inv := draftInvoice()
	inv.ScenarioID = "SN001"
	repo := &stubRepo{getResp: inv}
	orch := &stubOrchestrator{
		result: &submission.Result{
			Status:  model.InvoiceStatusDraft,
			Failure: submission.FailureTransport,
			Message: "maximum retries exceeded",
		},
	}
	svc := newTestService(repo, &stubValidator{report: cleanReport()}, orch)

	result, _, err := svc.SubmitInvoice(context.Background(), 1, "ref-1")
	if err != nil {
		t.Fatalf("SubmitInvoice error: %v", err)
	}
	if result.Success {
		t.Fatalf("expected failed result")
	}

	progress := repo.progress["SN001"]
	if progress == nil {
		t.Fatalf("scenario progress must be recorded")
	}
	if progress.Status != model.ScenarioFailed {
		t.Fatalf("scenario status = %q, want %q", progress.Status, model.ScenarioFailed)
	}
}

func TestSubmitInvoice_NoScenarioSkipsTracking(t *testing.T) {
	repo := &stubRepo{getResp: draftInvoice()}
	orch := &stubOrchestrator{
		result: &submission.Result{Success: true, Status: model.InvoiceStatusSubmitted},
	}
	svc := newTestService(repo, &stubValidator{report: cleanReport()}, orch)

	if _, _, err := svc.SubmitInvoice(context.Background(), 1, "ref-1"); err != nil {
		t.Fatalf("SubmitInvoice error: %v", err)
	}
	if len(repo.progress) != 0 {
		t.Fatalf("progress = %+v, want no records without a scenario", repo.progress)
	}
}

func TestSubmitInvoice_CompletedScenarioBlocksResubmission(t *testing.T) {
	inv := draftInvoice()
	inv.ScenarioID = "SN001"
	repo := &stubRepo{
		getResp: inv,
		progress: map[string]*model.ScenarioProgress{
			"SN001": {UserID: 1, ScenarioID: "SN001", Status: model.ScenarioCompleted, Attempts: 1},
		},
	}
	orch := &stubOrchestrator{}
	svc := newTestService(repo, &stubValidator{report: cleanReport()}, orch)

	_, _, err := svc.SubmitInvoice(context.Background(), 1, "ref-1")
	if !errors.Is(err, scenario.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if orch.calls != 0 {
		t.Fatalf("orchestrator.calls = %d, want 0: completed scenarios are terminal", orch.calls)
	}
}
