// Package model contains the domain entities of the e-invoicing service.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus describes the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusValidated InvoiceStatus = "VALIDATED"
	InvoiceStatusSubmitted InvoiceStatus = "SUBMITTED"
	InvoiceStatusRejected  InvoiceStatus = "REJECTED"
	InvoiceStatusAmbiguous InvoiceStatus = "AMBIGUOUS"
)

// InvoiceLine is one sellable item on an invoice.
type InvoiceLine struct {
	HSCode        string          `json:"hsCode"`
	Description   string          `json:"productDescription"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	UnitCode      string          `json:"uoM"`
	TaxRate       decimal.Decimal `json:"rate"`
	ExclTaxValue  decimal.Decimal `json:"valueSalesExcludingST"`
	TaxAmount     decimal.Decimal `json:"salesTaxApplicable"`
	TotalAmount   decimal.Decimal `json:"totalValues"`
	RetailPrice   decimal.Decimal `json:"fixedNotifiedValueOrRetailPrice"`
	SaleNote      string          `json:"saleNote,omitempty"`
	ThirdSchedule bool            `json:"thirdSchedule"`
}

// RunningTotals aggregates the computed fields of an invoice's lines.
// Derived on every line mutation, never persisted on its own.
type RunningTotals struct {
	ItemCount    int             `json:"itemCount"`
	ExclTaxTotal decimal.Decimal `json:"exclTaxTotal"`
	TaxTotal     decimal.Decimal `json:"taxTotal"`
	GrandTotal   decimal.Decimal `json:"grandTotal"`
}

// Invoice is a user-authored sales invoice before or after submission.
type Invoice struct {
	Reference    string        `json:"invoiceRef"`
	InvoiceType  string        `json:"invoiceType" validate:"required"`
	InvoiceDate  string        `json:"invoiceDate" validate:"required"`
	SellerNTN    string        `json:"sellerNTNCNIC" validate:"required"`
	SellerName   string        `json:"sellerBusinessName" validate:"required"`
	SellerProv   string        `json:"sellerProvince"`
	SellerAddr   string        `json:"sellerAddress"`
	BuyerNTN     string        `json:"buyerNTNCNIC" validate:"required"`
	BuyerName    string        `json:"buyerBusinessName" validate:"required"`
	BuyerProv    string        `json:"buyerProvince"`
	BuyerAddr    string        `json:"buyerAddress"`
	BuyerType    string        `json:"buyerRegistrationType"`
	ScenarioID   string        `json:"scenarioId,omitempty"`
	Lines        []InvoiceLine `json:"items"`
	Totals       RunningTotals `json:"totals"`
	Status       InvoiceStatus `json:"status"`
	AuthorityRef string        `json:"authorityRef,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	SubmittedAt  *time.Time    `json:"submittedAt,omitempty"`
}

// Severity classifies a validation finding.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Finding is a single validation result tied to a field path.
type Finding struct {
	Field      string   `json:"field"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Code       string   `json:"code"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// ReportSummary holds per-severity finding counts.
type ReportSummary struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Passed   int `json:"passed"`
}

// Report is the merged outcome of all validation checks on one invoice.
type Report struct {
	Findings []Finding     `json:"findings"`
	Summary  ReportSummary `json:"summary"`
	// IsValid is true when the report carries no error-severity findings.
	IsValid bool `json:"isValid"`
	// CanSubmit mirrors IsValid: warnings never block submission, errors do.
	CanSubmit bool `json:"canSubmit"`
}

// Summarize recounts findings per severity and derives the submit flags.
func (r *Report) Summarize() {
	s := ReportSummary{}
	for _, f := range r.Findings {
		switch f.Severity {
		case SeverityError:
			s.Errors++
		case SeverityWarning:
			s.Warnings++
		default:
			s.Passed++
		}
	}
	r.Summary = s
	r.IsValid = s.Errors == 0
	r.CanSubmit = s.Errors == 0
}

// ScenarioStatus describes progress of a user through one compliance scenario.
type ScenarioStatus string

const (
	ScenarioNotStarted ScenarioStatus = "not_started"
	ScenarioInProgress ScenarioStatus = "in_progress"
	ScenarioCompleted  ScenarioStatus = "completed"
	ScenarioFailed     ScenarioStatus = "failed"
)

// ScenarioProgress records the attempts of one user against one compliance scenario.
type ScenarioProgress struct {
	UserID        int64          `json:"userId"`
	ScenarioID    string         `json:"scenarioId"`
	Status        ScenarioStatus `json:"status"`
	Attempts      int            `json:"attempts"`
	LastResponse  []byte         `json:"lastResponse,omitempty"`
	LastAttemptAt time.Time      `json:"lastAttemptAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
}
