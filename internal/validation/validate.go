package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/taxops/einvoicing-system/internal/authority"
	"github.com/taxops/einvoicing-system/internal/model"
	"github.com/taxops/einvoicing-system/internal/reference"
)

const (
	invoiceDateLayout = "2006-01-02"
	maxNameLength     = 100
)

// taxTolerance is the allowed rounding drift on recomputed tax amounts,
// in currency units.
var (
	taxTolerance = decimal.NewFromFloat(0.01)
	rateCeiling  = decimal.NewFromInt(100)
)

// UnitChecker is the slice of the reference resolver the unit-of-measure
// check needs.
type UnitChecker interface {
	Configured() bool
	CheckUnitCompatibility(ctx context.Context, hsCode, unit string) (*reference.CompatibilityResult, error)
}

// RemoteValidator is the slice of the authority client the remote
// pre-validation check needs.
type RemoteValidator interface {
	Validate(ctx context.Context, token string, payload *authority.InvoicePayload) (*authority.Response, error)
}

// Options controls a validation run.
type Options struct {
	// IncludeRemote enables the authority pre-validation call. On by default
	// at the service layer; tests and offline drafts turn it off.
	IncludeRemote bool
	// Token is the bearer credential for the authority call.
	Token string
}

// Aggregator runs every check on an invoice and merges the findings into one
// report. Checks never short-circuit: a report lists every problem at once.
type Aggregator struct {
	units    UnitChecker
	remote   RemoteValidator
	required *validator.Validate
}

// NewAggregator builds an aggregator over the given collaborators. Either may
// be nil: a nil unit checker downgrades the unit check to a skip warning, a
// nil remote validator disables remote pre-validation.
func NewAggregator(units UnitChecker, remote RemoteValidator) *Aggregator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Aggregator{
		units:    units,
		remote:   remote,
		required: v,
	}
}

// Validate runs the five local checks plus the optional remote check and
// returns the merged report.
func (a *Aggregator) Validate(ctx context.Context, inv *model.Invoice, opts Options) *model.Report {
	report := &model.Report{}

	report.Findings = append(report.Findings, a.checkRequiredFields(inv)...)
	report.Findings = append(report.Findings, a.checkFormats(inv)...)
	report.Findings = append(report.Findings, a.checkBusinessRules(inv)...)
	report.Findings = append(report.Findings, a.checkTaxAmounts(inv)...)
	report.Findings = append(report.Findings, a.checkUnits(ctx, inv)...)

	if opts.IncludeRemote && a.remote != nil {
		report.Findings = append(report.Findings, a.checkRemote(ctx, inv, opts.Token)...)
	}

	report.Summarize()
	return report
}

// checkRequiredFields verifies the non-empty invariants via struct tags.
func (a *Aggregator) checkRequiredFields(inv *model.Invoice) []model.Finding {
	err := a.required.Struct(inv)
	if err == nil {
		return []model.Finding{passed("invoice", "REQUIRED_FIELDS_OK", "all required fields present")}
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []model.Finding{{
			Field:    "invoice",
			Severity: model.SeverityError,
			Message:  fmt.Sprintf("required-field check failed: %v", err),
			Code:     "REQUIRED_FIELD_CHECK_FAILED",
		}}
	}

	var findings []model.Finding
	for _, fieldErr := range fieldErrs {
		findings = append(findings, model.Finding{
			Field:    fieldErr.Field(),
			Severity: model.SeverityError,
			Message:  fmt.Sprintf("%s is required", fieldErr.Field()),
			Code:     "REQUIRED_FIELD_MISSING",
		})
	}
	return findings
}

// checkFormats validates identifier, date and product code shapes.
func (a *Aggregator) checkFormats(inv *model.Invoice) []model.Finding {
	var findings []model.Finding

	findings = append(findings, checkIdentifier("sellerNTNCNIC", inv.SellerNTN)...)
	findings = append(findings, checkIdentifier("buyerNTNCNIC", inv.BuyerNTN)...)

	if inv.InvoiceDate != "" {
		parsed, err := time.Parse(invoiceDateLayout, inv.InvoiceDate)
		switch {
		case err != nil:
			findings = append(findings, model.Finding{
				Field:      "invoiceDate",
				Severity:   model.SeverityError,
				Message:    fmt.Sprintf("invoice date %q does not parse", inv.InvoiceDate),
				Code:       "INVALID_DATE",
				Suggestion: "use the YYYY-MM-DD format",
			})
		case parsed.After(time.Now()):
			findings = append(findings, model.Finding{
				Field:    "invoiceDate",
				Severity: model.SeverityWarning,
				Message:  "invoice date is in the future",
				Code:     "FUTURE_DATE",
			})
		}
	}

	for i, line := range inv.Lines {
		if line.HSCode != "" && !IsValidHSCode(line.HSCode) {
			findings = append(findings, model.Finding{
				Field:      lineField(i, "hsCode"),
				Severity:   model.SeverityError,
				Message:    fmt.Sprintf("product code %q must normalize to 2-8 digits", line.HSCode),
				Code:       "INVALID_HS_CODE",
				Suggestion: NormalizeHSCode(line.HSCode),
			})
		}
	}

	if len(findings) == 0 {
		findings = append(findings, passed("invoice", "FORMATS_OK", "identifier, date and product code formats valid"))
	}
	return findings
}

func checkIdentifier(field, id string) []model.Finding {
	if id == "" || IsValidIdentifier(id) {
		return nil
	}
	normalized := NormalizeIdentifier(id)
	return []model.Finding{{
		Field:      field,
		Severity:   model.SeverityError,
		Message:    fmt.Sprintf("identifier %q normalizes to %d digits; expected 7 (NTN) or 13 (CNIC)", id, len(normalized)),
		Code:       "INVALID_IDENTIFIER",
		Suggestion: normalized,
	}}
}

// precheckIdentifier guards the remote call. Unlike checkIdentifier it does
// not exempt empty values: zero digits is neither 7 nor 13, and the
// required-fields check already owns the missing-field message.
func precheckIdentifier(field, id string) []model.Finding {
	if IsValidIdentifier(id) {
		return nil
	}
	normalized := NormalizeIdentifier(id)
	msg := fmt.Sprintf("identifier %q normalizes to %d digits; expected 7 (NTN) or 13 (CNIC)", id, len(normalized))
	if id == "" {
		msg = "identifier is empty"
	}
	return []model.Finding{{
		Field:      field,
		Severity:   model.SeverityError,
		Message:    "remote validation not attempted: " + msg,
		Code:       "REMOTE_PRECHECK_FAILED",
		Suggestion: normalized,
	}}
}

// checkBusinessRules applies the cross-field rules: at least one line, a
// positive grand total, and bounded business-name lengths.
func (a *Aggregator) checkBusinessRules(inv *model.Invoice) []model.Finding {
	var findings []model.Finding

	if len(inv.Lines) == 0 {
		findings = append(findings, model.Finding{
			Field:    "items",
			Severity: model.SeverityError,
			Message:  "at least one item required",
			Code:     "NO_ITEMS",
		})
	} else if !inv.Totals.GrandTotal.IsPositive() {
		findings = append(findings, model.Finding{
			Field:    "totals.grandTotal",
			Severity: model.SeverityError,
			Message:  "invoice total must be greater than zero",
			Code:     "TOTAL_NOT_POSITIVE",
		})
	}

	names := []struct {
		field string
		value string
	}{
		{"sellerBusinessName", inv.SellerName},
		{"buyerBusinessName", inv.BuyerName},
	}
	for _, n := range names {
		field, name := n.field, n.value
		if len(name) > maxNameLength {
			findings = append(findings, model.Finding{
				Field:      field,
				Severity:   model.SeverityWarning,
				Message:    fmt.Sprintf("business name exceeds %d characters", maxNameLength),
				Code:       "NAME_TOO_LONG",
				Suggestion: name[:maxNameLength],
			})
		}
	}

	if len(findings) == 0 {
		findings = append(findings, passed("invoice", "BUSINESS_RULES_OK", "business rules satisfied"))
	}
	return findings
}

// checkTaxAmounts recomputes every line's tax and compares it to the stored
// amount within the rounding tolerance.
func (a *Aggregator) checkTaxAmounts(inv *model.Invoice) []model.Finding {
	var findings []model.Finding

	for i, line := range inv.Lines {
		if line.TaxRate.IsNegative() || line.TaxRate.GreaterThan(rateCeiling) {
			findings = append(findings, model.Finding{
				Field:    lineField(i, "rate"),
				Severity: model.SeverityError,
				Message:  fmt.Sprintf("tax rate %s%% outside [0, 100]", line.TaxRate),
				Code:     "RATE_OUT_OF_RANGE",
			})
		}
		if !line.Quantity.IsPositive() {
			findings = append(findings, model.Finding{
				Field:    lineField(i, "quantity"),
				Severity: model.SeverityError,
				Message:  "quantity must be greater than zero",
				Code:     "QUANTITY_NOT_POSITIVE",
			})
		}
		if line.UnitPrice.IsNegative() {
			findings = append(findings, model.Finding{
				Field:    lineField(i, "unitPrice"),
				Severity: model.SeverityError,
				Message:  "unit price must not be negative",
				Code:     "PRICE_NEGATIVE",
			})
		}

		base := line.Quantity.Mul(line.UnitPrice)
		if line.ThirdSchedule {
			base = line.RetailPrice.Mul(line.Quantity)
		}
		expected := base.Mul(line.TaxRate).Div(rateCeiling).Round(2)
		if expected.Sub(line.TaxAmount).Abs().GreaterThan(taxTolerance) {
			findings = append(findings, model.Finding{
				Field:      lineField(i, "salesTaxApplicable"),
				Severity:   model.SeverityError,
				Message:    fmt.Sprintf("tax amount %s differs from expected %s", line.TaxAmount.StringFixed(2), expected.StringFixed(2)),
				Code:       "TAX_MISMATCH",
				Suggestion: expected.StringFixed(2),
			})
		}
	}

	if len(findings) == 0 {
		findings = append(findings, passed("items", "TAX_AMOUNTS_OK", "tax amounts consistent with rates"))
	}
	return findings
}

// checkUnits asks the reference catalog whether each line's unit of measure
// fits its product code. Per-line lookups are independent; they are issued
// sequentially and merged in line order.
func (a *Aggregator) checkUnits(ctx context.Context, inv *model.Invoice) []model.Finding {
	if a.units == nil || !a.units.Configured() {
		return []model.Finding{{
			Field:    "items",
			Severity: model.SeverityWarning,
			Message:  "unit-of-measure validation skipped: no catalog credential configured",
			Code:     "UOM_CHECK_SKIPPED",
		}}
	}

	var findings []model.Finding
	for i, line := range inv.Lines {
		if line.HSCode == "" || line.UnitCode == "" {
			continue
		}

		result, err := a.units.CheckUnitCompatibility(ctx, NormalizeHSCode(line.HSCode), line.UnitCode)
		if err != nil {
			findings = append(findings, model.Finding{
				Field:    lineField(i, "uoM"),
				Severity: model.SeverityWarning,
				Message:  fmt.Sprintf("unit-of-measure check unavailable: %v", err),
				Code:     "UOM_CHECK_FAILED",
			})
			continue
		}
		if result.IsValid {
			continue
		}

		severity := model.SeverityWarning
		code := "UOM_MISMATCH"
		if result.IsCriticalMismatch {
			severity = model.SeverityError
			code = "UOM_CRITICAL_MISMATCH"
		}
		findings = append(findings, model.Finding{
			Field:      lineField(i, "uoM"),
			Severity:   severity,
			Message:    result.Message,
			Code:       code,
			Suggestion: result.RecommendedUnit,
		})
	}

	if len(findings) == 0 {
		findings = append(findings, passed("items", "UOM_OK", "units of measure compatible with product codes"))
	}
	return findings
}

// checkRemote submits the invoice to the authority's pre-validation endpoint
// and maps every returned error code through the static table. Identifiers are
// re-validated locally first: a payload that is guaranteed to be rejected is
// never sent over the network, and here a missing identifier counts as
// malformed too.
func (a *Aggregator) checkRemote(ctx context.Context, inv *model.Invoice, token string) []model.Finding {
	var prechecks []model.Finding
	prechecks = append(prechecks, precheckIdentifier("sellerNTNCNIC", inv.SellerNTN)...)
	prechecks = append(prechecks, precheckIdentifier("buyerNTNCNIC", inv.BuyerNTN)...)
	if len(prechecks) > 0 {
		return prechecks
	}

	resp, err := a.remote.Validate(ctx, token, authority.BuildPayload(inv))
	if err != nil {
		return []model.Finding{{
			Field:    "invoice",
			Severity: model.SeverityError,
			Message:  fmt.Sprintf("authority pre-validation failed: %v", err),
			Code:     "REMOTE_VALIDATION_FAILED",
		}}
	}

	codes := resp.ErrorCodes()
	if len(codes) == 0 {
		// The authority can reject with human-readable text and no machine
		// codes. That still blocks submission.
		if resp.Rejected() {
			return []model.Finding{{
				Field:    "invoice",
				Severity: model.SeverityError,
				Message:  fmt.Sprintf("authority pre-validation rejected the invoice: %s", resp.RejectionMessage()),
				Code:     "REMOTE_REJECTED",
			}}
		}
		return []model.Finding{passed("invoice", "REMOTE_OK", "authority pre-validation passed")}
	}

	findings := make([]model.Finding, 0, len(codes))
	for _, code := range codes {
		info, _ := authority.Lookup(code)
		severity := model.SeverityError
		if info.Severity == authority.CodeSeverityWarning {
			severity = model.SeverityWarning
		}
		findings = append(findings, model.Finding{
			Field:      info.Field,
			Severity:   severity,
			Message:    info.Message,
			Code:       code,
			Suggestion: info.Suggestion,
		})
	}
	return findings
}

func lineField(index int, name string) string {
	return fmt.Sprintf("items[%d].%s", index, name)
}

func passed(field, code, message string) model.Finding {
	return model.Finding{
		Field:    field,
		Severity: model.SeveritySuccess,
		Message:  message,
		Code:     code,
	}
}
