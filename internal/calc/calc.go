// Package calc computes invoice line amounts and running totals.
package calc

import (
	"github.com/shopspring/decimal"

	"github.com/taxops/einvoicing-system/internal/model"
)

var oneHundred = decimal.NewFromInt(100)

// ComputeLine fills the computed monetary fields of a line from its raw inputs.
// It is deterministic and performs no I/O; invalid inputs are rejected upstream
// by validation, never here.
//
// Standard lines: exclTax = quantity * unitPrice, tax = exclTax * rate / 100,
// total = exclTax + tax, each rounded half-up to 2 decimals.
// Third-schedule lines price off the fixed/notified retail price instead of
// unitPrice * quantity.
func ComputeLine(line model.InvoiceLine) model.InvoiceLine {
	base := line.Quantity.Mul(line.UnitPrice)
	if line.ThirdSchedule {
		base = line.RetailPrice.Mul(line.Quantity)
	}

	line.ExclTaxValue = round2(base)
	line.TaxAmount = round2(line.ExclTaxValue.Mul(line.TaxRate).Div(oneHundred))
	line.TotalAmount = line.ExclTaxValue.Add(line.TaxAmount)
	return line
}

// ComputeTotals folds the computed fields of all lines into running totals.
// Returns zero totals for an empty line set.
func ComputeTotals(lines []model.InvoiceLine) model.RunningTotals {
	totals := model.RunningTotals{
		ExclTaxTotal: decimal.Zero,
		TaxTotal:     decimal.Zero,
		GrandTotal:   decimal.Zero,
	}

	for _, line := range lines {
		totals.ItemCount++
		totals.ExclTaxTotal = totals.ExclTaxTotal.Add(line.ExclTaxValue)
		totals.TaxTotal = totals.TaxTotal.Add(line.TaxAmount)
		totals.GrandTotal = totals.GrandTotal.Add(line.TotalAmount)
	}

	return totals
}

// Recalculate recomputes every line and the running totals of an invoice in
// place. Called after any line add, edit, delete or reorder.
func Recalculate(inv *model.Invoice) {
	for i := range inv.Lines {
		inv.Lines[i] = ComputeLine(inv.Lines[i])
	}
	inv.Totals = ComputeTotals(inv.Lines)
}

// round2 rounds half-up to two decimal places.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
