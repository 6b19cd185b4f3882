package authority

import (
	"strings"

	"github.com/taxops/einvoicing-system/internal/model"
)

// moneyDefault is the documented default for authority-mandatory monetary
// fields the service does not compute.
const moneyDefault = "0"

// BuildPayload transforms a domain invoice into the authority wire shape:
// identifiers normalized to bare digits, rates rendered as percentage strings,
// every monetary field rounded to two decimals, and authority-mandatory fields
// the service keeps optional defaulted per the API documentation.
func BuildPayload(inv *model.Invoice) *InvoicePayload {
	payload := &InvoicePayload{
		InvoiceType:           inv.InvoiceType,
		InvoiceDate:           inv.InvoiceDate,
		SellerNTNCNIC:         digitsOnly(inv.SellerNTN),
		SellerBusinessName:    inv.SellerName,
		SellerProvince:        inv.SellerProv,
		SellerAddress:         inv.SellerAddr,
		BuyerNTNCNIC:          digitsOnly(inv.BuyerNTN),
		BuyerBusinessName:     inv.BuyerName,
		BuyerProvince:         inv.BuyerProv,
		BuyerAddress:          inv.BuyerAddr,
		BuyerRegistrationType: inv.BuyerType,
		InvoiceRefNo:          inv.Reference,
		ScenarioID:            inv.ScenarioID,
		Items:                 make([]ItemPayload, 0, len(inv.Lines)),
	}

	for _, line := range inv.Lines {
		item := ItemPayload{
			HSCode:             digitsOnly(line.HSCode),
			ProductDescription: line.Description,
			Rate:               line.TaxRate.String() + "%",
			UOM:                line.UnitCode,
			Quantity:           line.Quantity.String(),
			ValueSalesExclST:   line.ExclTaxValue.StringFixed(2),
			SalesTaxApplicable: line.TaxAmount.StringFixed(2),
			TotalValues:        line.TotalAmount.StringFixed(2),
			FixedRetailPrice:   moneyDefault,
			SalesTaxWithheld:   moneyDefault,
			ExtraTax:           moneyDefault,
			FurtherTax:         moneyDefault,
			Discount:           moneyDefault,
			SROScheduleNo:      "",
			SROItemSerialNo:    "",
			SaleType:           "Goods at standard rate (default)",
		}
		if line.ThirdSchedule {
			item.FixedRetailPrice = line.RetailPrice.StringFixed(2)
			item.SaleType = "Goods at notified retail price (3rd schedule)"
		}
		payload.Items = append(payload.Items, item)
	}

	return payload
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
