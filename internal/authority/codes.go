package authority

import "fmt"

// Category groups authority error codes by the kind of problem they report.
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryValidation     Category = "validation"
	CategoryBusinessRule   Category = "business-rule"
	CategoryTaxCalculation Category = "tax-calculation"
	CategoryFormat         Category = "format"
	CategorySystem         Category = "system"
)

// CodeSeverity is the weight the authority assigns to a coded rejection.
type CodeSeverity string

const (
	CodeSeverityError   CodeSeverity = "error"
	CodeSeverityWarning CodeSeverity = "warning"
)

// ErrorCodeInfo describes one authority error code.
type ErrorCodeInfo struct {
	Message        string
	Severity       CodeSeverity
	Category       Category
	Field          string
	Suggestion     string
	RequiresAction bool
}

// Lookup resolves a code against the static table. Unknown codes return a
// generic error-severity entry so no authority rejection is ever silently
// dropped.
func Lookup(code string) (ErrorCodeInfo, bool) {
	info, ok := errorCodes[code]
	if !ok {
		return ErrorCodeInfo{
			Message:        fmt.Sprintf("unknown error %s reported by the authority", code),
			Severity:       CodeSeverityError,
			Category:       CategorySystem,
			RequiresAction: true,
		}, false
	}
	return info, true
}

// errorCodes is the authority's published error-code table. Versioned with the
// API: codes are append-only; retired codes keep their entries.
var errorCodes = map[string]ErrorCodeInfo{
	"0001": {Message: "Seller not registered for sales tax", Severity: CodeSeverityError, Category: CategoryAuthentication, Field: "sellerNTNCNIC", Suggestion: "Verify the seller registration number with the authority", RequiresAction: true},
	"0002": {Message: "Invalid buyer registration number or NTN/CNIC", Severity: CodeSeverityError, Category: CategoryValidation, Field: "buyerNTNCNIC", Suggestion: "Provide a 7-digit NTN or 13-digit CNIC", RequiresAction: true},
	"0003": {Message: "Provided date format is invalid", Severity: CodeSeverityError, Category: CategoryFormat, Field: "invoiceDate", Suggestion: "Use the YYYY-MM-DD date format", RequiresAction: true},
	"0005": {Message: "Invalid invoice type for this transaction", Severity: CodeSeverityError, Category: CategoryValidation, Field: "invoiceType", RequiresAction: true},
	"0006": {Message: "Invoice reference number already exists", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "invoiceRefNo", Suggestion: "Generate a new invoice reference", RequiresAction: true},
	"0007": {Message: "Sale type is not valid for the selected scenario", Severity: CodeSeverityError, Category: CategoryValidation, Field: "saleType", RequiresAction: true},
	"0008": {Message: "Sales tax not calculated according to rate", Severity: CodeSeverityError, Category: CategoryTaxCalculation, Field: "salesTaxApplicable", Suggestion: "Recompute tax as value x rate / 100", RequiresAction: true},
	"0009": {Message: "Buyer registration type missing or invalid", Severity: CodeSeverityError, Category: CategoryValidation, Field: "buyerRegistrationType", RequiresAction: true},
	"0010": {Message: "Seller business name is missing", Severity: CodeSeverityError, Category: CategoryValidation, Field: "sellerBusinessName", RequiresAction: true},
	"0011": {Message: "Buyer business name is missing", Severity: CodeSeverityError, Category: CategoryValidation, Field: "buyerBusinessName", RequiresAction: true},
	"0012": {Message: "Seller province is missing or invalid", Severity: CodeSeverityError, Category: CategoryValidation, Field: "sellerProvince", RequiresAction: true},
	"0013": {Message: "Buyer province is missing or invalid", Severity: CodeSeverityError, Category: CategoryValidation, Field: "buyerProvince", RequiresAction: true},
	"0018": {Message: "Sales tax withheld at source is required for this buyer type", Severity: CodeSeverityError, Category: CategoryTaxCalculation, Field: "salesTaxWithheldAtSource", RequiresAction: true},
	"0019": {Message: "HS code is missing or not recognised", Severity: CodeSeverityError, Category: CategoryValidation, Field: "hsCode", Suggestion: "Select an HS code from the published product catalogue", RequiresAction: true},
	"0020": {Message: "Rate field is missing or not a valid percentage", Severity: CodeSeverityError, Category: CategoryFormat, Field: "rate", Suggestion: "Format the rate as a percentage, e.g. 18%", RequiresAction: true},
	"0021": {Message: "Value of sales excluding sales tax is missing", Severity: CodeSeverityError, Category: CategoryValidation, Field: "valueSalesExcludingST", RequiresAction: true},
	"0022": {Message: "Sales tax applicable is missing", Severity: CodeSeverityError, Category: CategoryTaxCalculation, Field: "salesTaxApplicable", RequiresAction: true},
	"0023": {Message: "Total values field is missing", Severity: CodeSeverityError, Category: CategoryValidation, Field: "totalValues", RequiresAction: true},
	"0024": {Message: "Total values must equal excl-tax value plus sales tax", Severity: CodeSeverityError, Category: CategoryTaxCalculation, Field: "totalValues", Suggestion: "Recompute total as value + tax", RequiresAction: true},
	"0026": {Message: "Invoice date cannot be in the future", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "invoiceDate", RequiresAction: true},
	"0027": {Message: "Invoice date is older than the allowed filing window", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "invoiceDate", RequiresAction: true},
	"0028": {Message: "Unit of measurement is missing or invalid", Severity: CodeSeverityError, Category: CategoryValidation, Field: "uoM", Suggestion: "Use a unit of measure from the published catalogue", RequiresAction: true},
	"0029": {Message: "Unit of measurement does not match the HS code", Severity: CodeSeverityError, Category: CategoryValidation, Field: "uoM", Suggestion: "Use the unit recommended for this HS code", RequiresAction: true},
	"0030": {Message: "Quantity is missing or zero", Severity: CodeSeverityError, Category: CategoryValidation, Field: "quantity", RequiresAction: true},
	"0031": {Message: "Quantity cannot be negative", Severity: CodeSeverityError, Category: CategoryValidation, Field: "quantity", RequiresAction: true},
	"0032": {Message: "At least one invoice item is required", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "items", RequiresAction: true},
	"0033": {Message: "Duplicate item serial numbers on invoice", Severity: CodeSeverityError, Category: CategoryValidation, Field: "items", RequiresAction: true},
	"0034": {Message: "Fixed notified value or retail price required for third schedule item", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "fixedNotifiedValueOrRetailPrice", RequiresAction: true},
	"0035": {Message: "Retail price pricing not allowed for non third schedule item", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "fixedNotifiedValueOrRetailPrice", RequiresAction: true},
	"0036": {Message: "SRO schedule number required for the claimed concession", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "sroScheduleNo", RequiresAction: true},
	"0037": {Message: "SRO item serial number required for the claimed concession", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "sroItemSerialNo", RequiresAction: true},
	"0039": {Message: "Reduced rate not admissible for this HS code", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "rate", RequiresAction: true},
	"0041": {Message: "Extra tax not applicable for this sale type", Severity: CodeSeverityError, Category: CategoryTaxCalculation, Field: "extraTax", RequiresAction: true},
	"0042": {Message: "Further tax required for sale to unregistered buyer", Severity: CodeSeverityError, Category: CategoryTaxCalculation, Field: "furtherTax", RequiresAction: true},
	"0043": {Message: "Further tax not applicable for sale to registered buyer", Severity: CodeSeverityError, Category: CategoryTaxCalculation, Field: "furtherTax", RequiresAction: true},
	"0044": {Message: "Discount exceeds value of sales", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "discount", RequiresAction: true},
	"0046": {Message: "Zero rate not admissible without supporting SRO reference", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "rate", RequiresAction: true},
	"0050": {Message: "Credit note requires reference to the original invoice", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "invoiceRefNo", RequiresAction: true},
	"0051": {Message: "Credit note value must not exceed original invoice value", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "totalValues", RequiresAction: true},
	"0052": {Message: "Credit note filed outside the allowed revision window", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "invoiceDate", RequiresAction: true},
	"0053": {Message: "Debit note requires reference to the original invoice", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "invoiceRefNo", RequiresAction: true},
	"0054": {Message: "Original invoice referenced by note was not found", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "invoiceRefNo", RequiresAction: true},
	"0055": {Message: "Original invoice referenced by note already reversed", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "invoiceRefNo", RequiresAction: true},
	"0056": {Message: "Buyer and seller registration numbers must differ", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "buyerNTNCNIC", RequiresAction: true},
	"0057": {Message: "Seller registration is suspended", Severity: CodeSeverityError, Category: CategoryAuthentication, Field: "sellerNTNCNIC", Suggestion: "Contact the authority to restore the registration", RequiresAction: true},
	"0058": {Message: "Seller registration is blacklisted", Severity: CodeSeverityError, Category: CategoryAuthentication, Field: "sellerNTNCNIC", RequiresAction: true},
	"0060": {Message: "Provided security token is invalid", Severity: CodeSeverityError, Category: CategoryAuthentication, Suggestion: "Re-issue the integration token from the authority portal", RequiresAction: true},
	"0061": {Message: "Provided security token has expired", Severity: CodeSeverityError, Category: CategoryAuthentication, Suggestion: "Re-issue the integration token from the authority portal", RequiresAction: true},
	"0062": {Message: "Integration not enrolled for the selected environment", Severity: CodeSeverityError, Category: CategoryAuthentication, RequiresAction: true},
	"0063": {Message: "Sandbox scenario identifier is missing", Severity: CodeSeverityError, Category: CategoryValidation, Field: "scenarioId", RequiresAction: true},
	"0064": {Message: "Sandbox scenario identifier is not recognised", Severity: CodeSeverityError, Category: CategoryValidation, Field: "scenarioId", RequiresAction: true},
	"0070": {Message: "Invoice value exceeds the cash transaction limit for unregistered buyers", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "totalValues", RequiresAction: true},
	"0071": {Message: "CNIC required for unregistered buyer above value threshold", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "buyerNTNCNIC", RequiresAction: true},
	"0073": {Message: "Sale type does not match seller's registered business activity", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "saleType", RequiresAction: true},
	"0074": {Message: "Exempt sale requires an exemption SRO reference", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "sroScheduleNo", RequiresAction: true},
	"0077": {Message: "Steel sector invoice requires melt certificate reference", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "saleNote", RequiresAction: true},
	"0078": {Message: "Petroleum levy fields required for petroleum products", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "items", RequiresAction: true},
	"0079": {Message: "Provincial tax authority invoice not accepted on this endpoint", Severity: CodeSeverityError, Category: CategoryValidation, Field: "sellerProvince", RequiresAction: true},
	"0080": {Message: "Buyer NTN required for withholding agent sales", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "buyerNTNCNIC", RequiresAction: true},
	"0082": {Message: "Quantity precision exceeds allowed decimal places", Severity: CodeSeverityError, Category: CategoryFormat, Field: "quantity", RequiresAction: true},
	"0083": {Message: "Monetary values must be rounded to two decimal places", Severity: CodeSeverityError, Category: CategoryFormat, Field: "totalValues", Suggestion: "Round every monetary field to 2 decimals", RequiresAction: true},
	"0085": {Message: "Invoice payload exceeds the maximum item count", Severity: CodeSeverityError, Category: CategoryValidation, Field: "items", RequiresAction: true},
	"0086": {Message: "Description contains unsupported characters", Severity: CodeSeverityWarning, Category: CategoryFormat, Field: "productDescription", Suggestion: "Remove control or non-printable characters"},
	"0088": {Message: "Business name exceeds the recommended length", Severity: CodeSeverityWarning, Category: CategoryFormat, Field: "sellerBusinessName", Suggestion: "Shorten the business name to 100 characters"},
	"0090": {Message: "Address fields are recommended for audit traceability", Severity: CodeSeverityWarning, Category: CategoryValidation, Field: "sellerAddress"},
	"0091": {Message: "Buyer address is recommended for registered buyers", Severity: CodeSeverityWarning, Category: CategoryValidation, Field: "buyerAddress"},
	"0092": {Message: "Sale note is recommended for schedule-restricted items", Severity: CodeSeverityWarning, Category: CategoryValidation, Field: "saleNote"},
	"0095": {Message: "Submission received outside business hours; processing may be delayed", Severity: CodeSeverityWarning, Category: CategorySystem},
	"0096": {Message: "Authority reference lookup temporarily degraded", Severity: CodeSeverityWarning, Category: CategorySystem},
	"0098": {Message: "Duplicate submission detected and deduplicated by reference number", Severity: CodeSeverityWarning, Category: CategorySystem, Field: "invoiceRefNo"},
	"0099": {Message: "Internal processing error at the authority", Severity: CodeSeverityError, Category: CategorySystem, Suggestion: "Retry the submission later", RequiresAction: true},
	"0100": {Message: "Authority service temporarily unavailable", Severity: CodeSeverityError, Category: CategorySystem, Suggestion: "Retry the submission later", RequiresAction: true},
	"0101": {Message: "Request rejected by authority rate limiting", Severity: CodeSeverityError, Category: CategorySystem, Suggestion: "Reduce the submission rate and retry", RequiresAction: true},
	"0102": {Message: "Malformed JSON payload", Severity: CodeSeverityError, Category: CategoryFormat, RequiresAction: true},
	"0103": {Message: "Unsupported API version", Severity: CodeSeverityError, Category: CategorySystem, RequiresAction: true},
	"0104": {Message: "Payload schema validation failed", Severity: CodeSeverityError, Category: CategoryFormat, RequiresAction: true},
	"0105": {Message: "Registration number checksum failure", Severity: CodeSeverityError, Category: CategoryFormat, Field: "sellerNTNCNIC", RequiresAction: true},
	"0106": {Message: "Province code not in the published province catalogue", Severity: CodeSeverityError, Category: CategoryValidation, Field: "sellerProvince", Suggestion: "Use a province code from the published catalogue", RequiresAction: true},
	"0107": {Message: "HS code retired; use the successor classification", Severity: CodeSeverityError, Category: CategoryValidation, Field: "hsCode", Suggestion: "Consult the HS code successor table", RequiresAction: true},
	"0108": {Message: "Mixed provincial jurisdictions on a single invoice", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "items", RequiresAction: true},
	"0109": {Message: "Scenario already certified for this registration", Severity: CodeSeverityWarning, Category: CategoryBusinessRule, Field: "scenarioId"},
	"0110": {Message: "Sandbox data retention window exceeded; invoice purged", Severity: CodeSeverityWarning, Category: CategorySystem},
	"0111": {Message: "Withheld tax exceeds applicable sales tax", Severity: CodeSeverityError, Category: CategoryTaxCalculation, Field: "salesTaxWithheldAtSource", RequiresAction: true},
	"0112": {Message: "Extra tax must be zero for exempt sales", Severity: CodeSeverityError, Category: CategoryTaxCalculation, Field: "extraTax", RequiresAction: true},
	"0113": {Message: "Rate must be between 0% and 100%", Severity: CodeSeverityError, Category: CategoryTaxCalculation, Field: "rate", RequiresAction: true},
	"0114": {Message: "Computed tax differs from rate applied to excl-tax value", Severity: CodeSeverityError, Category: CategoryTaxCalculation, Field: "salesTaxApplicable", Suggestion: "Recompute tax as value x rate / 100", RequiresAction: true},
	"0115": {Message: "Invoice total must be greater than zero", Severity: CodeSeverityError, Category: CategoryBusinessRule, Field: "totalValues", RequiresAction: true},
	"0116": {Message: "Unregistered buyer type conflicts with provided NTN", Severity: CodeSeverityError, Category: CategoryValidation, Field: "buyerRegistrationType", RequiresAction: true},
	"0117": {Message: "Seller address province differs from declared seller province", Severity: CodeSeverityWarning, Category: CategoryValidation, Field: "sellerAddress"},
	"0118": {Message: "Invoice type not allowed for sandbox certification", Severity: CodeSeverityError, Category: CategoryValidation, Field: "invoiceType", RequiresAction: true},
}
