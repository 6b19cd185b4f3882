package authority

// InvoicePayload is the wire shape the authority accepts on both the
// pre-validation and submission endpoints. All monetary fields are strings
// rounded to two decimals; rates are percentage strings ("18%").
type InvoicePayload struct {
	InvoiceType           string        `json:"invoiceType"`
	InvoiceDate           string        `json:"invoiceDate"`
	SellerNTNCNIC         string        `json:"sellerNTNCNIC"`
	SellerBusinessName    string        `json:"sellerBusinessName"`
	SellerProvince        string        `json:"sellerProvince"`
	SellerAddress         string        `json:"sellerAddress"`
	BuyerNTNCNIC          string        `json:"buyerNTNCNIC"`
	BuyerBusinessName     string        `json:"buyerBusinessName"`
	BuyerProvince         string        `json:"buyerProvince"`
	BuyerAddress          string        `json:"buyerAddress"`
	BuyerRegistrationType string        `json:"buyerRegistrationType"`
	InvoiceRefNo          string        `json:"invoiceRefNo"`
	ScenarioID            string        `json:"scenarioId,omitempty"`
	Items                 []ItemPayload `json:"items"`
}

// ItemPayload is one invoice line in the authority wire shape.
type ItemPayload struct {
	HSCode             string `json:"hsCode"`
	ProductDescription string `json:"productDescription"`
	Rate               string `json:"rate"`
	UOM                string `json:"uoM"`
	Quantity           string `json:"quantity"`
	ValueSalesExclST   string `json:"valueSalesExcludingST"`
	SalesTaxApplicable string `json:"salesTaxApplicable"`
	TotalValues        string `json:"totalValues"`
	FixedRetailPrice   string `json:"fixedNotifiedValueOrRetailPrice"`
	SalesTaxWithheld   string `json:"salesTaxWithheldAtSource"`
	ExtraTax           string `json:"extraTax"`
	FurtherTax         string `json:"furtherTax"`
	Discount           string `json:"discount"`
	SROScheduleNo      string `json:"sroScheduleNo"`
	SROItemSerialNo    string `json:"sroItemSerialNo"`
	SaleType           string `json:"saleType"`
}

// Response is the body returned by both authority endpoints. A submission
// success carries InvoiceNumber; a business rejection carries an Error or a
// ValidationResponse with per-item error codes; anything else is ambiguous.
type Response struct {
	InvoiceNumber      string              `json:"invoiceNumber,omitempty"`
	Dated              string              `json:"dated,omitempty"`
	Status             string              `json:"status,omitempty"`
	Error              string              `json:"error,omitempty"`
	ValidationResponse *ValidationResponse `json:"validationResponse,omitempty"`
}

// ValidationResponse is the structured rejection detail nested in a Response.
type ValidationResponse struct {
	StatusCode      string       `json:"statusCode"`
	Status          string       `json:"status"`
	ErrorCode       string       `json:"errorCode,omitempty"`
	Error           string       `json:"error,omitempty"`
	InvoiceStatuses []ItemStatus `json:"invoiceStatuses,omitempty"`
}

// ItemStatus is the per-line validation verdict inside a ValidationResponse.
type ItemStatus struct {
	ItemSNo    string `json:"itemSNo"`
	StatusCode string `json:"statusCode"`
	Status     string `json:"status"`
	ErrorCode  string `json:"errorCode,omitempty"`
	Error      string `json:"error,omitempty"`
}

const (
	// StatusCodeValid marks an accepted pre-validation verdict.
	StatusCodeValid = "00"
	// StatusCodeInvalid marks a rejected pre-validation verdict.
	StatusCodeInvalid = "01"
)

// ErrorCodes collects every authority error code present in the response,
// walking both the top-level and the per-item statuses.
func (r *Response) ErrorCodes() []string {
	if r.ValidationResponse == nil {
		return nil
	}

	var codes []string
	if r.ValidationResponse.ErrorCode != "" {
		codes = append(codes, r.ValidationResponse.ErrorCode)
	}
	for _, item := range r.ValidationResponse.InvoiceStatuses {
		if item.ErrorCode != "" {
			codes = append(codes, item.ErrorCode)
		}
	}
	return codes
}

// Accepted reports whether the response carries a positive indicator: an
// authority invoice number or a valid status code.
func (r *Response) Accepted() bool {
	if r.InvoiceNumber != "" {
		return true
	}
	if r.ValidationResponse != nil && r.ValidationResponse.StatusCode == StatusCodeValid {
		return true
	}
	return false
}

// RejectionMessage returns the human-readable rejection text of the response,
// falling back to a generic message when the body carries none.
func (r *Response) RejectionMessage() string {
	if r.Error != "" {
		return r.Error
	}
	if r.ValidationResponse != nil && r.ValidationResponse.Error != "" {
		return r.ValidationResponse.Error
	}
	return "authority rejected the invoice"
}

// Rejected reports whether the response carries an explicit error indicator.
func (r *Response) Rejected() bool {
	if r.Error != "" {
		return true
	}
	if r.ValidationResponse != nil && r.ValidationResponse.StatusCode == StatusCodeInvalid {
		return true
	}
	return false
}
