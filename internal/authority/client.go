// Package authority implements the HTTP client for the revenue authority's
// digital invoicing API and the static table of its error codes.
package authority

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// Environment selects the authority API base URL.
type Environment string

const (
	Sandbox    Environment = "https://gw.sandbox.rev.gov/di_data/v1/di"
	Production Environment = "https://gw.rev.gov/di_data/v1/di"
)

const (
	validateEndpoint = "/validateinvoicedata"
	submitEndpoint   = "/postinvoicedata"
)

// Client wraps the authority REST API.
type Client struct {
	rest    *resty.Client
	baseURL string
}

// New creates a client bound to the given environment.
func New(environment Environment) *Client {
	return NewWithBaseURL(string(environment))
}

// NewWithBaseURL creates a client against an explicit base URL. Used by tests
// and by deployments that front the authority with a local gateway.
func NewWithBaseURL(baseURL string) *Client {
	return &Client{
		rest:    resty.New(),
		baseURL: baseURL,
	}
}

// Validate posts the invoice to the authority's pre-validation endpoint.
func (c *Client) Validate(ctx context.Context, token string, payload *InvoicePayload) (*Response, error) {
	return c.post(ctx, validateEndpoint, token, payload)
}

// Submit posts the invoice to the authority's submission endpoint.
func (c *Client) Submit(ctx context.Context, token string, payload *InvoicePayload) (*Response, error) {
	return c.post(ctx, submitEndpoint, token, payload)
}

func (c *Client) post(ctx context.Context, endpoint, token string, payload *InvoicePayload) (*Response, error) {
	result := &Response{}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		SetResult(result).
		Post(c.baseURL + endpoint)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", endpoint, err)
	}

	if resp.IsError() {
		return nil, newRequestError(resp)
	}

	return result, nil
}

// RequestError carries a non-2xx authority response.
type RequestError struct {
	StatusCode   int
	Body         string
	ErrorDetails map[string]any
}

func (r *RequestError) Error() string {
	return fmt.Sprintf("authority request failed: status %d body %s", r.StatusCode, r.Body)
}

func newRequestError(resp *resty.Response) *RequestError {
	body := resp.String()

	var details map[string]any
	if body != "" {
		_ = json.Unmarshal([]byte(body), &details)
	}

	return &RequestError{
		StatusCode:   resp.StatusCode(),
		Body:         body,
		ErrorDetails: details,
	}
}
