// Package reference resolves tax rates, default units of measure and
// third-schedule eligibility from the remote reference catalog, with local
// caching.
package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
)

const (
	defaultCacheTTL  = 15 * time.Minute
	catalogRetryMax  = 3
	catalogWaitMin   = 200 * time.Millisecond
	catalogWaitMax   = 2 * time.Second
	catalogCallLimit = 5 * time.Second
)

// TransactionContext narrows a rate lookup to a concrete transaction.
type TransactionContext struct {
	Date      string
	BuyerType string
	Province  string
}

// RateInfo is the catalog answer for one HS code in one transaction context.
// RetailPrice is the notified retail price and is meaningful only when
// ThirdSchedule is set.
type RateInfo struct {
	Rate          decimal.Decimal `json:"rate"`
	DefaultUnit   string          `json:"defaultUoM"`
	ThirdSchedule bool            `json:"thirdSchedule"`
	RetailPrice   decimal.Decimal `json:"retailPrice"`
}

// CompatibilityResult is the catalog verdict on an HS code / unit pairing.
type CompatibilityResult struct {
	IsValid            bool   `json:"isValid"`
	RecommendedUnit    string `json:"recommendedUoM"`
	Message            string `json:"message"`
	IsCriticalMismatch bool   `json:"isCriticalMismatch"`
}

// Resolver queries the reference catalog service. Lookups are idempotent GETs;
// transient transport failures are retried by the underlying client.
type Resolver struct {
	baseURL string
	token   string
	http    *retryablehttp.Client
	cache   *cache
}

// NewResolver creates a resolver for the catalog at baseURL. An empty token
// leaves the resolver unconfigured: lookups fail and validation downgrades the
// unit-of-measure check to a skip warning.
func NewResolver(baseURL, token string) *Resolver {
	client := retryablehttp.NewClient()
	client.RetryMax = catalogRetryMax
	client.RetryWaitMin = catalogWaitMin
	client.RetryWaitMax = catalogWaitMax
	client.HTTPClient.Timeout = catalogCallLimit
	client.Logger = nil

	return &Resolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    client,
		cache:   newCache(defaultCacheTTL),
	}
}

// Configured reports whether the resolver holds a catalog credential.
func (r *Resolver) Configured() bool {
	return r != nil && r.baseURL != "" && r.token != ""
}

// RateFor returns the applicable tax rate, default unit and third-schedule
// eligibility for an HS code in the given transaction context.
func (r *Resolver) RateFor(ctx context.Context, hsCode string, txn TransactionContext) (*RateInfo, error) {
	key := fmt.Sprintf("rate:%s:%s:%s:%s", hsCode, txn.Date, txn.BuyerType, txn.Province)
	if cached, ok := r.cache.get(key); ok {
		return cached.(*RateInfo), nil
	}

	q := url.Values{}
	q.Set("hsCode", hsCode)
	q.Set("date", txn.Date)
	q.Set("buyerType", txn.BuyerType)
	q.Set("province", txn.Province)

	info := &RateInfo{}
	if err := r.getJSON(ctx, "/catalog/rates", q, info); err != nil {
		return nil, err
	}

	r.cache.set(key, info)
	return info, nil
}

// DefaultUnit returns the catalog's default unit of measure for an HS code.
func (r *Resolver) DefaultUnit(ctx context.Context, hsCode string, txn TransactionContext) (string, error) {
	info, err := r.RateFor(ctx, hsCode, txn)
	if err != nil {
		return "", err
	}
	return info.DefaultUnit, nil
}

// ThirdScheduleEligible reports whether an HS code is taxed on its notified
// retail price.
func (r *Resolver) ThirdScheduleEligible(ctx context.Context, hsCode string, txn TransactionContext) (bool, error) {
	info, err := r.RateFor(ctx, hsCode, txn)
	if err != nil {
		return false, err
	}
	return info.ThirdSchedule, nil
}

// CheckUnitCompatibility asks the catalog whether the chosen unit of measure
// is admissible for the HS code.
func (r *Resolver) CheckUnitCompatibility(ctx context.Context, hsCode, unit string) (*CompatibilityResult, error) {
	key := "uom:" + hsCode + ":" + unit
	if cached, ok := r.cache.get(key); ok {
		return cached.(*CompatibilityResult), nil
	}

	q := url.Values{}
	q.Set("hsCode", hsCode)
	q.Set("uoM", unit)

	result := &CompatibilityResult{}
	if err := r.getJSON(ctx, "/catalog/uom/compatibility", q, result); err != nil {
		return nil, err
	}

	r.cache.set(key, result)
	return result, nil
}

// InvalidateCache drops all cached catalog answers.
func (r *Resolver) InvalidateCache() {
	r.cache.invalidate()
}

func (r *Resolver) getJSON(ctx context.Context, endpoint string, query url.Values, result any) error {
	if !r.Configured() {
		return fmt.Errorf("reference catalog not configured")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog status %d for %s", resp.StatusCode, endpoint)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode catalog response: %w", err)
	}

	return nil
}
