package reference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestRateFor_QueriesCatalogAndCaches(t *testing.T) {
	var hits atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/catalog/rates" {
			t.Fatalf("path = %s, want /catalog/rates", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer cat-token" {
			t.Fatalf("Authorization = %q, want bearer credential", got)
		}
		if got := r.URL.Query().Get("hsCode"); got != "8471" {
			t.Fatalf("hsCode = %q, want 8471", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rate":"18","defaultUoM":"EA","thirdSchedule":false}`))
	}))
	defer ts.Close()

	resolver := NewResolver(ts.URL, "cat-token")
	txn := TransactionContext{Date: "2025-06-01", BuyerType: "Registered", Province: "Punjab"}

	info, err := resolver.RateFor(context.Background(), "8471", txn)
	if err != nil {
		t.Fatalf("RateFor error: %v", err)
	}
	if info.Rate.String() != "18" {
		t.Fatalf("Rate = %s, want 18", info.Rate)
	}
	if info.DefaultUnit != "EA" {
		t.Fatalf("DefaultUnit = %q, want EA", info.DefaultUnit)
	}

	// Same lookup again: served from cache, no second request.
	if _, err := resolver.RateFor(context.Background(), "8471", txn); err != nil {
		t.Fatalf("cached RateFor error: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("catalog hits = %d, want 1", hits.Load())
	}

	// A different transaction context is a different cache key.
	txn.Province = "Sindh"
	if _, err := resolver.RateFor(context.Background(), "8471", txn); err != nil {
		t.Fatalf("RateFor with new context error: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("catalog hits = %d, want 2", hits.Load())
	}
}

func TestDefaultUnitAndThirdSchedule_ShareRateCache(t *testing.T) {
	var hits atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rate":"18","defaultUoM":"KG","thirdSchedule":true,"retailPrice":"120.00"}`))
	}))
	defer ts.Close()

	resolver := NewResolver(ts.URL, "cat-token")
	txn := TransactionContext{Date: "2025-06-01"}

	unit, err := resolver.DefaultUnit(context.Background(), "1905", txn)
	if err != nil {
		t.Fatalf("DefaultUnit error: %v", err)
	}
	if unit != "KG" {
		t.Fatalf("DefaultUnit = %q, want KG", unit)
	}

	eligible, err := resolver.ThirdScheduleEligible(context.Background(), "1905", txn)
	if err != nil {
		t.Fatalf("ThirdScheduleEligible error: %v", err)
	}
	if !eligible {
		t.Fatalf("ThirdScheduleEligible = false, want true")
	}

	info, err := resolver.RateFor(context.Background(), "1905", txn)
	if err != nil {
		t.Fatalf("RateFor error: %v", err)
	}
	if info.RetailPrice.StringFixed(2) != "120.00" {
		t.Fatalf("RetailPrice = %s, want 120.00", info.RetailPrice)
	}

	// All three lookups resolve through the same cached rate entry.
	if hits.Load() != 1 {
		t.Fatalf("catalog hits = %d, want 1", hits.Load())
	}
}

func TestCheckUnitCompatibility(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/catalog/uom/compatibility" {
			t.Fatalf("path = %s, want /catalog/uom/compatibility", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"isValid":false,"recommendedUoM":"KG","message":"unit not admissible for HS code","isCriticalMismatch":true}`))
	}))
	defer ts.Close()

	resolver := NewResolver(ts.URL, "cat-token")

	result, err := resolver.CheckUnitCompatibility(context.Background(), "0101", "EA")
	if err != nil {
		t.Fatalf("CheckUnitCompatibility error: %v", err)
	}
	if result.IsValid {
		t.Fatalf("IsValid = true, want false")
	}
	if !result.IsCriticalMismatch {
		t.Fatalf("IsCriticalMismatch = false, want true")
	}
	if result.RecommendedUnit != "KG" {
		t.Fatalf("RecommendedUnit = %q, want KG", result.RecommendedUnit)
	}
}

func TestResolver_Unconfigured(t *testing.T) {
	tests := []struct {
		name     string
		resolver *Resolver
	}{
		{"nil resolver", nil},
		{"missing token", NewResolver("http://catalog.local", "")},
		{"missing base URL", NewResolver("", "token")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.resolver.Configured() {
				t.Fatalf("Configured() = true, want false")
			}
		})
	}

	resolver := NewResolver("", "")
	if _, err := resolver.RateFor(context.Background(), "8471", TransactionContext{}); err == nil {
		t.Fatalf("expected error from unconfigured resolver")
	}
}

func TestResolver_CatalogErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	resolver := NewResolver(ts.URL, "cat-token")

	if _, err := resolver.RateFor(context.Background(), "9999", TransactionContext{}); err == nil {
		t.Fatalf("expected error for catalog 404")
	}
}

func TestInvalidateCache(t *testing.T) {
	var hits atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rate":"18","defaultUoM":"EA"}`))
	}))
	defer ts.Close()

	resolver := NewResolver(ts.URL, "cat-token")
	txn := TransactionContext{Date: "2025-06-01"}

	if _, err := resolver.RateFor(context.Background(), "8471", txn); err != nil {
		t.Fatalf("RateFor error: %v", err)
	}
	resolver.InvalidateCache()
	if _, err := resolver.RateFor(context.Background(), "8471", txn); err != nil {
		t.Fatalf("RateFor after invalidate error: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("catalog hits = %d, want 2 after invalidation", hits.Load())
	}
}
