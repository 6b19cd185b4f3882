package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIdentity(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUserID int64
	}{
		{
			name:       "valid user id",
			header:     "42",
			wantStatus: http.StatusOK,
			wantUserID: 42,
		},
		{
			name:       "missing header",
			header:     "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "non-numeric header",
			header:     "abc",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "zero user id",
			header:     "0",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "negative user id",
			header:     "-5",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUserID int64
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				userID, ok := GetUserIDFromContext(r.Context())
				if !ok {
					t.Fatalf("user id missing from context")
				}
				gotUserID = userID
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
			if tt.header != "" {
				req.Header.Set("X-User-ID", tt.header)
			}

			w := httptest.NewRecorder()
			Identity(next).ServeHTTP(w, req)

			if w.Result().StatusCode != tt.wantStatus {
				t.Fatalf("status: got %d want %d", w.Result().StatusCode, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && gotUserID != tt.wantUserID {
				t.Fatalf("user id: got %d want %d", gotUserID, tt.wantUserID)
			}
		})
	}
}

func TestGetUserIDFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := GetUserIDFromContext(req.Context()); ok {
		t.Fatalf("expected no user id in a bare context")
	}
}
