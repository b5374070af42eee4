package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pdv/backend/internal/domain"
	"pdv/backend/internal/service"
	"pdv/backend/internal/store"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected allowed origin *, got %q", got)
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/pdv/checkout", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", res.Code)
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}

	// Another client is not affected.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.9:5000"
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a different client, got %d", res.Code)
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	res := httptest.NewRecorder()
	writeError(res, http.StatusInternalServerError, errors.New("pq: relation sales does not exist"))

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "relation") {
		t.Fatalf("expected generic message, got %s", res.Body.String())
	}
}

func TestStatusForMapsDomainErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", store.NotFoundf("product %s", "x"), http.StatusNotFound},
		{"inactive", store.Inactivef("product %s", "x"), http.StatusUnprocessableEntity},
		{"stock", &store.StockError{ProductID: "p", Requested: decimal.NewFromInt(2), Available: decimal.NewFromInt(1)}, http.StatusConflict},
		{"payment", &store.PaymentError{Required: decimal.NewFromInt(10), Received: decimal.NewFromInt(5)}, http.StatusPaymentRequired},
		{"empty cart", store.ErrEmptyCart, http.StatusUnprocessableEntity},
		{"quantity", store.InvalidQuantityf("bad"), http.StatusBadRequest},
		{"invalid", fmt.Errorf("%w: nope", store.ErrInvalidTransaction), http.StatusBadRequest},
		{"forbidden", service.ErrForbidden, http.StatusForbidden},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusFor(tc.err); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 50, 200); got != 200 {
		t.Fatalf("expected capped limit 200, got %d", got)
	}
	if got := parsePositiveLimit("", 50, 200); got != 50 {
		t.Fatalf("expected fallback limit 50, got %d", got)
	}
	if got := parsePositiveLimit("invalid", 50, 200); got != 50 {
		t.Fatalf("expected fallback on invalid input, got %d", got)
	}
}

func TestParseTimeParam(t *testing.T) {
	at, dateOnly, err := parseTimeParam("2026-03-01")
	if err != nil || at == nil || !dateOnly || at.Day() != 1 || at.Month() != 3 {
		t.Fatalf("expected plain date to parse, got %v %v %v", at, dateOnly, err)
	}
	at, dateOnly, err = parseTimeParam("2026-03-01T10:00:00-03:00")
	if err != nil || at == nil || dateOnly || at.Hour() != 13 {
		t.Fatalf("expected RFC3339 to parse into UTC, got %v %v %v", at, dateOnly, err)
	}
	if at, _, err := parseTimeParam(""); err != nil || at != nil {
		t.Fatalf("expected empty input to be nil, got %v %v", at, err)
	}
	if _, _, err := parseTimeParam("01/03/2026"); err == nil {
		t.Fatalf("expected unsupported layout to fail")
	}
}

func TestParseRangeExtendsPlainDateUpperBound(t *testing.T) {
	from, to, err := parseRange("2026-03-01", "2026-03-01")
	if err != nil {
		t.Fatalf("parse range: %v", err)
	}
	if !from.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from %v", from)
	}
	if !to.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected plain-date to to cover the whole day, got %v", to)
	}

	_, to, err = parseRange("", "2026-03-01T18:00:00Z")
	if err != nil || !to.Equal(time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected timestamp upper bound unchanged, got %v %v", to, err)
	}
}
