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

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"fuelsync/backend/internal/domain"
	"fuelsync/backend/internal/settlement"
	"fuelsync/backend/internal/store"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	assert.Equal(t, "nosniff", res.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", res.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, res.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, res.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	assert.Equal(t, "req-42", res.Header().Get("X-Request-ID"))
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	body, _ := json.Marshal(domain.LoginRequest{Username: "owner", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		handler.ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
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

	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestNonJSONBodyRejected(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader("username=owner"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, res.Code)
}

func TestUnknownFieldsRejected(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "employee", "employee123")

	res := doJSON(t, handler, http.MethodPost, "/api/v1/readings", token, map[string]any{
		"nozzle_id":     "N1",
		"reading_value": "10",
		"price":         "1",
	})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestParsePositiveLimitCaps(t *testing.T) {
	assert.Equal(t, 200, parsePositiveLimit("9999", 50, 200))
	assert.Equal(t, 50, parsePositiveLimit("", 50, 200))
	assert.Equal(t, 50, parsePositiveLimit("invalid", 50, 200))
	assert.Equal(t, 50, parsePositiveLimit("-3", 50, 200))
	assert.Equal(t, 7, parsePositiveLimit(" 7 ", 50, 200))
}

func TestClassifyErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"forbidden", fmt.Errorf("%w: nope", domain.ErrForbidden), http.StatusForbidden, "forbidden"},
		{"not found", fmt.Errorf("nozzle N9: %w", store.ErrNotFound), http.StatusNotFound, "not_found"},
		{"no active shift", domain.ErrNoActiveShift, http.StatusNotFound, "no_active_shift"},
		{"shift already active", &domain.ShiftAlreadyActiveError{EmployeeID: "employee"}, http.StatusConflict, "shift_already_active"},
		{"resolved handover", domain.HandoverState("h-1", domain.HandoverStatusResolved), http.StatusConflict, "already_resolved"},
		{"pending handover", domain.HandoverState("h-1", domain.HandoverStatusPending), http.StatusConflict, "handover_not_disputed"},
		{"reading settled", domain.ErrReadingSettled, http.StatusConflict, "reading_settled"},
		{"conflict", store.ErrConflict, http.StatusConflict, "conflict"},
		{"invalid reading", &domain.InvalidReadingError{NozzleID: "N1", Entered: decimal.NewFromInt(1), Comparison: decimal.NewFromInt(2)}, http.StatusUnprocessableEntity, "invalid_reading"},
		{"missing price", &domain.MissingPriceError{StationID: "s", FuelType: "petrol", Date: "2026-10-01"}, http.StatusUnprocessableEntity, "missing_price"},
		{"credit limit", &domain.CreditLimitError{}, http.StatusUnprocessableEntity, "credit_limit_exceeded"},
		{"invalid input", fmt.Errorf("%w: bad date", domain.ErrInvalidInput), http.StatusUnprocessableEntity, "invalid_input"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code := classify(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestCreditLimitErrorCarriesWarnings(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", nil)
	res := httptest.NewRecorder()

	api.writeServiceError(res, req, &domain.CreditLimitError{Warnings: []domain.CreditLimitWarning{{
		CreditorID:  "crd-1",
		CreditLimit: decimal.NewFromInt(500),
		Outstanding: decimal.NewFromInt(800),
		Excess:      decimal.NewFromInt(300),
	}}})

	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	var body struct {
		Code     string                      `json:"code"`
		Warnings []domain.CreditLimitWarning `json:"warnings"`
	}
	assert.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "credit_limit_exceeded", body.Code)
	if assert.Len(t, body.Warnings, 1) {
		assert.Equal(t, "300", body.Warnings[0].Excess.String())
	}
}

func TestInternalErrorsStayGeneric(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings", nil)
	res := httptest.NewRecorder()

	api.writeServiceError(res, req, fmt.Errorf("query nozzle_readings: %w", errors.New("pq: relation does not exist")))

	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.NotContains(t, res.Body.String(), "nozzle_readings")
}

func TestHandoverStateErrorWrapsSettlementState(t *testing.T) {
	h, err := settlement.LoadHandover(domain.CashHandover{ID: "h-1", Status: domain.HandoverStatusConfirmed})
	if err != nil {
		t.Fatalf("load handover: %v", err)
	}
	status, code := classify(settlement.StateError(h))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_confirmed", code)
}
