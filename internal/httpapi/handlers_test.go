package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelsync/backend/internal/domain"
	"fuelsync/backend/internal/metrics"
	"fuelsync/backend/internal/service"
	"fuelsync/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	reg := prometheus.NewRegistry()
	svc := service.New(repo, nil, service.Options{Metrics: metrics.New(reg)})
	auth := NewAuthManager(context.Background(), "test-secret-key-0123456789abcdef", time.Hour, repo)

	return New(svc, auth, Options{AllowedOrigin: "*", Gatherer: reg})
}

func login(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code, "login %s: %s", username, res.Body.String())

	var payload domain.LoginResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.NotEmpty(t, strings.TrimSpace(payload.AccessToken))
	return payload.AccessToken
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decodeBody[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out), res.Body.String())
	return out
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	res := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, res.Code)

	body := decodeBody[map[string]any](t, res)
	assert.Equal(t, true, body["ok"])
}

func TestHandleLogin(t *testing.T) {
	handler := newTestAPI(t).Handler()

	t.Run("success", func(t *testing.T) {
		token := login(t, handler, "manager", "manager123")
		res := doJSON(t, handler, http.MethodGet, "/api/v1/auth/me", token, nil)
		require.Equal(t, http.StatusOK, res.Code)
		body := decodeBody[map[string]string](t, res)
		assert.Equal(t, "manager", body["username"])
		assert.Equal(t, domain.RoleManager, body["role"])
	})

	t.Run("invalid credentials", func(t *testing.T) {
		res := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "manager", Password: "wrong"})
		assert.Equal(t, http.StatusUnauthorized, res.Code)
	})
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	handler := newTestAPI(t).Handler()

	for _, path := range []string{"/api/v1/readings", "/api/v1/shifts/active", "/api/v1/creditors"} {
		res := doJSON(t, handler, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, res.Code, path)
	}

	res := doJSON(t, handler, http.MethodGet, "/api/v1/readings", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestReadingAndTransactionFlow(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "employee", "employee123")

	res := doJSON(t, handler, http.MethodPost, "/api/v1/readings", token, map[string]any{
		"nozzle_id":     "n1",
		"reading_value": "100",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	created := decodeBody[struct {
		Reading domain.NozzleReading `json:"reading"`
	}](t, res)
	assert.Equal(t, "N1", created.Reading.NozzleID)
	assert.Equal(t, "9550.00", created.Reading.SaleValue.StringFixed(2))

	res = doJSON(t, handler, http.MethodPost, "/api/v1/readings", token, map[string]any{
		"nozzle_id":     "N1",
		"reading_value": "90",
	})
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Equal(t, "invalid_reading", decodeBody[map[string]any](t, res)["code"])

	txBody := map[string]any{
		"reading_ids": []string{created.Reading.ID},
		"payment_breakdown": map[string]string{
			"cash":   "9550",
			"online": "0",
			"credit": "0",
		},
		"idempotency_key": "till-1",
	}
	res = doJSON(t, handler, http.MethodPost, "/api/v1/transactions", token, txBody)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	first := decodeBody[domain.TransactionResponse](t, res)
	assert.False(t, first.Duplicate)

	res = doJSON(t, handler, http.MethodPost, "/api/v1/transactions", token, txBody)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	replay := decodeBody[domain.TransactionResponse](t, res)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, first.Transaction.ID, replay.Transaction.ID)

	res = doJSON(t, handler, http.MethodGet, "/api/v1/transactions/"+first.Transaction.ID, token, nil)
	require.Equal(t, http.StatusOK, res.Code)

	res = doJSON(t, handler, http.MethodGet, "/api/v1/transactions/tx-missing", token, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestBreakdownMismatchIsUnprocessable(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "employee", "employee123")

	res := doJSON(t, handler, http.MethodPost, "/api/v1/readings", token, map[string]any{"nozzle_id": "N1", "reading_value": "10"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	created := decodeBody[struct {
		Reading domain.NozzleReading `json:"reading"`
	}](t, res)

	res = doJSON(t, handler, http.MethodPost, "/api/v1/transactions", token, map[string]any{
		"reading_ids":       []string{created.Reading.ID},
		"payment_breakdown": map[string]string{"cash": "100"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Equal(t, "breakdown_mismatch", decodeBody[map[string]any](t, res)["code"])
}

func TestShiftEndpoints(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "employee", "employee123")

	res := doJSON(t, handler, http.MethodGet, "/api/v1/shifts/active", token, nil)
	require.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "no_active_shift", decodeBody[map[string]any](t, res)["code"])

	res = doJSON(t, handler, http.MethodPost, "/api/v1/shifts/start", token, map[string]any{"shift_type": "morning"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = doJSON(t, handler, http.MethodPost, "/api/v1/shifts/start", token, map[string]any{"shift_type": "morning"})
	require.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "shift_already_active", decodeBody[map[string]any](t, res)["code"])

	res = doJSON(t, handler, http.MethodPost, "/api/v1/shifts/end", token, map[string]any{"cash_collected": "0"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	closed := decodeBody[domain.ShiftResponse](t, res)
	assert.Equal(t, domain.ShiftStatusClosed, closed.Shift.Status)

	res = doJSON(t, handler, http.MethodGet, "/api/v1/shifts?status=closed", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	listed := decodeBody[struct {
		Shifts []domain.Shift `json:"shifts"`
	}](t, res)
	require.Len(t, listed.Shifts, 1)
	assert.Equal(t, closed.Shift.ID, listed.Shifts[0].ID)
}

func TestReportsAreManagerOnly(t *testing.T) {
	handler := newTestAPI(t).Handler()
	employee := login(t, handler, "employee", "employee123")
	manager := login(t, handler, "manager", "manager123")

	res := doJSON(t, handler, http.MethodGet, "/api/v1/reports/settlement", employee, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = doJSON(t, handler, http.MethodGet, "/api/v1/reports/settlement", manager, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	summary := decodeBody[domain.SettlementSummary](t, res)
	assert.Equal(t, "main-station", summary.StationID)

	res = doJSON(t, handler, http.MethodGet, "/api/v1/reports/settlement?from=2026-10-02&to=2026-10-01", manager, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
}

func TestCreditorSettlementEndpoints(t *testing.T) {
	handler := newTestAPI(t).Handler()
	manager := login(t, handler, "manager", "manager123")

	res := doJSON(t, handler, http.MethodPost, "/api/v1/creditors", manager, map[string]any{"name": "Fleet Co", "credit_limit": "5000"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	created := decodeBody[struct {
		Creditor domain.Creditor `json:"creditor"`
	}](t, res)

	res = doJSON(t, handler, http.MethodPost, "/api/v1/creditors/"+created.Creditor.ID+"/settlements", manager, map[string]any{"amount": "10"})
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Equal(t, "settlement_overpays", decodeBody[map[string]any](t, res)["code"])

	res = doJSON(t, handler, http.MethodGet, "/api/v1/creditors/"+created.Creditor.ID+"/entries", manager, nil)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestHandoverEndpoints(t *testing.T) {
	handler := newTestAPI(t).Handler()
	employee := login(t, handler, "employee", "employee123")
	manager := login(t, handler, "manager", "manager123")

	res := doJSON(t, handler, http.MethodPost, "/api/v1/handovers", employee, map[string]any{
		"to_user_id":      "manager",
		"handover_type":   "shift_collection",
		"expected_amount": "500",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	created := decodeBody[domain.HandoverResponse](t, res)
	path := "/api/v1/handovers/" + created.Handover.ID

	res = doJSON(t, handler, http.MethodPost, path+"/resolve", manager, map[string]any{"notes": "early"})
	require.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "handover_not_disputed", decodeBody[map[string]any](t, res)["code"])

	res = doJSON(t, handler, http.MethodPost, path+"/confirm", manager, map[string]any{"accept_as_is": true})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	confirmed := decodeBody[domain.HandoverResponse](t, res)
	assert.Equal(t, domain.HandoverStatusConfirmed, confirmed.Handover.Status)

	res = doJSON(t, handler, http.MethodPost, path+"/confirm", manager, map[string]any{"accept_as_is": true})
	require.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "already_confirmed", decodeBody[map[string]any](t, res)["code"])

	res = doJSON(t, handler, http.MethodGet, path, employee, nil)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestUserManagementIsOwnerOnly(t *testing.T) {
	handler := newTestAPI(t).Handler()
	owner := login(t, handler, "owner", "owner123")
	manager := login(t, handler, "manager", "manager123")

	res := doJSON(t, handler, http.MethodPost, "/api/v1/users", manager, map[string]any{"username": "attendant", "password": "attendant-pass"})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = doJSON(t, handler, http.MethodPost, "/api/v1/users", owner, map[string]any{"username": "attendant", "password": "attendant-pass"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = doJSON(t, handler, http.MethodPost, "/api/v1/users", owner, map[string]any{"username": "attendant", "password": "attendant-pass"})
	assert.Equal(t, http.StatusConflict, res.Code)

	token := login(t, handler, "attendant", "attendant-pass")
	res = doJSON(t, handler, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, domain.RoleEmployee, decodeBody[map[string]string](t, res)["role"])
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "employee", "employee123")

	res := doJSON(t, handler, http.MethodPost, "/api/v1/readings", token, map[string]any{"nozzle_id": "N2", "reading_value": "1010"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = doJSON(t, handler, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `fuelsync_readings_total{result="success"} 1`)
}

func TestUnknownRouteReturnsJSON(t *testing.T) {
	handler := newTestAPI(t).Handler()

	res := doJSON(t, handler, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Contains(t, res.Header().Get("Content-Type"), "application/json")
}
