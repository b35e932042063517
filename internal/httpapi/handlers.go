package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"fuelsync/backend/internal/domain"
	"fuelsync/backend/internal/service"
)

func (a *API) handleNozzleCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.NozzleCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	nozzle, err := a.service.CreateNozzle(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"nozzle": nozzle})
}

func (a *API) handleFuelPriceSet(w http.ResponseWriter, r *http.Request) {
	var req domain.FuelPriceRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	price, err := a.service.SetFuelPrice(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"price": price})
}

func (a *API) handleReadingCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.ReadingRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	reading, err := a.service.RecordReading(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"reading": reading})
}

func (a *API) handleReadingList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	readings, err := a.service.ListReadings(r.Context(), query.Get("station_id"), query.Get("date"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": readings})
}

func (a *API) handleTransactionCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	resp, err := a.service.CreateTransaction(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleTransactionGet(w http.ResponseWriter, r *http.Request) {
	tx, err := a.service.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleShiftStart(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftStartRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.StartShift(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleShiftEnd(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftEndRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.EndShift(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftActive(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GetActiveShift(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	shifts, err := a.service.ListShifts(
		r.Context(),
		query.Get("station_id"),
		query.Get("employee_id"),
		query.Get("status"),
		parsePositiveLimit(query.Get("limit"), 50, 200),
	)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shifts": shifts})
}

func (a *API) handleHandoverCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.HandoverCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.CreateHandover(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleHandoverConfirm(w http.ResponseWriter, r *http.Request) {
	var req domain.HandoverConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.ConfirmHandover(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleHandoverResolve(w http.ResponseWriter, r *http.Request) {
	var req domain.HandoverResolveRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.ResolveHandover(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleHandoverGet(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GetHandover(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleHandoverList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	handovers, err := a.service.ListHandovers(
		r.Context(),
		query.Get("station_id"),
		query.Get("status"),
		parsePositiveLimit(query.Get("limit"), 50, 200),
	)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"handovers": handovers})
}

func (a *API) handleCreditorCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.CreditorCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	creditor, err := a.service.CreateCreditor(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"creditor": creditor})
}

func (a *API) handleCreditorList(w http.ResponseWriter, r *http.Request) {
	creditors, err := a.service.ListCreditors(r.Context(), r.URL.Query().Get("station_id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"creditors": creditors})
}

func (a *API) handleCreditEntryList(w http.ResponseWriter, r *http.Request) {
	entries, err := a.service.ListCreditEntries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleCreditSettlement(w http.ResponseWriter, r *http.Request) {
	var req domain.CreditSettlementRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.RecordSettlement(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleSettlementReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	summary, err := a.service.SettlementReport(r.Context(), query.Get("station_id"), query.Get("from"), query.Get("to"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	logs, err := a.service.ListAuditLogs(
		r.Context(),
		query.Get("station_id"),
		query.Get("date"),
		parsePositiveLimit(query.Get("limit"), 100, 500),
	)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleUserList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListUsers(r.Context())})
}

func (a *API) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	actor, _ := service.ActorFromContext(r.Context())
	user, err := a.auth.CreateUser(r.Context(), actor, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}
