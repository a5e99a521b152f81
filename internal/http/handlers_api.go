package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"milkbook/internal/adapters"
	"milkbook/internal/core"
	applog "milkbook/internal/log"
	"milkbook/internal/services"
)

const maxAPIBody = 1 << 20

// SessionHeader optionally tags API writes with a client session id.
const SessionHeader = "X-Session-ID"

func (s *Server) handleAPILedger(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.apiMaterialize(w, r)
	case http.MethodPost:
		s.apiReconcile(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) apiMaterialize(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sel, err := ParseMonthParams(query, s.now())
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	price, err := s.parsePrice(query)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sheet, err := s.ledger.Materialize(r.Context(), sel)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := apiSheet{
		Year:      sel.Year,
		Month:     sel.Month,
		UnitPrice: price,
		Records:   sheet.Records,
		Totals:    newAPITotals(s.ledger.Total(sheet.Records, price)),
	}
	if sheet.Degraded() {
		out.Warning = sheet.Warning.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) apiReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req apiReconcileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAPIBody)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if id := sanitizeInput(r.Header.Get(SessionHeader)); id != "" {
		ctx = adapters.WithSessionID(ctx, id)
	}

	stats, err := s.ledger.Reconcile(ctx, req.Records)
	switch {
	case errors.Is(err, core.ErrInvalidDate), errors.Is(err, core.ErrInvalidQuantity):
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, services.ErrPersistFailure):
		applog.FromContext(ctx).ErrorContext(ctx, "API save failed",
			applog.FieldRecords, len(req.Records), applog.FieldError, err)
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	case err != nil:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, apiReconcileResponse{Updated: stats.Updated, Appended: stats.Appended})
}
