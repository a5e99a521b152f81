package http

import (
	"fmt"
	"net/http"

	"milkbook/internal/adapters"
	applog "milkbook/internal/log"
)

const degradedNotice = "Stored values could not be read. The month is shown empty; saving will overwrite it."

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "index.html", newIndexView(s.now(), s.price), nil)
}

// handleLedger materializes the selected month, opens an editing session and
// renders the grid partial.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	query := r.URL.Query()
	sel, err := ParseMonthParams(query, s.now())
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	price, err := s.parsePrice(query)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	sheet, err := s.ledger.Materialize(ctx, sel)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	sess := s.openSession(sheet, price)
	view := newLedgerView(sess.ID, sel, sheet.Records, price)
	resp := NewHTMXResponse()
	if sheet.Degraded() {
		logger.WarnContext(ctx, "Serving empty month",
			applog.FieldYear, sel.Year, applog.FieldMonth, sel.Month,
			applog.FieldSessionID, sess.ID, applog.FieldError, sheet.Warning)
		view.Warning = degradedNotice
		resp.TriggerWarningNotification("Storage unreachable")
	}

	logger.DebugContext(ctx, "Session opened",
		applog.FieldSessionID, sess.ID, applog.FieldYear, sel.Year, applog.FieldMonth, sel.Month)
	s.render(w, r, "ledger.html", view, resp)
}

// handleSaveLedger writes a submitted grid back to storage. An unedited grid
// is not written. On failure the submitted values are rendered again with an
// error so nothing typed is lost.
func (s *Server) handleSaveLedger(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	sess, ok := s.session(sanitizeInput(r.PostForm.Get("session")))
	if !ok {
		GoneError("Editing session expired. Reload the month.").Write(w)
		return
	}

	form, err := ParseLedgerForm(r.PostForm, sess.Selection, s.price)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	sess.UnitPrice = form.Price
	view := newLedgerView(sess.ID, sess.Selection, form.Records, form.Price)

	if !sess.Edited(form.Records) {
		view.Notice = "No changes to save."
		s.render(w, r, "ledger.html", view, NewHTMXResponse().TriggerNotification(NotificationInfo, view.Notice, 3000))
		return
	}

	stats, err := s.ledger.Reconcile(adapters.WithSessionID(ctx, sess.ID), form.Records)
	if err != nil {
		logger.ErrorContext(ctx, "Save failed",
			applog.FieldSessionID, sess.ID,
			applog.FieldYear, sess.Selection.Year, applog.FieldMonth, sess.Selection.Month,
			applog.FieldError, err)
		view.Error = "Could not save: " + err.Error()
		s.render(w, r, "ledger.html", view, NewHTMXResponse().TriggerErrorNotification("Save failed"))
		return
	}

	sess.Saved(form.Records)
	s.sessions.Set(sess.ID, sess)

	logger.InfoContext(ctx, "Ledger saved",
		applog.FieldSessionID, sess.ID,
		applog.FieldYear, sess.Selection.Year, applog.FieldMonth, sess.Selection.Month,
		applog.FieldUpdated, stats.Updated, applog.FieldAppended, stats.Appended)

	view.Notice = fmt.Sprintf("Saved: %d updated, %d added.", stats.Updated, stats.Appended)
	s.render(w, r, "ledger.html", view, NewHTMXResponse().
		TriggerLedgerSaved(sess.Selection, stats).
		TriggerSuccessNotification(view.Notice))
}

// handleTotals recomputes the totals of a submitted grid without saving it.
func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	sel, err := ParseMonthParams(r.PostForm, s.now())
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	form, err := ParseLedgerForm(r.PostForm, sel, s.price)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	totals := s.ledger.Total(form.Records, form.Price)
	s.render(w, r, "totals.html", newTotalsView(sel, totals), nil)
}
