package web

import (
	"net/http"

	"receivables/internal/app"

	"github.com/shopspring/decimal"
)

// apiListFinancedInvoices handles GET /api/invoices/financed.
func (h *Handler) apiListFinancedInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.svc.ListFinancedInvoices(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	type response struct {
		Invoices any `json:"invoices"`
		Count    int `json:"count"`
	}
	writeJSON(w, response{Invoices: invoices, Count: len(invoices)})
}

// apiSetFinancingPlan handles PUT /api/invoices/{id}/financing-plan.
func (h *Handler) apiSetFinancingPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		MonthlyAmount decimal.Decimal `json:"monthly_amount"`
		DueDay        int             `json:"due_day"`
		StartDate     string          `json:"start_date"`
		Notes         string          `json:"notes"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	schedule, err := h.svc.SetFinancingPlan(r.Context(), app.SetPlanRequest{
		InvoiceID:     id,
		MonthlyAmount: body.MonthlyAmount,
		DueDay:        body.DueDay,
		StartDate:     body.StartDate,
		Notes:         body.Notes,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, schedule)
}

// apiRemoveFinancingPlan handles DELETE /api/invoices/{id}/financing-plan.
func (h *Handler) apiRemoveFinancingPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.RemoveFinancingPlan(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiRegenerateSchedule handles POST /api/invoices/{id}/schedule/regenerate.
func (h *Handler) apiRegenerateSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	schedule, err := h.svc.RegenerateSchedule(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, schedule)
}

// apiGetSchedule handles GET /api/invoices/{id}/schedule.
func (h *Handler) apiGetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	schedule, err := h.svc.GetSchedule(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, schedule)
}

// apiUpdateExpectedPayment handles PATCH /api/expected-payments/{id}.
func (h *Handler) apiUpdateExpectedPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Status      *string          `json:"status"`
		PaymentDate *string          `json:"payment_date"`
		AmountPaid  *decimal.Decimal `json:"amount_paid"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	slot, err := h.svc.UpdateExpectedPayment(r.Context(), app.UpdateSlotRequest{
		SlotID:      id,
		Status:      body.Status,
		PaymentDate: body.PaymentDate,
		AmountPaid:  body.AmountPaid,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, slot)
}

// apiRegenerateAll handles POST /api/schedules/regenerate.
func (h *Handler) apiRegenerateAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RegenerateAll(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}
