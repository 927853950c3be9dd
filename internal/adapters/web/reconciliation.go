package web

import (
	"net/http"
	"strconv"
	"strings"

	"receivables/internal/app"
)

// apiIngestPayment handles POST /api/reconciliation/entries.
// Returns 201 for a new entry and 200 when the payment was already recorded.
func (h *Handler) apiIngestPayment(w http.ResponseWriter, r *http.Request) {
	var req app.IngestPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.IngestPayment(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSONStatus(w, status, res)
}

// apiListEntries handles GET /api/reconciliation/entries.
func (h *Handler) apiListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := app.ListEntriesRequest{
		Status: q.Get("status"),
		Method: q.Get("method"),
		From:   q.Get("from"),
		To:     q.Get("to"),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, "limit must be a non-negative integer", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		req.Limit = n
	}

	res, err := h.svc.ListEntries(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiGetEntry handles GET /api/reconciliation/entries/{id}.
func (h *Handler) apiGetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entry, err := h.svc.GetEntry(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, entry)
}

// apiManualMatch handles POST /api/reconciliation/entries/{id}/match.
func (h *Handler) apiManualMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		InvoiceID int64 `json:"invoice_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	entry, err := h.svc.ManualMatch(r.Context(), app.ManualMatchRequest{
		EntryID:   id,
		InvoiceID: body.InvoiceID,
		Actor:     actor(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, entry)
}

// apiMatchPair handles POST /api/reconciliation/entries/{id}/pair.
func (h *Handler) apiMatchPair(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		FSPEntryID int64 `json:"fsp_entry_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	entry, err := h.svc.MatchPair(r.Context(), app.MatchPairRequest{
		AcctEntryID: id,
		FSPEntryID:  body.FSPEntryID,
		Actor:       actor(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, entry)
}

// apiMarkDiscrepancy handles POST /api/reconciliation/entries/{id}/discrepancy.
func (h *Handler) apiMarkDiscrepancy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Note string `json:"note"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	entry, err := h.svc.MarkDiscrepancy(r.Context(), app.DiscrepancyRequest{EntryID: id, Note: body.Note})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, entry)
}

// apiSummary handles GET /api/reconciliation/summary.
// status may repeat or be comma-separated.
func (h *Handler) apiSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := app.SummaryRequest{
		From:   q.Get("from"),
		To:     q.Get("to"),
		Method: q.Get("method"),
	}
	for _, v := range q["status"] {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				req.Statuses = append(req.Statuses, s)
			}
		}
	}

	summary, err := h.svc.Summarize(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

// apiRunMatcher handles POST /api/reconciliation/match-run.
func (h *Handler) apiRunMatcher(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RunMatcher(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}
