package web

import (
	"errors"
	"net/http"

	"receivables/internal/acctsys"
)

// apiSyncFinancedPayments handles POST /api/sync/financed-payments.
// A run where some invoices failed still returns 200; the failures are in
// the body's errors list.
func (h *Handler) apiSyncFinancedPayments(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.SyncFinancedPayments(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if perr := res.Err(); perr != nil {
		h.log.Warn().Err(perr).Str("request_id", requestIDFromContext(r.Context())).Msg("sync finished with failures")
	}
	writeJSON(w, res)
}

// apiImportDeposits handles POST /api/sync/deposits. The body is the
// accounting system's deposit CSV export.
func (h *Handler) apiImportDeposits(w http.ResponseWriter, r *http.Request) {
	records, err := acctsys.ParseDeposits(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.ImportDeposits(r.Context(), records)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}
