package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"receivables/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	jwtSecret string
	log       zerolog.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins, jwtSecret string, log zerolog.Logger) http.Handler {
	h := &Handler{
		svc:       svc,
		jwtSecret: jwtSecret,
		log:       log.With().Str("component", "web").Logger(),
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(h.log))
	r.Use(Recoverer(h.log))
	r.Use(CORS(allowedOrigins))

	// ── Health (public) ───────────────────────────────────────────────────────
	r.Get("/api/health", h.health)

	// ── Protected API routes (return 401 JSON if unauthenticated) ────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		// ── Reconciliation ledger ─────────────────────────────────────────────
		r.Post("/api/reconciliation/entries", h.apiIngestPayment)
		r.Get("/api/reconciliation/entries", h.apiListEntries)
		r.Get("/api/reconciliation/entries/{id}", h.apiGetEntry)
		r.Post("/api/reconciliation/entries/{id}/match", h.apiManualMatch)
		r.Post("/api/reconciliation/entries/{id}/pair", h.apiMatchPair)
		r.Post("/api/reconciliation/entries/{id}/discrepancy", h.apiMarkDiscrepancy)
		r.Get("/api/reconciliation/summary", h.apiSummary)
		r.Post("/api/reconciliation/match-run", h.apiRunMatcher)

		// ── Financing ─────────────────────────────────────────────────────────
		r.Get("/api/invoices/financed", h.apiListFinancedInvoices)
		r.Put("/api/invoices/{id}/financing-plan", h.apiSetFinancingPlan)
		r.Delete("/api/invoices/{id}/financing-plan", h.apiRemoveFinancingPlan)
		r.Post("/api/invoices/{id}/schedule/regenerate", h.apiRegenerateSchedule)
		r.Get("/api/invoices/{id}/schedule", h.apiGetSchedule)
		r.Patch("/api/expected-payments/{id}", h.apiUpdateExpectedPayment)
		r.Post("/api/schedules/regenerate", h.apiRegenerateAll)

		// ── Sync ──────────────────────────────────────────────────────────────
		r.Post("/api/sync/financed-payments", h.apiSyncFinancedPayments)
		r.Post("/api/sync/deposits", h.apiImportDeposits)
	})

	h.router = r
	return r
}

// health reports service status and database reachability.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}

	if err := h.svc.Ping(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(response{Status: "degraded", Database: "unreachable"})
		return
	}
	writeJSON(w, response{Status: "ok", Database: "ok"})
}

// pathID extracts the {id} URL parameter, writing a 400 when it is not a positive integer.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, "invalid id: "+raw, "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
