package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"receivables/internal/core"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Syncer is satisfied by *core.SyncService.
type Syncer interface {
	SyncFinancedPayments(ctx context.Context) (*core.SyncResult, error)
	ImportDeposits(ctx context.Context, records []core.PaymentRecord) (*core.ImportResult, error)
}

type appService struct {
	db        Pinger
	ledger    core.ReconciliationService
	matcher   core.MatcherService
	financing core.FinancingService
	syncer    Syncer
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	db Pinger,
	ledger core.ReconciliationService,
	matcher core.MatcherService,
	financing core.FinancingService,
	syncer Syncer,
) ApplicationService {
	return &appService{
		db:        db,
		ledger:    ledger,
		matcher:   matcher,
		financing: financing,
		syncer:    syncer,
	}
}

func (s *appService) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *appService) IngestPayment(ctx context.Context, req IngestPaymentRequest) (*IngestResult, error) {
	src := core.Source(strings.ToLower(strings.TrimSpace(req.Source)))
	if !src.Valid() {
		return nil, fmt.Errorf("%w: unknown source %q", core.ErrInvalidInput, req.Source)
	}
	date, err := parseDate("payment_date", req.PaymentDate)
	if err != nil {
		return nil, err
	}
	if date == nil {
		return nil, fmt.Errorf("%w: payment_date is required", core.ErrInvalidInput)
	}

	res, err := s.ledger.Ingest(ctx, core.PaymentRecord{
		Source:      src,
		SourceID:    strings.TrimSpace(req.SourceID),
		Amount:      req.Amount,
		PaymentDate: *date,
		Method:      strings.TrimSpace(req.Method),
		InvoiceID:   req.InvoiceID,
		Deposited:   req.Deposited,
	})
	if err != nil {
		return nil, err
	}
	return &IngestResult{Entry: res.Entry, Created: res.Created, Linked: res.Linked}, nil
}

func (s *appService) ListEntries(ctx context.Context, req ListEntriesRequest) (*EntryListResult, error) {
	f := core.EntryFilter{Method: strings.TrimSpace(req.Method), Limit: req.Limit}
	if req.Status != "" {
		st, err := parseStatus(req.Status)
		if err != nil {
			return nil, err
		}
		f.Status = st
	}
	var err error
	if f.From, err = parseDate("from", req.From); err != nil {
		return nil, err
	}
	if f.To, err = parseDate("to", req.To); err != nil {
		return nil, err
	}

	entries, err := s.ledger.ListEntries(ctx, f)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []core.ReconciliationEntry{}
	}
	return &EntryListResult{Entries: entries, Count: len(entries)}, nil
}

func (s *appService) GetEntry(ctx context.Context, entryID int64) (*core.ReconciliationEntry, error) {
	return s.ledger.GetEntry(ctx, entryID)
}

func (s *appService) ManualMatch(ctx context.Context, req ManualMatchRequest) (*core.ReconciliationEntry, error) {
	if req.InvoiceID <= 0 {
		return nil, fmt.Errorf("%w: invoice_id is required", core.ErrInvalidInput)
	}
	return s.ledger.ManualMatch(ctx, req.EntryID, req.InvoiceID, req.Actor)
}

func (s *appService) MatchPair(ctx context.Context, req MatchPairRequest) (*core.ReconciliationEntry, error) {
	if req.FSPEntryID <= 0 {
		return nil, fmt.Errorf("%w: fsp_entry_id is required", core.ErrInvalidInput)
	}
	return s.ledger.MatchPair(ctx, req.AcctEntryID, req.FSPEntryID, req.Actor)
}

func (s *appService) MarkDiscrepancy(ctx context.Context, req DiscrepancyRequest) (*core.ReconciliationEntry, error) {
	return s.ledger.MarkDiscrepancy(ctx, req.EntryID, strings.TrimSpace(req.Note))
}

func (s *appService) Summarize(ctx context.Context, req SummaryRequest) (*core.Summary, error) {
	f := core.SummaryFilter{Method: strings.TrimSpace(req.Method)}
	var err error
	if f.From, err = parseDate("from", req.From); err != nil {
		return nil, err
	}
	if f.To, err = parseDate("to", req.To); err != nil {
		return nil, err
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, fmt.Errorf("%w: to is before from", core.ErrInvalidInput)
	}
	for _, raw := range req.Statuses {
		st, err := parseStatus(raw)
		if err != nil {
			return nil, err
		}
		f.Statuses = append(f.Statuses, st)
	}
	return s.ledger.Summarize(ctx, f)
}

func (s *appService) RunMatcher(ctx context.Context) (*core.MatchRunResult, error) {
	return s.matcher.Run(ctx)
}

func (s *appService) SetFinancingPlan(ctx context.Context, req SetPlanRequest) (*core.Schedule, error) {
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return nil, err
	}
	if start == nil {
		return nil, fmt.Errorf("%w: start_date is required", core.ErrInvalidInput)
	}
	return s.financing.SetFinancingPlan(ctx, req.InvoiceID, core.PlanInput{
		MonthlyAmount: req.MonthlyAmount,
		DueDay:        req.DueDay,
		StartDate:     *start,
		Notes:         strings.TrimSpace(req.Notes),
	})
}

func (s *appService) RemoveFinancingPlan(ctx context.Context, invoiceID int64) error {
	return s.financing.RemoveFinancingPlan(ctx, invoiceID)
}

func (s *appService) RegenerateSchedule(ctx context.Context, invoiceID int64) (*core.Schedule, error) {
	return s.financing.RegenerateSchedule(ctx, invoiceID)
}

func (s *appService) RegenerateAll(ctx context.Context) (*core.RegenerateResult, error) {
	return s.financing.RegenerateAll(ctx)
}

func (s *appService) GetSchedule(ctx context.Context, invoiceID int64) (*core.Schedule, error) {
	return s.financing.GetSchedule(ctx, invoiceID)
}

func (s *appService) ListFinancedInvoices(ctx context.Context) ([]core.Invoice, error) {
	return s.financing.ListFinancedInvoices(ctx)
}

func (s *appService) UpdateExpectedPayment(ctx context.Context, req UpdateSlotRequest) (*core.ExpectedPayment, error) {
	var upd core.SlotUpdate
	if req.Status != nil {
		st := core.SlotStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown slot status %q", core.ErrInvalidInput, *req.Status)
		}
		upd.Status = &st
	}
	if req.PaymentDate != nil {
		d, err := parseDate("payment_date", *req.PaymentDate)
		if err != nil {
			return nil, err
		}
		upd.PaymentDate = d
	}
	upd.AmountPaid = req.AmountPaid
	return s.financing.UpdateExpectedPayment(ctx, req.SlotID, upd)
}

func (s *appService) SyncFinancedPayments(ctx context.Context) (*core.SyncResult, error) {
	return s.syncer.SyncFinancedPayments(ctx)
}

func (s *appService) ImportDeposits(ctx context.Context, records []core.PaymentRecord) (*core.ImportResult, error) {
	return s.syncer.ImportDeposits(ctx, records)
}

// parseDate returns nil for an empty string.
func parseDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := core.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD, got %q", core.ErrInvalidInput, field, raw)
	}
	return &t, nil
}

func parseStatus(raw string) (core.MatchStatus, error) {
	st := core.MatchStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown match status %q", core.ErrInvalidInput, raw)
	}
	return st, nil
}
