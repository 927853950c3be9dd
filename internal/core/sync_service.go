package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// PaymentSource is the field-service platform as the sync sees it.
type PaymentSource interface {
	// ListCustomerPayments returns every payment of a customer, all pages.
	ListCustomerPayments(ctx context.Context, customerID int64) ([]PaymentRecord, error)
	GetInvoiceByNumber(ctx context.Context, number string) (*FSPInvoice, error)
}

// FinancedInvoiceLister lists the invoices the sync walks.
type FinancedInvoiceLister interface {
	ListFinancedInvoices(ctx context.Context) ([]Invoice, error)
}

// ScheduleRegenerator rebuilds one invoice's schedule.
type ScheduleRegenerator interface {
	RegenerateSchedule(ctx context.Context, invoiceID int64) (*Schedule, error)
}

// PaymentLedger is the part of the reconciliation ledger the sync writes through.
type PaymentLedger interface {
	Ingest(ctx context.Context, rec PaymentRecord) (*IngestResult, error)
	MarkDeposited(ctx context.Context, acctSourceID string) (*ReconciliationEntry, error)
}

// SyncConfig bounds one sync run.
type SyncConfig struct {
	Concurrency  int
	FetchTimeout time.Duration
	ErrorCap     int
}

// DefaultSyncConfig returns the limits used when none are configured.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{Concurrency: 4, FetchTimeout: 10 * time.Second, ErrorCap: 20}
}

// SyncResult reports one field-service sync run.
type SyncResult struct {
	InvoicesChecked         int      `json:"invoices_checked"`
	InvoicesWithNewPayments int      `json:"invoices_with_new_payments"`
	PaymentsFound           int      `json:"payments_found"`
	PaymentsCreated         int      `json:"payments_created"`
	PaymentsAlreadyPresent  int      `json:"payments_already_present"`
	PaymentsLinked          int      `json:"payments_linked"` // already present, newly tied to the invoice
	SchedulesRegenerated    int      `json:"schedules_regenerated"`
	Errors                  []string `json:"errors"`
	Truncated               int      `json:"errors_truncated"`
}

// Err returns ErrPartialSyncFailure when any invoice failed.
func (r *SyncResult) Err() error {
	if n := len(r.Errors) + r.Truncated; n > 0 {
		return fmt.Errorf("%w: %d of %d invoices failed", ErrPartialSyncFailure, n, r.InvoicesChecked)
	}
	return nil
}

// ImportResult reports one accounting-system deposit import.
type ImportResult struct {
	Records         int         `json:"records"`
	Created         int         `json:"created"`
	AlreadyPresent  int         `json:"already_present"`
	MarkedDeposited int         `json:"marked_deposited"`
	Errors          BatchErrors `json:"errors"`
}

// SyncService pulls payments for financed invoices from the field-service
// platform into the ledger and refreshes the affected schedules. A nil source
// leaves only ImportDeposits usable.
type SyncService struct {
	source    PaymentSource
	invoices  FinancedInvoiceLister
	ledger    PaymentLedger
	schedules ScheduleRegenerator
	cfg       SyncConfig
	log       zerolog.Logger
}

func NewSyncService(source PaymentSource, invoices FinancedInvoiceLister, ledger PaymentLedger,
	schedules ScheduleRegenerator, cfg SyncConfig, log zerolog.Logger) *SyncService {
	def := DefaultSyncConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.ErrorCap <= 0 {
		cfg.ErrorCap = def.ErrorCap
	}
	return &SyncService{
		source:    source,
		invoices:  invoices,
		ledger:    ledger,
		schedules: schedules,
		cfg:       cfg,
		log:       log.With().Str("component", "sync").Logger(),
	}
}

type invoiceOutcome struct {
	found, created, present, linked int
	regenerated                     bool
}

// SyncFinancedPayments runs one pass over every financed invoice. A failing
// invoice is recorded and skipped; it never stops the others. The returned
// error is non-nil only when the invoice list itself cannot be loaded.
func (s *SyncService) SyncFinancedPayments(ctx context.Context) (*SyncResult, error) {
	if s.source == nil {
		return nil, ErrSourceUnavailable
	}
	invoices, err := s.invoices.ListFinancedInvoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list financed invoices: %w", err)
	}

	res := &SyncResult{InvoicesChecked: len(invoices)}
	failures := make(map[int64]string)
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, inv := range invoices {
		inv := inv
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				failures[inv.ID] = fmt.Sprintf("invoice %s: %v", inv.Number, ctx.Err())
				mu.Unlock()
				return nil
			}
			out, err := s.syncInvoice(ctx, inv)

			mu.Lock()
			defer mu.Unlock()
			res.PaymentsFound += out.found
			res.PaymentsCreated += out.created
			res.PaymentsAlreadyPresent += out.present
			res.PaymentsLinked += out.linked
			if out.created > 0 {
				res.InvoicesWithNewPayments++
			}
			if out.regenerated {
				res.SchedulesRegenerated++
			}
			if err != nil {
				failures[inv.ID] = fmt.Sprintf("invoice %s: %v", inv.Number, err)
				s.log.Warn().Err(err).Int64("invoice_id", inv.ID).Str("invoice_number", inv.Number).Msg("invoice sync failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	ids := make([]int64, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if len(res.Errors) >= s.cfg.ErrorCap {
			res.Truncated++
			continue
		}
		res.Errors = append(res.Errors, failures[id])
	}

	s.log.Info().
		Int("invoices_checked", res.InvoicesChecked).
		Int("invoices_with_new_payments", res.InvoicesWithNewPayments).
		Int("payments_found", res.PaymentsFound).
		Int("payments_created", res.PaymentsCreated).
		Int("payments_already_present", res.PaymentsAlreadyPresent).
		Int("payments_linked", res.PaymentsLinked).
		Int("errors", len(failures)).
		Msg("financed payment sync complete")
	return res, nil
}

// syncInvoice fetches under FetchTimeout; ledger writes use the caller's
// context so a slow platform cannot cut an ingest in half.
func (s *SyncService) syncInvoice(ctx context.Context, inv Invoice) (invoiceOutcome, error) {
	var out invoiceOutcome

	payments, fspInvoiceID, err := s.fetchInvoicePayments(ctx, inv)
	if err != nil {
		return out, err
	}

	for _, p := range payments {
		if !appliesToInvoice(p, inv, fspInvoiceID) {
			continue
		}
		out.found++

		rec := p
		rec.Source = SourceFSP
		invoiceID := inv.ID
		rec.InvoiceID = &invoiceID
		if applied := appliedAmount(p, inv, fspInvoiceID); applied.IsPositive() && applied.LessThan(p.Amount) {
			rec.AppliedAmount = &applied
		}
		res, err := s.ledger.Ingest(ctx, rec)
		if err != nil {
			return out, fmt.Errorf("ingest payment %s: %w", p.SourceID, err)
		}
		switch {
		case res.Created:
			out.created++
		case res.Linked:
			out.present++
			out.linked++
		default:
			out.present++
		}
	}

	if out.created > 0 || out.linked > 0 {
		if _, err := s.schedules.RegenerateSchedule(ctx, inv.ID); err != nil {
			return out, fmt.Errorf("regenerate schedule: %w", err)
		}
		out.regenerated = true
	}
	return out, nil
}

func (s *SyncService) fetchInvoicePayments(ctx context.Context, inv Invoice) ([]PaymentRecord, *int64, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	customerID := inv.FSPCustomerID
	fspInvoiceID := inv.FSPInvoiceID
	if customerID == nil {
		fi, err := s.source.GetInvoiceByNumber(fetchCtx, inv.Number)
		if err != nil {
			return nil, nil, fetchError(fetchCtx, "resolve customer", err)
		}
		customerID = &fi.CustomerID
		if fspInvoiceID == nil {
			fspInvoiceID = &fi.ID
		}
	}

	payments, err := s.source.ListCustomerPayments(fetchCtx, *customerID)
	if err != nil {
		return nil, nil, fetchError(fetchCtx, "list payments", err)
	}
	return payments, fspInvoiceID, nil
}

func fetchError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrExternalTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// appliedAmount sums the applied-to amounts that reference the invoice.
func appliedAmount(p PaymentRecord, inv Invoice, fspInvoiceID *int64) decimal.Decimal {
	total := decimal.Zero
	for _, ref := range p.AppliedTo {
		if refersTo(ref, inv, fspInvoiceID) {
			total = total.Add(ref.Amount)
		}
	}
	return total
}

// appliesToInvoice matches the platform's applied-to references against the
// invoice by id, or by number when the platform only carries the number.
func appliesToInvoice(p PaymentRecord, inv Invoice, fspInvoiceID *int64) bool {
	for _, ref := range p.AppliedTo {
		if refersTo(ref, inv, fspInvoiceID) {
			return true
		}
	}
	return false
}

func refersTo(ref AppliedRef, inv Invoice, fspInvoiceID *int64) bool {
	if fspInvoiceID != nil && ref.InvoiceID != 0 && ref.InvoiceID == *fspInvoiceID {
		return true
	}
	return ref.InvoiceNumber != "" && strings.EqualFold(strings.TrimSpace(ref.InvoiceNumber), strings.TrimSpace(inv.Number))
}

// ImportDeposits ingests accounting-system records from a deposit feed.
// Records already in the ledger that the feed now shows as deposited get
// their deposit flag set.
func (s *SyncService) ImportDeposits(ctx context.Context, records []PaymentRecord) (*ImportResult, error) {
	res := &ImportResult{Records: len(records), Errors: BatchErrors{Cap: s.cfg.ErrorCap}}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rec.Source = SourceAcctSys
		in, err := s.ledger.Ingest(ctx, rec)
		if err != nil {
			res.Errors.Add(fmt.Sprintf("payment %s: %v", rec.SourceID, err))
			continue
		}
		if in.Created {
			res.Created++
			continue
		}
		res.AlreadyPresent++
		if rec.Deposited && !in.Entry.IsDeposited {
			if _, err := s.ledger.MarkDeposited(ctx, rec.SourceID); err != nil {
				res.Errors.Add(fmt.Sprintf("payment %s: %v", rec.SourceID, err))
				continue
			}
			res.MarkedDeposited++
		}
	}

	s.log.Info().Int("records", res.Records).Int("created", res.Created).
		Int("already_present", res.AlreadyPresent).Int("marked_deposited", res.MarkedDeposited).
		Int("errors", res.Errors.Count()).Msg("deposit import complete")
	return res, nil
}
