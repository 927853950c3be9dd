package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// FinancingService owns financing plans and the expected_payments view.
type FinancingService interface {
	// SetFinancingPlan creates or replaces an invoice's plan and regenerates its schedule.
	SetFinancingPlan(ctx context.Context, invoiceID int64, in PlanInput) (*Schedule, error)
	RemoveFinancingPlan(ctx context.Context, invoiceID int64) error
	// RegenerateSchedule rebuilds the invoice's slots in one transaction,
	// serialized per invoice by a row lock.
	RegenerateSchedule(ctx context.Context, invoiceID int64) (*Schedule, error)
	RegenerateAll(ctx context.Context) (*RegenerateResult, error)
	// UpdateExpectedPayment is the manual correction path for a single slot.
	// The next regeneration replaces it.
	UpdateExpectedPayment(ctx context.Context, slotID int64, upd SlotUpdate) (*ExpectedPayment, error)
	GetSchedule(ctx context.Context, invoiceID int64) (*Schedule, error)
	ListFinancedInvoices(ctx context.Context) ([]Invoice, error)
}

// PlanInput carries the operator-entered financing terms.
type PlanInput struct {
	MonthlyAmount decimal.Decimal
	DueDay        int
	StartDate     time.Time
	Notes         string
}

// SlotUpdate holds the fields an operator may correct. Nil means unchanged.
type SlotUpdate struct {
	Status      *SlotStatus
	PaymentDate *time.Time
	AmountPaid  *decimal.Decimal
}

// RegenerateResult reports a batch regeneration.
type RegenerateResult struct {
	Invoices    int         `json:"invoices"`
	Regenerated int         `json:"regenerated"`
	Errors      BatchErrors `json:"errors"`
}

type financingService struct {
	pool     *pgxpool.Pool
	errorCap int
	log      zerolog.Logger
	now      func() time.Time
}

func NewFinancingService(pool *pgxpool.Pool, errorCap int, log zerolog.Logger) FinancingService {
	return &financingService{
		pool:     pool,
		errorCap: errorCap,
		log:      log.With().Str("component", "financing").Logger(),
		now:      time.Now,
	}
}

func (s *financingService) SetFinancingPlan(ctx context.Context, invoiceID int64, in PlanInput) (*Schedule, error) {
	plan := &FinancingPlan{
		InvoiceID:     invoiceID,
		MonthlyAmount: in.MonthlyAmount,
		DueDay:        in.DueDay,
		StartDate:     DateOnly(in.StartDate),
		Notes:         in.Notes,
	}
	if err := ValidatePlan(plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := getInvoice(ctx, tx, invoiceID, true); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO financing_plans (invoice_id, monthly_amount, due_day, start_date, notes, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (invoice_id) DO UPDATE
		SET monthly_amount = EXCLUDED.monthly_amount, due_day = EXCLUDED.due_day,
			start_date = EXCLUDED.start_date, notes = EXCLUDED.notes, updated_at = now()
	`, invoiceID, plan.MonthlyAmount, plan.DueDay, plan.StartDate, plan.Notes)
	if err != nil {
		return nil, fmt.Errorf("failed to save financing plan for invoice %d: %w", invoiceID, err)
	}

	if _, err := tx.Exec(ctx, "UPDATE invoices SET has_financing_plan = true WHERE id = $1", invoiceID); err != nil {
		return nil, fmt.Errorf("failed to flag invoice %d as financed: %w", invoiceID, err)
	}

	if err := s.regenerateTx(ctx, tx, invoiceID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit financing plan: %w", err)
	}
	return s.GetSchedule(ctx, invoiceID)
}

func (s *financingService) RemoveFinancingPlan(ctx context.Context, invoiceID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := getInvoice(ctx, tx, invoiceID, true); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, "DELETE FROM financing_plans WHERE invoice_id = $1", invoiceID)
	if err != nil {
		return fmt.Errorf("failed to delete financing plan for invoice %d: %w", invoiceID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("financing plan for invoice %d: %w", invoiceID, ErrNotFound)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM expected_payments WHERE invoice_id = $1", invoiceID); err != nil {
		return fmt.Errorf("failed to clear schedule for invoice %d: %w", invoiceID, err)
	}
	if _, err := tx.Exec(ctx, "UPDATE invoices SET has_financing_plan = false WHERE id = $1", invoiceID); err != nil {
		return fmt.Errorf("failed to unflag invoice %d: %w", invoiceID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit plan removal: %w", err)
	}
	return nil
}

func (s *financingService) RegenerateSchedule(ctx context.Context, invoiceID int64) (*Schedule, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := getInvoice(ctx, tx, invoiceID, true); err != nil {
		return nil, err
	}
	if err := s.regenerateTx(ctx, tx, invoiceID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit schedule for invoice %d: %w", invoiceID, err)
	}
	return s.GetSchedule(ctx, invoiceID)
}

// regenerateTx replaces the invoice's slots. The caller must hold the invoice row lock.
func (s *financingService) regenerateTx(ctx context.Context, tx pgx.Tx, invoiceID int64) error {
	inv, err := getInvoice(ctx, tx, invoiceID, false)
	if err != nil {
		return err
	}
	plan, err := getPlan(ctx, tx, invoiceID)
	if err != nil {
		return err
	}
	payments, err := linkedPayments(ctx, tx, invoiceID)
	if err != nil {
		return err
	}

	slots, err := BuildSchedule(*inv, plan, payments, s.now())
	if err != nil {
		return fmt.Errorf("invoice %d: %w", invoiceID, err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM expected_payments WHERE invoice_id = $1", invoiceID); err != nil {
		return fmt.Errorf("failed to clear schedule for invoice %d: %w", invoiceID, err)
	}

	batch := &pgx.Batch{}
	for _, sl := range slots {
		batch.Queue(`
			INSERT INTO expected_payments (invoice_id, sequence, due_date, amount, status, payment_date, amount_paid, payment_record_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, sl.InvoiceID, sl.Sequence, sl.DueDate, sl.Amount, string(sl.Status), sl.PaymentDate, sl.AmountPaid, sl.PaymentRecordID)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to write schedule for invoice %d: %w", invoiceID, err)
	}

	s.log.Debug().Int64("invoice_id", invoiceID).Int("slots", len(slots)).Int("payments", len(payments)).Msg("schedule regenerated")
	return nil
}

func getPlan(ctx context.Context, q pgxQuerier, invoiceID int64) (*FinancingPlan, error) {
	var p FinancingPlan
	err := q.QueryRow(ctx, `
		SELECT invoice_id, monthly_amount, due_day, start_date, notes, updated_at
		FROM financing_plans WHERE invoice_id = $1
	`, invoiceID).Scan(&p.InvoiceID, &p.MonthlyAmount, &p.DueDay, &p.StartDate, &p.Notes, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invoice %d has no financing plan: %w", invoiceID, ErrNotConfigured)
		}
		return nil, fmt.Errorf("failed to fetch financing plan for invoice %d: %w", invoiceID, err)
	}
	return &p, nil
}

// linkedPayments returns one record per live ledger entry linked to the
// invoice, so a payment seen by both sources is counted once. The field-side
// record is preferred because it carries the collection date, and its amount
// is the part applied to this invoice when the payment was split. Entries
// flagged as discrepancies are left out until a human re-matches them.
func linkedPayments(ctx context.Context, q pgxQuerier, invoiceID int64) ([]PaymentRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT pr.id, pr.source, pr.source_id, COALESCE(pr.applied_amount, pr.amount), pr.payment_date,
			pr.method, pr.deposited, pr.created_at
		FROM reconciliation_entries e
		JOIN payment_records pr ON pr.id = COALESCE(e.fsp_payment_id, e.acctsys_payment_id)
		WHERE e.invoice_id = $1 AND e.merged_into IS NULL AND e.match_status <> $2
		ORDER BY pr.payment_date, pr.source_id
	`, invoiceID, string(MatchDiscrepancy))
	if err != nil {
		return nil, fmt.Errorf("failed to load payments for invoice %d: %w", invoiceID, err)
	}
	defer rows.Close()

	var out []PaymentRecord
	for rows.Next() {
		var p PaymentRecord
		var src string
		if err := rows.Scan(&p.ID, &src, &p.SourceID, &p.Amount, &p.PaymentDate, &p.Method, &p.Deposited, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Source = Source(src)
		inv := invoiceID
		p.InvoiceID = &inv
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return out, nil
}

func (s *financingService) RegenerateAll(ctx context.Context) (*RegenerateResult, error) {
	invoices, err := s.ListFinancedInvoices(ctx)
	if err != nil {
		return nil, err
	}

	res := &RegenerateResult{Invoices: len(invoices), Errors: BatchErrors{Cap: s.errorCap}}
	for _, inv := range invoices {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := s.RegenerateSchedule(ctx, inv.ID); err != nil {
			res.Errors.Add(fmt.Sprintf("invoice %s: %v", inv.Number, err))
			s.log.Warn().Err(err).Int64("invoice_id", inv.ID).Msg("schedule regeneration failed")
			continue
		}
		res.Regenerated++
	}

	s.log.Info().Int("invoices", res.Invoices).Int("regenerated", res.Regenerated).
		Int("errors", res.Errors.Count()).Msg("batch regeneration complete")
	return res, nil
}

func (s *financingService) UpdateExpectedPayment(ctx context.Context, slotID int64, upd SlotUpdate) (*ExpectedPayment, error) {
	if upd.Status == nil && upd.PaymentDate == nil && upd.AmountPaid == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown slot status %q", ErrInvalidInput, *upd.Status)
	}
	if upd.AmountPaid != nil && upd.AmountPaid.IsNegative() {
		return nil, fmt.Errorf("%w: amount paid cannot be negative", ErrInvalidInput)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	slot, err := scanSlot(tx.QueryRow(ctx, "SELECT "+slotColumns+" FROM expected_payments WHERE id = $1 FOR UPDATE", slotID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("expected payment %d: %w", slotID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch expected payment %d: %w", slotID, err)
	}

	if upd.Status != nil {
		slot.Status = *upd.Status
	}
	if upd.PaymentDate != nil {
		d := DateOnly(*upd.PaymentDate)
		slot.PaymentDate = &d
	}
	if upd.AmountPaid != nil {
		slot.AmountPaid = upd.AmountPaid
	}

	updated, err := scanSlot(tx.QueryRow(ctx, `
		UPDATE expected_payments SET status = $2, payment_date = $3, amount_paid = $4
		WHERE id = $1
		RETURNING `+slotColumns,
		slotID, string(slot.Status), slot.PaymentDate, slot.AmountPaid))
	if err != nil {
		return nil, fmt.Errorf("failed to update expected payment %d: %w", slotID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit expected payment %d: %w", slotID, err)
	}
	return updated, nil
}

func (s *financingService) GetSchedule(ctx context.Context, invoiceID int64) (*Schedule, error) {
	inv, err := getInvoice(ctx, s.pool, invoiceID, false)
	if err != nil {
		return nil, err
	}
	plan, err := getPlan(ctx, s.pool, invoiceID)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, "SELECT "+slotColumns+" FROM expected_payments WHERE invoice_id = $1 ORDER BY sequence", invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule for invoice %d: %w", invoiceID, err)
	}
	defer rows.Close()

	var slots []ExpectedPayment
	for rows.Next() {
		sl, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, *sl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slots: %w", err)
	}

	return &Schedule{
		Invoice:    *inv,
		Plan:       *plan,
		Slots:      slots,
		Projection: Project(*inv, *plan, slots),
	}, nil
}

func (s *financingService) ListFinancedInvoices(ctx context.Context) ([]Invoice, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE has_financing_plan = true
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query financed invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}
	return invoices, nil
}
