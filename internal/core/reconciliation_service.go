package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ReconciliationService is the single writer of reconciliation_entries.
// Entries are never deleted; every change is an update in place.
type ReconciliationService interface {
	// Ingest records a payment seen by one source. Idempotent on (source, source_id):
	// a repeat returns the existing entry with Created=false. The only write a
	// repeat makes is linking an entry that has no invoice yet to rec.InvoiceID.
	Ingest(ctx context.Context, rec PaymentRecord) (*IngestResult, error)
	// ManualMatch binds an entry to an invoice whatever its current status.
	// It is the only way out of discrepancy.
	ManualMatch(ctx context.Context, entryID, invoiceID int64, actor string) (*ReconciliationEntry, error)
	// MatchPair binds an accounting-side entry and a field-side entry chosen by a human.
	MatchPair(ctx context.Context, acctEntryID, fspEntryID int64, actor string) (*ReconciliationEntry, error)
	MarkDiscrepancy(ctx context.Context, entryID int64, note string) (*ReconciliationEntry, error)
	// MarkDeposited flags the entry of an accounting-side payment as out of undeposited funds.
	MarkDeposited(ctx context.Context, acctSourceID string) (*ReconciliationEntry, error)
	Summarize(ctx context.Context, f SummaryFilter) (*Summary, error)
	GetEntry(ctx context.Context, id int64) (*ReconciliationEntry, error)
	ListEntries(ctx context.Context, f EntryFilter) ([]ReconciliationEntry, error)
}

// IngestResult is returned by Ingest. Linked reports that a repeat ingest
// attached a previously unlinked entry to the record's invoice.
type IngestResult struct {
	Entry   *ReconciliationEntry
	Created bool
	Linked  bool
}

// EntryFilter narrows ListEntries. Zero values mean "any".
type EntryFilter struct {
	Status MatchStatus
	Method string
	From   *time.Time
	To     *time.Time
	Limit  int
}

// SummaryFilter narrows Summarize. Zero values mean "any".
type SummaryFilter struct {
	From     *time.Time
	To       *time.Time
	Method   string
	Statuses []MatchStatus
}

// BucketTotal is a count and amount for one status or method.
type BucketTotal struct {
	Key    string          `json:"key"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Summary aggregates live ledger entries for reporting.
type Summary struct {
	From          *time.Time      `json:"from,omitempty"`
	To            *time.Time      `json:"to,omitempty"`
	TotalCount    int             `json:"total_count"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	ByStatus      []BucketTotal   `json:"by_status"`
	ByMethod      []BucketTotal   `json:"by_method"`
	NeedsTracking decimal.Decimal `json:"needs_tracking"` // st_only: collected, not turned in
	Undeposited   decimal.Decimal `json:"undeposited"`
}

type reconciliationService struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewReconciliationService(pool *pgxpool.Pool) ReconciliationService {
	return &reconciliationService{pool: pool, now: time.Now}
}

func validateRecord(rec PaymentRecord) error {
	if !rec.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidInput, rec.Source)
	}
	if strings.TrimSpace(rec.SourceID) == "" {
		return fmt.Errorf("%w: source id is required", ErrInvalidInput)
	}
	if rec.Amount.IsZero() {
		return fmt.Errorf("%w: amount must be non-zero", ErrInvalidInput)
	}
	if rec.PaymentDate.IsZero() {
		return fmt.Errorf("%w: payment date is required", ErrInvalidInput)
	}
	if rec.AppliedAmount != nil && rec.AppliedAmount.Abs().GreaterThan(rec.Amount.Abs()) {
		return fmt.Errorf("%w: applied amount %s exceeds payment amount %s", ErrInvalidInput,
			rec.AppliedAmount.StringFixed(2), rec.Amount.StringFixed(2))
	}
	return nil
}

func (s *reconciliationService) Ingest(ctx context.Context, rec PaymentRecord) (*IngestResult, error) {
	if err := validateRecord(rec); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if rec.InvoiceID != nil {
		if _, err := getInvoice(ctx, tx, *rec.InvoiceID, false); err != nil {
			return nil, err
		}
	}

	var recordID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO payment_records (source, source_id, amount, payment_date, method, invoice_id, deposited, applied_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source, source_id) DO NOTHING
		RETURNING id
	`, string(rec.Source), rec.SourceID, rec.Amount, DateOnly(rec.PaymentDate), rec.Method, rec.InvoiceID,
		rec.Deposited, rec.AppliedAmount).Scan(&recordID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.ingestRepeat(ctx, tx, rec)
		}
		return nil, fmt.Errorf("failed to insert payment record: %w", err)
	}

	var acctID, fspID *int64
	status := MatchUnmatched
	deposited := false
	switch rec.Source {
	case SourceAcctSys:
		acctID = &recordID
		deposited = rec.Deposited
	case SourceFSP:
		fspID = &recordID
		status = MatchSTOnly
	}

	entry, err := scanEntry(tx.QueryRow(ctx, `
		INSERT INTO reconciliation_entries (amount, payment_date, method, acctsys_payment_id, fsp_payment_id,
			invoice_id, is_deposited, match_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+entryColumns,
		rec.Amount, DateOnly(rec.PaymentDate), rec.Method, acctID, fspID, rec.InvoiceID, deposited, string(status)))
	if err != nil {
		return nil, fmt.Errorf("failed to insert reconciliation entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit ingest: %w", err)
	}
	return &IngestResult{Entry: entry, Created: true}, nil
}

// ingestRepeat handles a record already in the ledger. An entry without an
// invoice is linked to rec.InvoiceID; anything else is returned untouched.
func (s *reconciliationService) ingestRepeat(ctx context.Context, tx pgx.Tx, rec PaymentRecord) (*IngestResult, error) {
	existing, err := s.entryForSource(ctx, tx, rec.Source, rec.SourceID)
	if err != nil {
		return nil, err
	}
	if rec.InvoiceID == nil || existing.InvoiceID != nil {
		return &IngestResult{Entry: existing, Created: false}, nil
	}
	if _, err := getInvoice(ctx, tx, *rec.InvoiceID, false); err != nil {
		return nil, err
	}

	linked, err := scanEntry(tx.QueryRow(ctx, `
		UPDATE reconciliation_entries SET invoice_id = $2, updated_at = now()
		WHERE id = $1 AND invoice_id IS NULL
		RETURNING `+entryColumns, existing.ID, *rec.InvoiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Linked by someone else since the lookup.
			current, err := getEntry(ctx, tx, existing.ID, false)
			if err != nil {
				return nil, err
			}
			return &IngestResult{Entry: current, Created: false}, nil
		}
		return nil, fmt.Errorf("failed to link entry %d to invoice %d: %w", existing.ID, *rec.InvoiceID, err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE payment_records
		SET invoice_id = $3, applied_amount = COALESCE(applied_amount, $4)
		WHERE source = $1 AND source_id = $2 AND invoice_id IS NULL
	`, string(rec.Source), rec.SourceID, *rec.InvoiceID, rec.AppliedAmount); err != nil {
		return nil, fmt.Errorf("failed to link %s payment %s: %w", rec.Source, rec.SourceID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice link: %w", err)
	}
	return &IngestResult{Entry: linked, Created: false, Linked: true}, nil
}

// entryForSource finds the live entry referencing a source record, following a merge if needed.
func (s *reconciliationService) entryForSource(ctx context.Context, q pgxQuerier, src Source, sourceID string) (*ReconciliationEntry, error) {
	var entryID int64
	var mergedInto *int64
	err := q.QueryRow(ctx, `
		SELECT e.id, e.merged_into
		FROM payment_records pr
		JOIN reconciliation_entries e ON e.acctsys_payment_id = pr.id OR e.fsp_payment_id = pr.id
		WHERE pr.source = $1 AND pr.source_id = $2
		ORDER BY e.merged_into NULLS FIRST, e.id
		LIMIT 1
	`, string(src), sourceID).Scan(&entryID, &mergedInto)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("entry for %s payment %s: %w", src, sourceID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to look up entry for %s payment %s: %w", src, sourceID, err)
	}
	if mergedInto != nil {
		entryID = *mergedInto
	}
	return getEntry(ctx, q, entryID, false)
}

func (s *reconciliationService) ManualMatch(ctx context.Context, entryID, invoiceID int64, actor string) (*ReconciliationEntry, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, fmt.Errorf("%w: actor is required for a manual match", ErrInvalidInput)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := getEntry(ctx, tx, entryID, true)
	if err != nil {
		return nil, err
	}
	if entry.MergedInto != nil {
		return nil, fmt.Errorf("%w: entry %d was merged into entry %d", ErrConflict, entryID, *entry.MergedInto)
	}
	if _, err := getInvoice(ctx, tx, invoiceID, false); err != nil {
		return nil, err
	}

	updated, err := scanEntry(tx.QueryRow(ctx, `
		UPDATE reconciliation_entries
		SET invoice_id = $2, match_status = $3, matched_at = $4, matched_by = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+entryColumns,
		entryID, invoiceID, string(MatchManual), s.now(), actor))
	if err != nil {
		return nil, fmt.Errorf("failed to update entry %d: %w", entryID, err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE payment_records SET invoice_id = $1 WHERE id = ANY($2)
	`, invoiceID, recordIDs(updated)); err != nil {
		return nil, fmt.Errorf("failed to link payment records of entry %d: %w", entryID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit manual match: %w", err)
	}
	return updated, nil
}

func recordIDs(e *ReconciliationEntry) []int64 {
	var ids []int64
	if e.AcctSysPaymentID != nil {
		ids = append(ids, *e.AcctSysPaymentID)
	}
	if e.FSPPaymentID != nil {
		ids = append(ids, *e.FSPPaymentID)
	}
	return ids
}

func (s *reconciliationService) MatchPair(ctx context.Context, acctEntryID, fspEntryID int64, actor string) (*ReconciliationEntry, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, fmt.Errorf("%w: actor is required for a manual match", ErrInvalidInput)
	}
	if acctEntryID == fspEntryID {
		return nil, fmt.Errorf("%w: cannot pair entry %d with itself", ErrConflict, acctEntryID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock in id order so two operators pairing overlapping entries cannot deadlock.
	first, second := acctEntryID, fspEntryID
	if second < first {
		first, second = second, first
	}
	locked := make(map[int64]*ReconciliationEntry, 2)
	for _, id := range []int64{first, second} {
		e, err := getEntry(ctx, tx, id, true)
		if err != nil {
			return nil, err
		}
		locked[id] = e
	}
	acct, fsp := locked[acctEntryID], locked[fspEntryID]

	if err := checkPairable(acct, fsp); err != nil {
		return nil, err
	}

	merged, err := bindPair(ctx, tx, acct, fsp, MatchManual, s.now(), &actor)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit pair match: %w", err)
	}
	return merged, nil
}

func checkPairable(acct, fsp *ReconciliationEntry) error {
	if acct.MergedInto != nil || fsp.MergedInto != nil {
		return fmt.Errorf("%w: entry already merged", ErrConflict)
	}
	if acct.AcctSysPaymentID == nil || acct.FSPPaymentID != nil {
		return fmt.Errorf("%w: entry %d is not an unpaired accounting-side entry", ErrConflict, acct.ID)
	}
	if fsp.FSPPaymentID == nil || fsp.AcctSysPaymentID != nil {
		return fmt.Errorf("%w: entry %d is not an unpaired field-side entry", ErrConflict, fsp.ID)
	}
	return nil
}

// bindPair folds the field-side entry into the accounting-side one. Both rows
// must already be locked by the caller's transaction. The field-side row is
// merged first: only one unmerged row may carry a given fsp_payment_id.
func bindPair(ctx context.Context, tx pgx.Tx, acct, fsp *ReconciliationEntry, status MatchStatus, at time.Time, actor *string) (*ReconciliationEntry, error) {
	invoiceID := acct.InvoiceID
	if invoiceID == nil {
		invoiceID = fsp.InvoiceID
	}

	_, err := tx.Exec(ctx, `
		UPDATE reconciliation_entries
		SET merged_into = $2, match_status = $3, matched_at = $4, matched_by = $5, updated_at = now()
		WHERE id = $1
	`, fsp.ID, acct.ID, string(status), at, actor)
	if err != nil {
		return nil, fmt.Errorf("failed to merge entry %d: %w", fsp.ID, err)
	}

	merged, err := scanEntry(tx.QueryRow(ctx, `
		UPDATE reconciliation_entries
		SET fsp_payment_id = $2, invoice_id = $3, match_status = $4, matched_at = $5, matched_by = $6,
			updated_at = now()
		WHERE id = $1
		RETURNING `+entryColumns,
		acct.ID, fsp.FSPPaymentID, invoiceID, string(status), at, actor))
	if err != nil {
		return nil, fmt.Errorf("failed to bind entry %d to entry %d: %w", fsp.ID, acct.ID, err)
	}

	if invoiceID != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE payment_records SET invoice_id = $1 WHERE id = ANY($2) AND invoice_id IS NULL
		`, *invoiceID, recordIDs(merged)); err != nil {
			return nil, fmt.Errorf("failed to link payment records of entry %d: %w", acct.ID, err)
		}
	}
	return merged, nil
}

func (s *reconciliationService) MarkDiscrepancy(ctx context.Context, entryID int64, note string) (*ReconciliationEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := getEntry(ctx, tx, entryID, true)
	if err != nil {
		return nil, err
	}
	if entry.MergedInto != nil {
		return nil, fmt.Errorf("%w: entry %d was merged into entry %d", ErrConflict, entryID, *entry.MergedInto)
	}
	if entry.MatchStatus == MatchDiscrepancy && (note == "" || note == entry.Note) {
		return entry, nil
	}
	if note == "" {
		note = entry.Note
	}

	updated, err := scanEntry(tx.QueryRow(ctx, `
		UPDATE reconciliation_entries
		SET match_status = $2, note = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+entryColumns,
		entryID, string(MatchDiscrepancy), note))
	if err != nil {
		return nil, fmt.Errorf("failed to flag entry %d: %w", entryID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit discrepancy: %w", err)
	}
	return updated, nil
}

func (s *reconciliationService) MarkDeposited(ctx context.Context, acctSourceID string) (*ReconciliationEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := s.entryForSource(ctx, tx, SourceAcctSys, acctSourceID)
	if err != nil {
		return nil, err
	}
	if entry.IsDeposited {
		return entry, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE payment_records SET deposited = true WHERE source = $1 AND source_id = $2
	`, string(SourceAcctSys), acctSourceID); err != nil {
		return nil, fmt.Errorf("failed to mark payment %s deposited: %w", acctSourceID, err)
	}
	updated, err := scanEntry(tx.QueryRow(ctx, `
		UPDATE reconciliation_entries SET is_deposited = true, updated_at = now()
		WHERE id = $1
		RETURNING `+entryColumns, entry.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to mark entry %d deposited: %w", entry.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit deposit flag: %w", err)
	}
	return updated, nil
}

func (s *reconciliationService) GetEntry(ctx context.Context, id int64) (*ReconciliationEntry, error) {
	return getEntry(ctx, s.pool, id, false)
}

// whereBuilder accumulates AND-ed conditions with positional args.
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *whereBuilder) sql() string {
	return strings.Join(w.conds, " AND ")
}

func (s *reconciliationService) ListEntries(ctx context.Context, f EntryFilter) ([]ReconciliationEntry, error) {
	w := &whereBuilder{conds: []string{"merged_into IS NULL"}}
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown match status %q", ErrInvalidInput, f.Status)
		}
		w.add("match_status = $%d", string(f.Status))
	}
	if f.Method != "" {
		w.add("method = $%d", f.Method)
	}
	if f.From != nil {
		w.add("payment_date >= $%d", DateOnly(*f.From))
	}
	if f.To != nil {
		w.add("payment_date <= $%d", DateOnly(*f.To))
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	w.args = append(w.args, limit)

	sql := fmt.Sprintf("SELECT %s FROM reconciliation_entries WHERE %s ORDER BY payment_date DESC, id DESC LIMIT $%d",
		entryColumns, w.sql(), len(w.args))
	return queryEntries(ctx, s.pool, sql, w.args...)
}

func (s *reconciliationService) Summarize(ctx context.Context, f SummaryFilter) (*Summary, error) {
	w := &whereBuilder{conds: []string{"merged_into IS NULL"}}
	if f.From != nil {
		w.add("payment_date >= $%d", DateOnly(*f.From))
	}
	if f.To != nil {
		w.add("payment_date <= $%d", DateOnly(*f.To))
	}
	if f.Method != "" {
		w.add("method = $%d", f.Method)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			if !st.Valid() {
				return nil, fmt.Errorf("%w: unknown match status %q", ErrInvalidInput, st)
			}
			statuses = append(statuses, string(st))
		}
		w.add("match_status = ANY($%d)", statuses)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT match_status, method, is_deposited, COUNT(*), COALESCE(SUM(amount), 0)
		FROM reconciliation_entries
		WHERE `+w.sql()+`
		GROUP BY match_status, method, is_deposited
	`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize entries: %w", err)
	}
	defer rows.Close()

	type bucket struct {
		status    MatchStatus
		method    string
		deposited bool
		count     int
		amount    decimal.Decimal
	}
	var buckets []bucket
	for rows.Next() {
		var b bucket
		var status string
		if err := rows.Scan(&status, &b.method, &b.deposited, &b.count, &b.amount); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		b.status = MatchStatus(status)
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary rows: %w", err)
	}

	sum := &Summary{
		From:          f.From,
		To:            f.To,
		TotalAmount:   decimal.Zero,
		NeedsTracking: decimal.Zero,
		Undeposited:   decimal.Zero,
	}
	byStatus := make(map[MatchStatus]*BucketTotal)
	byMethod := make(map[string]*BucketTotal)
	var methods []string
	for _, b := range buckets {
		sum.TotalCount += b.count
		sum.TotalAmount = sum.TotalAmount.Add(b.amount)

		st, ok := byStatus[b.status]
		if !ok {
			st = &BucketTotal{Key: string(b.status), Amount: decimal.Zero}
			byStatus[b.status] = st
		}
		st.Count += b.count
		st.Amount = st.Amount.Add(b.amount)

		m, ok := byMethod[b.method]
		if !ok {
			m = &BucketTotal{Key: b.method, Amount: decimal.Zero}
			byMethod[b.method] = m
			methods = append(methods, b.method)
		}
		m.Count += b.count
		m.Amount = m.Amount.Add(b.amount)

		switch b.status {
		case MatchSTOnly:
			sum.NeedsTracking = sum.NeedsTracking.Add(b.amount)
		case MatchUnmatched, MatchPendingReview, MatchAuto, MatchManual, MatchDiscrepancy, MatchLegacy:
			if !b.deposited {
				sum.Undeposited = sum.Undeposited.Add(b.amount)
			}
		}
	}

	for _, st := range MatchStatuses() {
		if b, ok := byStatus[st]; ok {
			sum.ByStatus = append(sum.ByStatus, *b)
		}
	}
	sort.Strings(methods)
	for _, m := range methods {
		sum.ByMethod = append(sum.ByMethod, *byMethod[m])
	}
	return sum, nil
}
