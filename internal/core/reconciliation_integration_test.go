package core_test

import (
	"context"
	"os"
	"testing"

	"receivables/internal/core"
	"receivables/internal/db"
	"receivables/migrations"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database; the tables below are truncated.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if _, err := db.Migrate(ctx, pool, migrations.FS, zerolog.Nop()); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE expected_payments, reconciliation_entries, payment_records, financing_plans, invoices
			RESTART IDENTITY CASCADE;

		INSERT INTO invoices (id, number, fsp_invoice_id, fsp_customer_id, customer_name, total, balance, issue_date) VALUES
		(1, 'INV-1001', 501, 77, 'Test Customer', 1000.00, 700.00, '2024-01-01'),
		(2, 'INV-1002', 502, 78, 'Other Customer', 450.00, 450.00, '2024-02-01');
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool
}

func ingest(t *testing.T, svc core.ReconciliationService, src core.Source, amount, date string, invoiceID *int64) *core.ReconciliationEntry {
	t.Helper()
	res, err := svc.Ingest(context.Background(), core.PaymentRecord{
		Source:      src,
		SourceID:    uuid.NewString(),
		Amount:      dec(amount),
		PaymentDate: d(date),
		Method:      "check",
		InvoiceID:   invoiceID,
	})
	require.NoError(t, err)
	require.True(t, res.Created)
	return res.Entry
}

func TestIngest_Idempotent(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := core.NewReconciliationService(pool)
	ctx := context.Background()

	rec := core.PaymentRecord{
		Source:      core.SourceAcctSys,
		SourceID:    "qb-" + uuid.NewString(),
		Amount:      dec("150.00"),
		PaymentDate: d("2024-03-01"),
		Method:      "ach",
	}

	first, err := svc.Ingest(ctx, rec)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, core.MatchUnmatched, first.Entry.MatchStatus)

	second, err := svc.Ingest(ctx, rec)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)

	var records, entries int
	require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM payment_records").Scan(&records))
	require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM reconciliation_entries").Scan(&entries))
	assert.Equal(t, 1, records)
	assert.Equal(t, 1, entries)

	fsp := ingest(t, svc, core.SourceFSP, "20", "2024-03-01", nil)
	assert.Equal(t, core.MatchSTOnly, fsp.MatchStatus)

	_, err = svc.Ingest(ctx, core.PaymentRecord{Source: core.SourceFSP, SourceID: "", Amount: dec("1"), PaymentDate: d("2024-03-01")})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestMatcher_ManualMatchSurvivesRerun(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ledger := core.NewReconciliationService(pool)
	matcher := core.NewMatcherService(pool, core.DefaultMatchWindowDays, 20, zerolog.Nop())
	ctx := context.Background()

	auto := ingest(t, ledger, core.SourceAcctSys, "300.00", "2024-03-10", nil)
	autoFSP := ingest(t, ledger, core.SourceFSP, "300.00", "2024-03-12", nil)
	manual := ingest(t, ledger, core.SourceAcctSys, "125.00", "2024-03-10", nil)
	_ = ingest(t, ledger, core.SourceFSP, "125.00", "2024-03-10", nil)
	ambiguous := ingest(t, ledger, core.SourceAcctSys, "80.00", "2024-03-10", nil)
	_ = ingest(t, ledger, core.SourceFSP, "80.00", "2024-03-09", nil)
	_ = ingest(t, ledger, core.SourceFSP, "80.00", "2024-03-11", nil)

	invoiceID := int64(1)
	_, err := ledger.ManualMatch(ctx, manual.ID, invoiceID, "alice")
	require.NoError(t, err)

	res, err := matcher.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.AutoMatched)
	assert.Equal(t, 1, res.PendingReview)

	got, err := ledger.GetEntry(ctx, auto.ID)
	require.NoError(t, err)
	assert.Equal(t, core.MatchAuto, got.MatchStatus)
	assert.Equal(t, autoFSP.FSPPaymentID, got.FSPPaymentID)
	assert.Nil(t, got.MatchedBy)

	merged, err := ledger.GetEntry(ctx, autoFSP.ID)
	require.NoError(t, err)
	require.NotNil(t, merged.MergedInto)
	assert.Equal(t, auto.ID, *merged.MergedInto)

	got, err = ledger.GetEntry(ctx, ambiguous.ID)
	require.NoError(t, err)
	assert.Equal(t, core.MatchPendingReview, got.MatchStatus)

	// The manual match is settled; a second run leaves it and everything else alone.
	res, err = matcher.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.AutoMatched)

	got, err = ledger.GetEntry(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, core.MatchManual, got.MatchStatus)
	require.NotNil(t, got.MatchedBy)
	assert.Equal(t, "alice", *got.MatchedBy)
	require.NotNil(t, got.InvoiceID)
	assert.Equal(t, invoiceID, *got.InvoiceID)
}

func TestMatchPair_MergesAndRejectsReuse(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ledger := core.NewReconciliationService(pool)
	ctx := context.Background()

	invoiceID := int64(2)
	acct := ingest(t, ledger, core.SourceAcctSys, "90.00", "2024-04-01", nil)
	fsp := ingest(t, ledger, core.SourceFSP, "90.00", "2024-04-20", &invoiceID)

	merged, err := ledger.MatchPair(ctx, acct.ID, fsp.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, merged.ID)
	assert.Equal(t, core.MatchManual, merged.MatchStatus)
	require.NotNil(t, merged.InvoiceID)
	assert.Equal(t, invoiceID, *merged.InvoiceID)

	_, err = ledger.MatchPair(ctx, acct.ID, fsp.ID, "bob")
	assert.ErrorIs(t, err, core.ErrConflict)

	_, err = ledger.MatchPair(ctx, acct.ID, fsp.ID, "")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	entries, err := ledger.ListEntries(ctx, core.EntryFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1, "merged entries are not listed")

	// The absorbed row keeps its payment reference and points at the survivor.
	absorbed, err := ledger.GetEntry(ctx, fsp.ID)
	require.NoError(t, err)
	require.NotNil(t, absorbed.FSPPaymentID)
	assert.Equal(t, *fsp.FSPPaymentID, *absorbed.FSPPaymentID)
	require.NotNil(t, absorbed.MergedInto)
	assert.Equal(t, acct.ID, *absorbed.MergedInto)

	var live int
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM reconciliation_entries WHERE fsp_payment_id = $1 AND merged_into IS NULL",
		*fsp.FSPPaymentID).Scan(&live))
	assert.Equal(t, 1, live)
}

func TestIngest_RepeatLinksUnlinkedPayment(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ledger := core.NewReconciliationService(pool)
	ctx := context.Background()

	rec := core.PaymentRecord{
		Source:      core.SourceFSP,
		SourceID:    uuid.NewString(),
		Amount:      dec("250.00"),
		PaymentDate: d("2024-01-12"),
	}
	first, err := ledger.Ingest(ctx, rec)
	require.NoError(t, err)
	require.True(t, first.Created)
	assert.Nil(t, first.Entry.InvoiceID)

	invoiceID := int64(1)
	applied := dec("200.00")
	rec.InvoiceID = &invoiceID
	rec.AppliedAmount = &applied
	second, err := ledger.Ingest(ctx, rec)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.True(t, second.Linked)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
	require.NotNil(t, second.Entry.InvoiceID)
	assert.Equal(t, invoiceID, *second.Entry.InvoiceID)

	var recInvoice *int64
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT invoice_id FROM payment_records WHERE source = $1 AND source_id = $2",
		string(rec.Source), rec.SourceID).Scan(&recInvoice))
	require.NotNil(t, recInvoice)
	assert.Equal(t, invoiceID, *recInvoice)

	// Already linked: nothing changes, not even to another invoice.
	other := int64(2)
	rec.InvoiceID = &other
	third, err := ledger.Ingest(ctx, rec)
	require.NoError(t, err)
	assert.False(t, third.Linked)
	assert.Equal(t, invoiceID, *third.Entry.InvoiceID)

	rec.InvoiceID = &invoiceID
	huge := dec("900.00")
	rec.AppliedAmount = &huge
	_, err = ledger.Ingest(ctx, rec)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestMarkDiscrepancy_OnlyManualMatchClearsIt(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ledger := core.NewReconciliationService(pool)
	matcher := core.NewMatcherService(pool, core.DefaultMatchWindowDays, 20, zerolog.Nop())
	ctx := context.Background()

	acct := ingest(t, ledger, core.SourceAcctSys, "60.00", "2024-05-01", nil)
	_ = ingest(t, ledger, core.SourceFSP, "60.00", "2024-05-01", nil)

	flagged, err := ledger.MarkDiscrepancy(ctx, acct.ID, "customer disputes amount")
	require.NoError(t, err)
	assert.Equal(t, core.MatchDiscrepancy, flagged.MatchStatus)

	res, err := matcher.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.AutoMatched)

	got, err := ledger.GetEntry(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, core.MatchDiscrepancy, got.MatchStatus)

	cleared, err := ledger.ManualMatch(ctx, acct.ID, 1, "carol")
	require.NoError(t, err)
	assert.Equal(t, core.MatchManual, cleared.MatchStatus)
	assert.Equal(t, "customer disputes amount", cleared.Note)
}

func TestSummarize_Totals(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ledger := core.NewReconciliationService(pool)
	ctx := context.Background()

	_ = ingest(t, ledger, core.SourceAcctSys, "100.00", "2024-06-01", nil)
	_ = ingest(t, ledger, core.SourceFSP, "40.00", "2024-06-02", nil)
	_ = ingest(t, ledger, core.SourceFSP, "10.00", "2024-07-02", nil)

	from, to := d("2024-06-01"), d("2024-06-30")
	sum, err := ledger.Summarize(ctx, core.SummaryFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalCount)
	assert.True(t, dec("140").Equal(sum.TotalAmount))
	assert.True(t, dec("40").Equal(sum.NeedsTracking))
	assert.True(t, dec("100").Equal(sum.Undeposited))
}

func TestRegenerateSchedule_ReplacesSlotsWholesale(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ledger := core.NewReconciliationService(pool)
	financing := core.NewFinancingService(pool, 20, zerolog.Nop())
	ctx := context.Background()

	invoiceID := int64(1)
	_ = ingest(t, ledger, core.SourceFSP, "300.00", "2024-01-10", &invoiceID)

	sched, err := financing.SetFinancingPlan(ctx, invoiceID, core.PlanInput{
		MonthlyAmount: dec("300"),
		DueDay:        15,
		StartDate:     d("2024-01-01"),
	})
	require.NoError(t, err)
	require.Len(t, sched.Slots, 4)
	assert.Equal(t, core.SlotPaid, sched.Slots[0].Status)
	assert.Equal(t, core.SlotMissed, sched.Slots[1].Status)
	assert.Equal(t, 3, sched.Projection.PaymentsRemaining)

	paid := core.SlotPaid
	_, err = financing.UpdateExpectedPayment(ctx, sched.Slots[1].ID, core.SlotUpdate{Status: &paid})
	require.NoError(t, err)

	sched, err = financing.RegenerateSchedule(ctx, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, core.SlotMissed, sched.Slots[1].Status, "regeneration discards manual slot edits")

	var rows int
	require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM expected_payments WHERE invoice_id = $1", invoiceID).Scan(&rows))
	assert.Equal(t, 4, rows)

	financed, err := financing.ListFinancedInvoices(ctx)
	require.NoError(t, err)
	require.Len(t, financed, 1)
	assert.Equal(t, invoiceID, financed[0].ID)

	require.NoError(t, financing.RemoveFinancingPlan(ctx, invoiceID))
	_, err = financing.RegenerateSchedule(ctx, invoiceID)
	assert.ErrorIs(t, err, core.ErrNotConfigured)
}

func TestRegenerateSchedule_SplitPaymentCountsAppliedAmount(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ledger := core.NewReconciliationService(pool)
	financing := core.NewFinancingService(pool, 20, zerolog.Nop())
	ctx := context.Background()

	invoiceID := int64(1)
	applied := dec("200.00")
	res, err := ledger.Ingest(ctx, core.PaymentRecord{
		Source:        core.SourceFSP,
		SourceID:      uuid.NewString(),
		Amount:        dec("500.00"),
		AppliedAmount: &applied,
		PaymentDate:   d("2024-01-10"),
		InvoiceID:     &invoiceID,
	})
	require.NoError(t, err)
	assert.True(t, dec("500").Equal(res.Entry.Amount), "the ledger entry keeps the full payment")

	sched, err := financing.SetFinancingPlan(ctx, invoiceID, core.PlanInput{
		MonthlyAmount: dec("300"),
		DueDay:        15,
		StartDate:     d("2024-01-01"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, sched.Slots)
	first := sched.Slots[0]
	assert.Equal(t, core.SlotPartial, first.Status)
	require.NotNil(t, first.AmountPaid)
	assert.True(t, applied.Equal(*first.AmountPaid), "got %s", first.AmountPaid)
}
