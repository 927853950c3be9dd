package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, enabling shared query helpers.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const entryColumns = `id, amount, payment_date, method, acctsys_payment_id, fsp_payment_id, invoice_id,
	is_deposited, match_status, matched_at, matched_by, merged_into, note, created_at, updated_at`

const invoiceColumns = `id, number, fsp_invoice_id, fsp_customer_id, customer_name, total, balance,
	issue_date, has_financing_plan`

const slotColumns = `id, invoice_id, sequence, due_date, amount, status, payment_date, amount_paid, payment_record_id`

func scanEntry(row pgx.Row) (*ReconciliationEntry, error) {
	var e ReconciliationEntry
	var status string
	err := row.Scan(&e.ID, &e.Amount, &e.PaymentDate, &e.Method, &e.AcctSysPaymentID, &e.FSPPaymentID,
		&e.InvoiceID, &e.IsDeposited, &status, &e.MatchedAt, &e.MatchedBy, &e.MergedInto, &e.Note,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.MatchStatus = MatchStatus(status)
	return &e, nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.FSPInvoiceID, &inv.FSPCustomerID, &inv.CustomerName,
		&inv.Total, &inv.Balance, &inv.IssueDate, &inv.HasFinancingPlan)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func scanSlot(row pgx.Row) (*ExpectedPayment, error) {
	var s ExpectedPayment
	var status string
	err := row.Scan(&s.ID, &s.InvoiceID, &s.Sequence, &s.DueDate, &s.Amount, &status,
		&s.PaymentDate, &s.AmountPaid, &s.PaymentRecordID)
	if err != nil {
		return nil, err
	}
	s.Status = SlotStatus(status)
	return &s, nil
}

// getEntry loads one entry; pass lock=true inside a transaction to hold it FOR UPDATE.
func getEntry(ctx context.Context, q pgxQuerier, id int64, lock bool) (*ReconciliationEntry, error) {
	sql := "SELECT " + entryColumns + " FROM reconciliation_entries WHERE id = $1"
	if lock {
		sql += " FOR UPDATE"
	}
	e, err := scanEntry(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("entry %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch entry %d: %w", id, err)
	}
	return e, nil
}

func getInvoice(ctx context.Context, q pgxQuerier, id int64, lock bool) (*Invoice, error) {
	sql := "SELECT " + invoiceColumns + " FROM invoices WHERE id = $1"
	if lock {
		sql += " FOR UPDATE"
	}
	inv, err := scanInvoice(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invoice %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch invoice %d: %w", id, err)
	}
	return inv, nil
}

func queryEntries(ctx context.Context, q pgxQuerier, sql string, args ...any) ([]ReconciliationEntry, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []ReconciliationEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	return entries, nil
}
