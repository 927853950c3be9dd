package app

import (
	"context"

	"receivables/internal/core"
)

// ApplicationService is the single interface all adapters (CLI, Web) call.
// It decouples presentation from business logic. Implementations must contain
// no display logic of any kind.
type ApplicationService interface {
	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error

	// IngestPayment records a payment from either source. Repeats are no-ops.
	IngestPayment(ctx context.Context, req IngestPaymentRequest) (*IngestResult, error)

	// ListEntries returns live ledger entries matching the request filters.
	ListEntries(ctx context.Context, req ListEntriesRequest) (*EntryListResult, error)

	// GetEntry returns one ledger entry by id.
	GetEntry(ctx context.Context, entryID int64) (*core.ReconciliationEntry, error)

	// ManualMatch binds an entry to an invoice on an operator's say-so.
	ManualMatch(ctx context.Context, req ManualMatchRequest) (*core.ReconciliationEntry, error)

	// MatchPair binds an accounting-side entry to a field-side entry.
	MatchPair(ctx context.Context, req MatchPairRequest) (*core.ReconciliationEntry, error)

	// MarkDiscrepancy flags an entry for investigation.
	MarkDiscrepancy(ctx context.Context, req DiscrepancyRequest) (*core.ReconciliationEntry, error)

	// Summarize aggregates the ledger for a date range.
	Summarize(ctx context.Context, req SummaryRequest) (*core.Summary, error)

	// RunMatcher runs one automatic matching pass.
	RunMatcher(ctx context.Context) (*core.MatchRunResult, error)

	// SetFinancingPlan creates or replaces an invoice's plan and returns the new schedule.
	SetFinancingPlan(ctx context.Context, req SetPlanRequest) (*core.Schedule, error)

	// RemoveFinancingPlan drops the plan and all of its slots.
	RemoveFinancingPlan(ctx context.Context, invoiceID int64) error

	// RegenerateSchedule rebuilds one invoice's slots from its plan and payments.
	RegenerateSchedule(ctx context.Context, invoiceID int64) (*core.Schedule, error)

	// RegenerateAll rebuilds every financed invoice's slots.
	RegenerateAll(ctx context.Context) (*core.RegenerateResult, error)

	// GetSchedule returns an invoice's slots and projection.
	GetSchedule(ctx context.Context, invoiceID int64) (*core.Schedule, error)

	// ListFinancedInvoices returns every invoice with a financing plan.
	ListFinancedInvoices(ctx context.Context) ([]core.Invoice, error)

	// UpdateExpectedPayment corrects one slot by hand.
	UpdateExpectedPayment(ctx context.Context, req UpdateSlotRequest) (*core.ExpectedPayment, error)

	// SyncFinancedPayments pulls new field-service payments for financed invoices.
	// Returns ErrSyncDisabled when no field-service credentials are configured.
	SyncFinancedPayments(ctx context.Context) (*core.SyncResult, error)

	// ImportDeposits ingests an accounting-system deposit export.
	ImportDeposits(ctx context.Context, records []core.PaymentRecord) (*core.ImportResult, error)
}
