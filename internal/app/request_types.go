package app

import (
	"github.com/shopspring/decimal"
)

// IngestPaymentRequest is the input for recording one payment.
// PaymentDate is YYYY-MM-DD.
type IngestPaymentRequest struct {
	Source      string          `json:"source"`
	SourceID    string          `json:"source_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate string          `json:"payment_date"`
	Method      string          `json:"method"`
	InvoiceID   *int64          `json:"invoice_id,omitempty"`
	Deposited   bool            `json:"deposited"`
}

// ListEntriesRequest filters the ledger. Empty strings mean "any".
type ListEntriesRequest struct {
	Status string
	Method string
	From   string
	To     string
	Limit  int
}

// ManualMatchRequest binds an entry to an invoice.
type ManualMatchRequest struct {
	EntryID   int64
	InvoiceID int64
	Actor     string
}

// MatchPairRequest binds two one-sided entries.
type MatchPairRequest struct {
	AcctEntryID int64
	FSPEntryID  int64
	Actor       string
}

// DiscrepancyRequest flags an entry.
type DiscrepancyRequest struct {
	EntryID int64
	Note    string
}

// SummaryRequest bounds a ledger summary. Empty strings mean "any".
type SummaryRequest struct {
	From     string
	To       string
	Method   string
	Statuses []string
}

// SetPlanRequest is the input for creating or replacing a financing plan.
// StartDate is YYYY-MM-DD.
type SetPlanRequest struct {
	InvoiceID     int64
	MonthlyAmount decimal.Decimal
	DueDay        int
	StartDate     string
	Notes         string
}

// UpdateSlotRequest corrects one expected payment. Nil fields are unchanged.
type UpdateSlotRequest struct {
	SlotID      int64
	Status      *string
	PaymentDate *string
	AmountPaid  *decimal.Decimal
}
