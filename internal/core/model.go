package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies the external system that reported a payment.
type Source string

const (
	SourceFSP     Source = "fsp"     // field-service platform
	SourceAcctSys Source = "acctsys" // accounting system
)

func (s Source) Valid() bool {
	switch s {
	case SourceFSP, SourceAcctSys:
		return true
	}
	return false
}

// MatchStatus is the reconciliation state of a ledger entry.
type MatchStatus string

const (
	MatchUnmatched     MatchStatus = "unmatched"      // accounting side only
	MatchSTOnly        MatchStatus = "st_only"        // field side only, needs tracking
	MatchPendingReview MatchStatus = "pending_review" // several plausible counterparts
	MatchAuto          MatchStatus = "auto_matched"
	MatchManual        MatchStatus = "manual_matched"
	MatchDiscrepancy   MatchStatus = "discrepancy"
	// MatchLegacy is only read from rows written before auto/manual were split.
	MatchLegacy MatchStatus = "matched"
)

// MatchStatuses lists every status in report order.
func MatchStatuses() []MatchStatus {
	return []MatchStatus{
		MatchUnmatched, MatchSTOnly, MatchPendingReview,
		MatchAuto, MatchManual, MatchDiscrepancy, MatchLegacy,
	}
}

func (s MatchStatus) Valid() bool {
	switch s {
	case MatchUnmatched, MatchSTOnly, MatchPendingReview,
		MatchAuto, MatchManual, MatchDiscrepancy, MatchLegacy:
		return true
	}
	return false
}

// IsSettled reports whether the matcher must leave the entry alone.
func (s MatchStatus) IsSettled() bool {
	switch s {
	case MatchAuto, MatchManual, MatchDiscrepancy, MatchLegacy:
		return true
	case MatchUnmatched, MatchSTOnly, MatchPendingReview:
		return false
	}
	return false
}

// SlotStatus classifies one installment of a financing schedule.
type SlotStatus string

const (
	SlotPending SlotStatus = "pending"
	SlotPaid    SlotStatus = "paid"
	SlotLate    SlotStatus = "late"
	SlotPartial SlotStatus = "partial"
	SlotMissed  SlotStatus = "missed"
)

// SlotStatuses lists every slot status in report order.
func SlotStatuses() []SlotStatus {
	return []SlotStatus{SlotPending, SlotPaid, SlotLate, SlotPartial, SlotMissed}
}

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotPending, SlotPaid, SlotLate, SlotPartial, SlotMissed:
		return true
	}
	return false
}

// IsOpen reports whether the slot is still waiting for money.
func (s SlotStatus) IsOpen() bool {
	switch s {
	case SlotPending, SlotMissed:
		return true
	case SlotPaid, SlotLate, SlotPartial:
		return false
	}
	return false
}

// Invoice is the billing-side view of a customer invoice.
// FSPInvoiceID and FSPCustomerID are nil until the invoice has been resolved
// against the field-service platform.
type Invoice struct {
	ID               int64           `json:"id"`
	Number           string          `json:"number"`
	FSPInvoiceID     *int64          `json:"fsp_invoice_id,omitempty"`
	FSPCustomerID    *int64          `json:"fsp_customer_id,omitempty"`
	CustomerName     string          `json:"customer_name"`
	Total            decimal.Decimal `json:"total"`
	Balance          decimal.Decimal `json:"balance"`
	IssueDate        time.Time       `json:"issue_date"`
	HasFinancingPlan bool            `json:"has_financing_plan"`
}

// FinancingPlan holds in-house financing terms for one invoice.
type FinancingPlan struct {
	InvoiceID     int64           `json:"invoice_id"`
	MonthlyAmount decimal.Decimal `json:"monthly_amount"`
	DueDay        int             `json:"due_day"` // 1..28
	StartDate     time.Time       `json:"start_date"`
	Notes         string          `json:"notes"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AppliedRef is one "applied-to" reference carried by a field-service payment.
// The platform links payments either by invoice id or only by invoice number.
type AppliedRef struct {
	InvoiceID     int64           `json:"invoice_id,omitempty"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
}

// PaymentRecord is a single money movement as seen by one source.
// AppliedAmount is the part of Amount credited to InvoiceID when the payment
// is split across invoices; nil means all of it.
type PaymentRecord struct {
	ID            int64            `json:"id"`
	Source        Source           `json:"source"`
	SourceID      string           `json:"source_id"`
	Amount        decimal.Decimal  `json:"amount"`
	PaymentDate   time.Time        `json:"payment_date"`
	Method        string           `json:"method"`
	InvoiceID     *int64           `json:"invoice_id,omitempty"`
	AppliedAmount *decimal.Decimal `json:"applied_amount,omitempty"`
	Deposited     bool             `json:"deposited"`            // accounting side only
	AppliedTo     []AppliedRef     `json:"applied_to,omitempty"` // field side only, not persisted
	CreatedAt     time.Time        `json:"created_at"`
}

// ReconciliationEntry is one real-world payment in the ledger.
// An entry absorbed by a pairing keeps its row for audit and points at the
// surviving entry through MergedInto.
type ReconciliationEntry struct {
	ID               int64           `json:"id"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentDate      time.Time       `json:"payment_date"`
	Method           string          `json:"method"`
	AcctSysPaymentID *int64          `json:"acctsys_payment_id,omitempty"`
	FSPPaymentID     *int64          `json:"fsp_payment_id,omitempty"`
	InvoiceID        *int64          `json:"invoice_id,omitempty"`
	IsDeposited      bool            `json:"is_deposited"`
	MatchStatus      MatchStatus     `json:"match_status"`
	MatchedAt        *time.Time      `json:"matched_at,omitempty"`
	MatchedBy        *string         `json:"matched_by,omitempty"` // nil when the matcher bound it
	MergedInto       *int64          `json:"merged_into,omitempty"`
	Note             string          `json:"note,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ExpectedPayment is one slot of a generated financing schedule.
type ExpectedPayment struct {
	ID              int64            `json:"id"`
	InvoiceID       int64            `json:"invoice_id"`
	Sequence        int              `json:"sequence"` // 1-based
	DueDate         time.Time        `json:"due_date"`
	Amount          decimal.Decimal  `json:"amount"`
	Status          SlotStatus       `json:"status"`
	PaymentDate     *time.Time       `json:"payment_date,omitempty"`
	AmountPaid      *decimal.Decimal `json:"amount_paid,omitempty"`
	PaymentRecordID *int64           `json:"payment_record_id,omitempty"`
}

// Projection is derived from a schedule for quick display.
type Projection struct {
	NextDueDate         *time.Time         `json:"next_due_date,omitempty"`
	ProjectedPayoffDate *time.Time         `json:"projected_payoff_date,omitempty"`
	PaymentsRemaining   int                `json:"payments_remaining"`
	TotalScheduled      decimal.Decimal    `json:"total_scheduled"`
	TotalPaid           decimal.Decimal    `json:"total_paid"`
	StatusCounts        map[SlotStatus]int `json:"status_counts"`
}

// Schedule bundles an invoice, its plan and its current slots.
type Schedule struct {
	Invoice    Invoice           `json:"invoice"`
	Plan       FinancingPlan     `json:"plan"`
	Slots      []ExpectedPayment `json:"slots"`
	Projection Projection        `json:"projection"`
}

// FSPInvoice is the part of a field-service invoice the sync needs.
type FSPInvoice struct {
	ID         int64  `json:"id"`
	Number     string `json:"number"`
	CustomerID int64  `json:"customer_id"`
}
