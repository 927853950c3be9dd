package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ValidatePlan checks that a plan can drive schedule generation.
func ValidatePlan(plan *FinancingPlan) error {
	if plan == nil {
		return ErrNotConfigured
	}
	if !plan.MonthlyAmount.IsPositive() {
		return fmt.Errorf("%w: monthly amount must be positive, got %s", ErrNotConfigured, plan.MonthlyAmount.StringFixed(2))
	}
	if !ValidDueDay(plan.DueDay) {
		return fmt.Errorf("%w: due day must be between %d and %d, got %d", ErrNotConfigured, MinDueDay, MaxDueDay, plan.DueDay)
	}
	if plan.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrNotConfigured)
	}
	return nil
}

// SortPaymentsFIFO returns a copy of payments in arrival order: payment date
// ascending, then source id so equal dates stay deterministic.
func SortPaymentsFIFO(payments []PaymentRecord) []PaymentRecord {
	out := make([]PaymentRecord, len(payments))
	copy(out, payments)
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := DateOnly(out[i].PaymentDate), DateOnly(out[j].PaymentDate)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return out[i].SourceID < out[j].SourceID
	})
	return out
}

// BuildSchedule computes the installment calendar for one financed invoice
// and binds payments to slots strictly by arrival order. A payment's amount
// never decides which slot it fills; it only decides partial vs. full.
// Payments beyond the last slot are left unbound.
func BuildSchedule(inv Invoice, plan *FinancingPlan, payments []PaymentRecord, today time.Time) ([]ExpectedPayment, error) {
	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}

	n := InstallmentCount(inv.Total, plan.MonthlyAmount)
	anchor := DateOnly(plan.StartDate)
	if !inv.IssueDate.IsZero() {
		anchor = laterOf(anchor, DateOnly(inv.IssueDate))
	}
	first := FirstDueDate(anchor, plan.DueDay)
	today = DateOnly(today)

	queue := SortPaymentsFIFO(payments)
	remaining := inv.Total
	slots := make([]ExpectedPayment, 0, n)

	for i := 0; i < n && remaining.IsPositive(); i++ {
		amount := decimal.Min(plan.MonthlyAmount, remaining)
		if i == n-1 {
			amount = remaining
		}
		slot := ExpectedPayment{
			InvoiceID: inv.ID,
			Sequence:  i + 1,
			DueDate:   DateInMonth(first, i, plan.DueDay),
			Amount:    amount,
		}

		if len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			paidOn := DateOnly(p.PaymentDate)
			paid := p.Amount

			slot.Status = SlotPaid
			if paidOn.After(slot.DueDate) {
				slot.Status = SlotLate
			}
			if IsPartial(paid, amount) {
				slot.Status = SlotPartial
			}
			slot.PaymentDate = &paidOn
			slot.AmountPaid = &paid
			if p.ID != 0 {
				id := p.ID
				slot.PaymentRecordID = &id
			}
		} else if slot.DueDate.Before(today) {
			slot.Status = SlotMissed
		} else {
			slot.Status = SlotPending
		}

		slots = append(slots, slot)
		remaining = remaining.Sub(amount)
	}

	return slots, nil
}

// Project derives display fields from a generated schedule.
func Project(inv Invoice, plan FinancingPlan, slots []ExpectedPayment) Projection {
	p := Projection{
		PaymentsRemaining: PaymentsRemaining(inv.Balance, plan.MonthlyAmount),
		TotalScheduled:    decimal.Zero,
		TotalPaid:         decimal.Zero,
		StatusCounts:      make(map[SlotStatus]int, len(SlotStatuses())),
	}
	for _, s := range SlotStatuses() {
		p.StatusCounts[s] = 0
	}

	for i := range slots {
		s := slots[i]
		p.TotalScheduled = p.TotalScheduled.Add(s.Amount)
		if s.AmountPaid != nil {
			p.TotalPaid = p.TotalPaid.Add(*s.AmountPaid)
		}
		p.StatusCounts[s.Status]++
		if p.NextDueDate == nil && s.Status.IsOpen() {
			due := s.DueDate
			p.NextDueDate = &due
		}
	}
	if len(slots) > 0 {
		last := slots[len(slots)-1].DueDate
		p.ProjectedPayoffDate = &last
	}
	return p
}
