package core_test

import (
	"fmt"
	"testing"
	"time"

	"receivables/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) time.Time {
	t, err := core.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func payment(id int64, amount, date string) core.PaymentRecord {
	return core.PaymentRecord{
		ID:          id,
		Source:      core.SourceFSP,
		SourceID:    fmt.Sprintf("p%d", id),
		Amount:      dec(amount),
		PaymentDate: d(date),
	}
}

func thousandOverThreeHundred() (core.Invoice, *core.FinancingPlan) {
	inv := core.Invoice{ID: 1, Number: "INV-1", Total: dec("1000"), Balance: dec("700"), IssueDate: d("2024-01-01")}
	plan := &core.FinancingPlan{InvoiceID: 1, MonthlyAmount: dec("300"), DueDay: 15, StartDate: d("2024-01-01")}
	return inv, plan
}

func TestBuildSchedule_ReferenceScenario(t *testing.T) {
	inv, plan := thousandOverThreeHundred()
	payments := []core.PaymentRecord{payment(11, "300", "2024-01-10")}

	slots, err := core.BuildSchedule(inv, plan, payments, d("2024-02-01"))
	require.NoError(t, err)
	require.Len(t, slots, 4)

	wantAmounts := []string{"300", "300", "300", "100"}
	wantDue := []string{"2024-01-15", "2024-02-15", "2024-03-15", "2024-04-15"}
	for i, s := range slots {
		assert.Equal(t, i+1, s.Sequence)
		assert.True(t, dec(wantAmounts[i]).Equal(s.Amount), "slot %d amount %s", i+1, s.Amount)
		assert.Equal(t, d(wantDue[i]), s.DueDate)
	}

	assert.Equal(t, core.SlotPaid, slots[0].Status)
	require.NotNil(t, slots[0].PaymentRecordID)
	assert.Equal(t, int64(11), *slots[0].PaymentRecordID)
	assert.Equal(t, d("2024-01-10"), *slots[0].PaymentDate)
	for _, s := range slots[1:] {
		assert.Equal(t, core.SlotPending, s.Status)
		assert.Nil(t, s.PaymentRecordID)
	}

	proj := core.Project(inv, *plan, slots)
	assert.Equal(t, 3, proj.PaymentsRemaining)
	assert.True(t, dec("1000").Equal(proj.TotalScheduled))
	assert.True(t, dec("300").Equal(proj.TotalPaid))
	require.NotNil(t, proj.NextDueDate)
	assert.Equal(t, d("2024-02-15"), *proj.NextDueDate)
	require.NotNil(t, proj.ProjectedPayoffDate)
	assert.Equal(t, d("2024-04-15"), *proj.ProjectedPayoffDate)
	assert.Equal(t, 1, proj.StatusCounts[core.SlotPaid])
	assert.Equal(t, 3, proj.StatusCounts[core.SlotPending])
}

func TestBuildSchedule_SlotsSumToTotal(t *testing.T) {
	cases := []struct{ total, monthly string }{
		{"1000", "300"},
		{"999.99", "100"},
		{"1200", "100"},
		{"50", "300"},
		{"1000.01", "333.33"},
	}
	for _, c := range cases {
		inv := core.Invoice{ID: 1, Total: dec(c.total)}
		plan := &core.FinancingPlan{MonthlyAmount: dec(c.monthly), DueDay: 1, StartDate: d("2024-01-01")}

		slots, err := core.BuildSchedule(inv, plan, nil, d("2024-01-01"))
		require.NoError(t, err)
		assert.Len(t, slots, core.InstallmentCount(inv.Total, plan.MonthlyAmount))

		sum := decimal.Zero
		for _, s := range slots {
			assert.True(t, s.Amount.IsPositive())
			assert.True(t, s.Amount.LessThanOrEqual(plan.MonthlyAmount))
			sum = sum.Add(s.Amount)
		}
		assert.True(t, inv.Total.Equal(sum), "total %s monthly %s: sum %s", c.total, c.monthly, sum)
	}
}

// Binding is by arrival order only: a small early payment takes slot 1 even
// though it would fully pay the smaller slot 2.
func TestBuildSchedule_FIFONotBestFit(t *testing.T) {
	inv := core.Invoice{ID: 1, Total: dec("150")}
	plan := &core.FinancingPlan{MonthlyAmount: dec("100"), DueDay: 15, StartDate: d("2024-01-01")}
	payments := []core.PaymentRecord{
		payment(2, "100", "2024-02-10"),
		payment(1, "50", "2024-01-10"),
	}

	slots, err := core.BuildSchedule(inv, plan, payments, d("2024-03-01"))
	require.NoError(t, err)
	require.Len(t, slots, 2)

	assert.Equal(t, core.SlotPartial, slots[0].Status)
	assert.True(t, dec("50").Equal(*slots[0].AmountPaid))
	assert.Equal(t, int64(1), *slots[0].PaymentRecordID)

	assert.Equal(t, core.SlotPaid, slots[1].Status)
	assert.True(t, dec("50").Equal(slots[1].Amount))
	assert.Equal(t, int64(2), *slots[1].PaymentRecordID)
}

func TestBuildSchedule_AssignsByPositionNotAmount(t *testing.T) {
	inv := core.Invoice{ID: 1, Total: dec("150")}
	plan := &core.FinancingPlan{MonthlyAmount: dec("100"), DueDay: 15, StartDate: d("2024-01-01")}
	payments := []core.PaymentRecord{
		payment(1, "100", "2024-01-10"),
		payment(2, "50", "2024-02-10"),
	}

	slots, err := core.BuildSchedule(inv, plan, payments, d("2024-03-01"))
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, int64(1), *slots[0].PaymentRecordID)
	assert.Equal(t, int64(2), *slots[1].PaymentRecordID)
	assert.Equal(t, core.SlotPaid, slots[0].Status)
	assert.Equal(t, core.SlotPaid, slots[1].Status)

	// Reversed arrival: the 50 lands in the 100 slot and the 100 overpays slot 2.
	payments[0].PaymentDate, payments[1].PaymentDate = d("2024-02-10"), d("2024-01-10")
	slots, err = core.BuildSchedule(inv, plan, payments, d("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), *slots[0].PaymentRecordID)
	assert.Equal(t, core.SlotPartial, slots[0].Status)
	assert.Equal(t, int64(1), *slots[1].PaymentRecordID)
	assert.Equal(t, core.SlotPaid, slots[1].Status)
}

func TestBuildSchedule_StatusClassification(t *testing.T) {
	inv := core.Invoice{ID: 1, Total: dec("400")}
	plan := &core.FinancingPlan{MonthlyAmount: dec("100"), DueDay: 15, StartDate: d("2024-01-01")}
	payments := []core.PaymentRecord{
		payment(1, "100", "2024-01-15"), // on the due date
		payment(2, "100", "2024-02-20"), // after the due date
		payment(3, "99.50", "2024-03-01"),
	}

	slots, err := core.BuildSchedule(inv, plan, payments, d("2024-05-01"))
	require.NoError(t, err)
	require.Len(t, slots, 4)

	assert.Equal(t, core.SlotPaid, slots[0].Status)
	assert.Equal(t, core.SlotLate, slots[1].Status)
	assert.Equal(t, core.SlotPaid, slots[2].Status, "a 99.5 percent payment is within rounding")
	assert.Equal(t, core.SlotMissed, slots[3].Status)
	assert.Nil(t, slots[3].PaymentDate)
}

func TestBuildSchedule_PartialWinsOverLate(t *testing.T) {
	inv := core.Invoice{ID: 1, Total: dec("100")}
	plan := &core.FinancingPlan{MonthlyAmount: dec("100"), DueDay: 1, StartDate: d("2024-01-01")}

	slots, err := core.BuildSchedule(inv, plan, []core.PaymentRecord{payment(1, "40", "2024-01-20")}, d("2024-02-01"))
	require.NoError(t, err)
	assert.Equal(t, core.SlotPartial, slots[0].Status)
}

func TestBuildSchedule_ExtraPaymentsStayUnbound(t *testing.T) {
	inv := core.Invoice{ID: 1, Total: dec("200")}
	plan := &core.FinancingPlan{MonthlyAmount: dec("100"), DueDay: 10, StartDate: d("2024-01-01")}
	payments := []core.PaymentRecord{
		payment(1, "100", "2024-01-05"),
		payment(2, "100", "2024-02-05"),
		payment(3, "100", "2024-03-05"),
	}

	slots, err := core.BuildSchedule(inv, plan, payments, d("2024-04-01"))
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, int64(2), *slots[1].PaymentRecordID)
}

func TestBuildSchedule_AnchorsOnLaterOfStartAndIssue(t *testing.T) {
	inv := core.Invoice{ID: 1, Total: dec("200"), IssueDate: d("2024-03-20")}
	plan := &core.FinancingPlan{MonthlyAmount: dec("100"), DueDay: 15, StartDate: d("2024-01-01")}

	slots, err := core.BuildSchedule(inv, plan, nil, d("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, d("2024-04-15"), slots[0].DueDate)
	assert.Equal(t, d("2024-05-15"), slots[1].DueDate)
}

func TestBuildSchedule_EqualDatesOrderedBySourceID(t *testing.T) {
	inv := core.Invoice{ID: 1, Total: dec("200")}
	plan := &core.FinancingPlan{MonthlyAmount: dec("100"), DueDay: 15, StartDate: d("2024-01-01")}
	b := payment(2, "100", "2024-01-10")
	b.SourceID = "b"
	a := payment(1, "40", "2024-01-10")
	a.SourceID = "a"

	slots, err := core.BuildSchedule(inv, plan, []core.PaymentRecord{b, a}, d("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), *slots[0].PaymentRecordID)
	assert.Equal(t, int64(2), *slots[1].PaymentRecordID)
}

func TestBuildSchedule_RejectsBadPlan(t *testing.T) {
	inv := core.Invoice{ID: 1, Total: dec("100")}
	tests := []struct {
		name string
		plan *core.FinancingPlan
	}{
		{"nil plan", nil},
		{"zero monthly", &core.FinancingPlan{MonthlyAmount: decimal.Zero, DueDay: 1, StartDate: d("2024-01-01")}},
		{"due day 29", &core.FinancingPlan{MonthlyAmount: dec("10"), DueDay: 29, StartDate: d("2024-01-01")}},
		{"due day 0", &core.FinancingPlan{MonthlyAmount: dec("10"), DueDay: 0, StartDate: d("2024-01-01")}},
		{"no start", &core.FinancingPlan{MonthlyAmount: dec("10"), DueDay: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := core.BuildSchedule(inv, tt.plan, nil, d("2024-01-01"))
			assert.ErrorIs(t, err, core.ErrNotConfigured)
		})
	}
}

func TestBuildSchedule_Deterministic(t *testing.T) {
	inv, plan := thousandOverThreeHundred()
	payments := []core.PaymentRecord{payment(2, "300", "2024-02-14"), payment(1, "300", "2024-01-10")}

	first, err := core.BuildSchedule(inv, plan, payments, d("2024-03-01"))
	require.NoError(t, err)
	second, err := core.BuildSchedule(inv, plan, []core.PaymentRecord{payments[1], payments[0]}, d("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
