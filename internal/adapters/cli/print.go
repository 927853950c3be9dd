package cli

import (
	"fmt"
	"io"
	"strings"

	"receivables/internal/core"
)

func printSchedule(w io.Writer, s *core.Schedule) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 66))
	fmt.Fprintf(w, "  FINANCING SCHEDULE  %s  %s\n", s.Invoice.Number, s.Invoice.CustomerName)
	fmt.Fprintf(w, "  Total %s  Balance %s  Monthly %s on day %d\n",
		s.Invoice.Total.StringFixed(2), s.Invoice.Balance.StringFixed(2),
		s.Plan.MonthlyAmount.StringFixed(2), s.Plan.DueDay)
	fmt.Fprintln(w, strings.Repeat("=", 66))
	fmt.Fprintf(w, "  %-4s %-10s %12s %-8s %-10s %12s\n", "#", "DUE", "AMOUNT", "STATUS", "PAID ON", "PAID")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 62))
	for _, slot := range s.Slots {
		paidOn, paid := "", ""
		if slot.PaymentDate != nil {
			paidOn = core.FormatDate(*slot.PaymentDate)
		}
		if slot.AmountPaid != nil {
			paid = slot.AmountPaid.StringFixed(2)
		}
		fmt.Fprintf(w, "  %-4d %-10s %12s %-8s %-10s %12s\n",
			slot.Sequence, core.FormatDate(slot.DueDate), slot.Amount.StringFixed(2), slot.Status, paidOn, paid)
	}
	fmt.Fprintln(w, "  "+strings.Repeat("-", 62))

	p := s.Projection
	fmt.Fprintf(w, "  Paid %s of %s, %d payments remaining\n",
		p.TotalPaid.StringFixed(2), p.TotalScheduled.StringFixed(2), p.PaymentsRemaining)
	if p.NextDueDate != nil {
		fmt.Fprintf(w, "  Next due %s\n", core.FormatDate(*p.NextDueDate))
	}
	if p.ProjectedPayoffDate != nil {
		fmt.Fprintf(w, "  Projected payoff %s\n", core.FormatDate(*p.ProjectedPayoffDate))
	}
	fmt.Fprintln(w)
}

func printSummary(w io.Writer, s *core.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "  LEDGER SUMMARY  %s\n", summaryRange(s))
	fmt.Fprintln(w, strings.Repeat("=", 50))
	printBuckets(w, "STATUS", s.ByStatus)
	printBuckets(w, "METHOD", s.ByMethod)
	fmt.Fprintf(w, "  %-22s %8d %16s\n", "TOTAL", s.TotalCount, s.TotalAmount.StringFixed(2))
	fmt.Fprintf(w, "  %-31s %16s\n", "Needs tracking", s.NeedsTracking.StringFixed(2))
	fmt.Fprintf(w, "  %-31s %16s\n", "Undeposited", s.Undeposited.StringFixed(2))
	fmt.Fprintln(w)
}

func printBuckets(w io.Writer, title string, buckets []core.BucketTotal) {
	fmt.Fprintf(w, "  %-22s %8s %16s\n", title, "COUNT", "AMOUNT")
	for _, b := range buckets {
		fmt.Fprintf(w, "  %-22s %8d %16s\n", b.Key, b.Count, b.Amount.StringFixed(2))
	}
	fmt.Fprintln(w, "  "+strings.Repeat("-", 48))
}

func summaryRange(s *core.Summary) string {
	from, to := "start", "today"
	if s.From != nil {
		from = core.FormatDate(*s.From)
	}
	if s.To != nil {
		to = core.FormatDate(*s.To)
	}
	return from + " to " + to
}
