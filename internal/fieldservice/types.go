package fieldservice

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"receivables/internal/core"

	"github.com/shopspring/decimal"
)

type paymentsPage struct {
	Data    []paymentDTO `json:"data"`
	HasMore bool         `json:"hasMore"`
}

type paymentDTO struct {
	ID        int64           `json:"id"`
	Total     decimal.Decimal `json:"total"`
	Date      string          `json:"date"`
	Type      string          `json:"type"`
	AppliedTo []appliedDTO    `json:"appliedTo"`
}

type appliedDTO struct {
	AppliedTo                int64           `json:"appliedTo"` // invoice id
	AppliedAmount            decimal.Decimal `json:"appliedAmount"`
	AppliedToReferenceNumber string          `json:"appliedToReferenceNumber"`
}

type invoicesPage struct {
	Data []invoiceDTO `json:"data"`
}

type invoiceDTO struct {
	ID              int64  `json:"id"`
	ReferenceNumber string `json:"referenceNumber"`
	Customer        struct {
		ID int64 `json:"id"`
	} `json:"customer"`
}

func (p paymentDTO) toRecord() (core.PaymentRecord, error) {
	date, err := parseDate(p.Date)
	if err != nil {
		return core.PaymentRecord{}, err
	}
	rec := core.PaymentRecord{
		Source:      core.SourceFSP,
		SourceID:    strconv.FormatInt(p.ID, 10),
		Amount:      p.Total,
		PaymentDate: date,
		Method:      strings.TrimSpace(p.Type),
	}
	for _, a := range p.AppliedTo {
		rec.AppliedTo = append(rec.AppliedTo, core.AppliedRef{
			InvoiceID:     a.AppliedTo,
			InvoiceNumber: a.AppliedToReferenceNumber,
			Amount:        a.AppliedAmount,
		})
	}
	return rec, nil
}

// parseDate accepts the platform's RFC 3339 timestamps and bare dates.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return core.DateOnly(t), nil
	}
	if len(s) >= 10 {
		if t, err := core.ParseDate(s[:10]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised payment date %q", s)
}
