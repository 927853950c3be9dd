// Package acctsys reads the accounting system's deposit export.
package acctsys

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"receivables/internal/core"

	"github.com/shopspring/decimal"
)

// Columns of the deposit export, in order. A header row is optional.
var header = []string{"id", "amount", "date", "method", "deposited"}

// ParseDepositsFile opens path and parses it with ParseDeposits.
func ParseDepositsFile(path string) ([]core.PaymentRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file %s: %w", path, err)
	}
	defer f.Close()
	return ParseDeposits(f)
}

// ParseDeposits reads id,amount,date,method,deposited rows into accounting-side
// payment records. Any malformed row fails the whole read with its row number.
func ParseDeposits(r io.Reader) ([]core.PaymentRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(header)
	reader.TrimLeadingSpace = true

	var out []core.PaymentRecord
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV at row %d: %w", row, err)
		}
		if row == 1 && isHeader(record) {
			continue
		}

		rec, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("error parsing row %d: %w", row, err)
		}
		out = append(out, *rec)
	}
	return out, nil
}

func isHeader(record []string) bool {
	for i, h := range header {
		if !strings.EqualFold(strings.TrimSpace(record[i]), h) {
			return false
		}
	}
	return true
}

func parseRow(record []string) (*core.PaymentRecord, error) {
	id := strings.TrimSpace(record[0])
	if id == "" {
		return nil, fmt.Errorf("id is empty: %w", core.ErrInvalidInput)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(record[1]))
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", record[1], core.ErrInvalidInput)
	}
	date, err := core.ParseDate(strings.TrimSpace(record[2]))
	if err != nil {
		return nil, fmt.Errorf("date %q: %w", record[2], core.ErrInvalidInput)
	}
	deposited := false
	if v := strings.TrimSpace(record[4]); v != "" {
		deposited, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("deposited %q: %w", record[4], core.ErrInvalidInput)
		}
	}
	return &core.PaymentRecord{
		Source:      core.SourceAcctSys,
		SourceID:    id,
		Amount:      amount,
		PaymentDate: date,
		Method:      strings.TrimSpace(record[3]),
		Deposited:   deposited,
	}, nil
}
