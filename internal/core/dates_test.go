package core_test

import (
	"testing"
	"time"

	"receivables/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateInMonth_Clamps(t *testing.T) {
	base := d("2024-01-31")
	assert.Equal(t, d("2024-02-29"), core.DateInMonth(base, 1, 31))
	assert.Equal(t, d("2023-02-28"), core.DateInMonth(d("2023-01-15"), 1, 30))
	assert.Equal(t, d("2025-01-15"), core.DateInMonth(d("2024-11-02"), 2, 15))
	assert.Equal(t, d("2024-02-28"), core.DateInMonth(base, 1, 28))
}

func TestFirstDueDate(t *testing.T) {
	assert.Equal(t, d("2024-01-15"), core.FirstDueDate(d("2024-01-01"), 15))
	assert.Equal(t, d("2024-01-15"), core.FirstDueDate(d("2024-01-15"), 15))
	assert.Equal(t, d("2024-02-15"), core.FirstDueDate(d("2024-01-16"), 15))
	assert.Equal(t, d("2025-01-01"), core.FirstDueDate(d("2024-12-02"), 1))
}

func TestDaysApart(t *testing.T) {
	assert.Equal(t, 3, core.DaysApart(d("2024-03-10"), d("2024-03-13")))
	assert.Equal(t, 3, core.DaysApart(d("2024-03-13"), d("2024-03-10")))
	assert.Equal(t, 1, core.DaysApart(d("2024-02-29"), d("2024-03-01")))

	late := time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, 0, core.DaysApart(late, d("2024-03-10")))
}

func TestParseAndFormatDate(t *testing.T) {
	got, err := core.ParseDate("2024-07-04")
	require.NoError(t, err)
	assert.Equal(t, "2024-07-04", core.FormatDate(got))

	_, err = core.ParseDate("07/04/2024")
	assert.Error(t, err)
}

func TestValidDueDay(t *testing.T) {
	assert.True(t, core.ValidDueDay(1))
	assert.True(t, core.ValidDueDay(28))
	assert.False(t, core.ValidDueDay(0))
	assert.False(t, core.ValidDueDay(29))
}
