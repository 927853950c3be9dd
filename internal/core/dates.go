package core

import "time"

const (
	MinDueDay = 1
	MaxDueDay = 28

	dateLayout = "2006-01-02"
)

// ValidDueDay reports whether d can be used as a monthly due day.
func ValidDueDay(d int) bool {
	return d >= MinDueDay && d <= MaxDueDay
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DateInMonth returns day-of-month day in the month that is offset months
// after t's month, clamped to that month's last day.
func DateInMonth(t time.Time, offset, day int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, offset, 0)
	if last := daysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// FirstDueDate is the first occurrence of dueDay on or after start.
func FirstDueDate(start time.Time, dueDay int) time.Time {
	start = DateOnly(start)
	if start.Day() <= dueDay {
		return DateInMonth(start, 0, dueDay)
	}
	return DateInMonth(start, 1, dueDay)
}

// DaysApart returns the absolute number of calendar days between a and b.
func DaysApart(a, b time.Time) int {
	d := int(DateOnly(a).Sub(DateOnly(b)).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
