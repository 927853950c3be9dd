package core

import "errors"

// Error kinds surfaced to callers. Wrap them with fmt.Errorf("...: %w") and
// test with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrNotConfigured      = errors.New("financing plan not configured")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrExternalTimeout    = errors.New("external call timed out")
	ErrPartialSyncFailure = errors.New("partial sync failure")
	ErrSourceUnavailable  = errors.New("field-service source not configured")
)

// BatchErrors collects per-item error strings for batch runs, keeping only the
// first Cap messages and counting the rest.
type BatchErrors struct {
	Cap       int      `json:"-"`
	Messages  []string `json:"messages"`
	Truncated int      `json:"truncated"`
}

func (b *BatchErrors) Add(msg string) {
	if b.Cap > 0 && len(b.Messages) >= b.Cap {
		b.Truncated++
		return
	}
	b.Messages = append(b.Messages, msg)
}

// Count returns the total number of recorded failures, including truncated ones.
func (b *BatchErrors) Count() int {
	return len(b.Messages) + b.Truncated
}
