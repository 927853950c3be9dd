package app

import "receivables/internal/core"

// IngestResult reports one ingested payment.
type IngestResult struct {
	Entry   *core.ReconciliationEntry `json:"entry"`
	Created bool                      `json:"created"`
	Linked  bool                      `json:"linked,omitempty"` // repeat that tied the entry to an invoice
}

// EntryListResult holds ledger entries for display.
type EntryListResult struct {
	Entries []core.ReconciliationEntry `json:"entries"`
	Count   int                        `json:"count"`
}
