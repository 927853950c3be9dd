package core

import "sort"

// DefaultMatchWindowDays is how far apart the two sides' payment dates may be.
const DefaultMatchWindowDays = 3

// MatchOutcome is the matcher's verdict for one accounting-side entry.
type MatchOutcome int

const (
	OutcomeNoCandidate MatchOutcome = iota
	OutcomeAutoMatch
	OutcomeAmbiguous
)

func (o MatchOutcome) String() string {
	switch o {
	case OutcomeNoCandidate:
		return "no_candidate"
	case OutcomeAutoMatch:
		return "auto_match"
	case OutcomeAmbiguous:
		return "ambiguous"
	}
	return "unknown"
}

// MatchDecision is a proposal for one accounting-side entry.
type MatchDecision struct {
	EntryID      int64
	Outcome      MatchOutcome
	CandidateIDs []int64 // field-side entry ids, ascending
}

// eligibleAcctSys reports whether an accounting-side entry takes part in a run.
func eligibleAcctSys(e ReconciliationEntry) bool {
	if e.MergedInto != nil || e.AcctSysPaymentID == nil || e.FSPPaymentID != nil {
		return false
	}
	return e.MatchStatus == MatchUnmatched || e.MatchStatus == MatchPendingReview
}

// eligibleFSP reports whether a field-side entry can be offered as a candidate.
func eligibleFSP(e ReconciliationEntry) bool {
	return e.MergedInto == nil && e.FSPPaymentID != nil && e.AcctSysPaymentID == nil &&
		e.MatchStatus == MatchSTOnly
}

// ProposeMatches pairs accounting-side entries with field-side ones. A pair
// is proposed only when the amounts are equal, the dates fall within
// windowDays, and the choice is unique in both directions: the accounting
// entry has exactly one candidate and that candidate is claimed by no other
// accounting entry. Everything else with candidates is ambiguous.
// Settled and merged entries are ignored, so a re-run is a no-op for them.
func ProposeMatches(acct, fsp []ReconciliationEntry, windowDays int) []MatchDecision {
	if windowDays < 0 {
		windowDays = 0
	}

	var pool []ReconciliationEntry
	for _, f := range fsp {
		if eligibleFSP(f) {
			pool = append(pool, f)
		}
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })

	var entries []ReconciliationEntry
	for _, e := range acct {
		if eligibleAcctSys(e) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	candidates := make(map[int64][]int64, len(entries))
	claims := make(map[int64]int, len(pool))
	for _, e := range entries {
		for _, f := range pool {
			if !AmountsEqual(e.Amount, f.Amount) {
				continue
			}
			if DaysApart(e.PaymentDate, f.PaymentDate) > windowDays {
				continue
			}
			candidates[e.ID] = append(candidates[e.ID], f.ID)
			claims[f.ID]++
		}
	}

	decisions := make([]MatchDecision, 0, len(entries))
	for _, e := range entries {
		c := candidates[e.ID]
		d := MatchDecision{EntryID: e.ID, CandidateIDs: c}
		switch {
		case len(c) == 0:
			d.Outcome = OutcomeNoCandidate
		case len(c) == 1 && claims[c[0]] == 1:
			d.Outcome = OutcomeAutoMatch
		default:
			d.Outcome = OutcomeAmbiguous
		}
		decisions = append(decisions, d)
	}
	return decisions
}
