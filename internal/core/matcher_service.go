package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// MatcherService runs the automatic matcher over the live ledger.
type MatcherService interface {
	Run(ctx context.Context) (*MatchRunResult, error)
}

// MatchRunResult reports one matcher run.
type MatchRunResult struct {
	Examined      int         `json:"examined"`
	AutoMatched   int         `json:"auto_matched"`
	PendingReview int         `json:"pending_review"`
	Unmatched     int         `json:"unmatched"`
	Skipped       int         `json:"skipped"` // changed by someone else mid-run
	Errors        BatchErrors `json:"errors"`
}

type matcherService struct {
	pool       *pgxpool.Pool
	windowDays int
	errorCap   int
	log        zerolog.Logger
	now        func() time.Time
}

func NewMatcherService(pool *pgxpool.Pool, windowDays, errorCap int, log zerolog.Logger) MatcherService {
	return &matcherService{
		pool:       pool,
		windowDays: windowDays,
		errorCap:   errorCap,
		log:        log.With().Str("component", "matcher").Logger(),
		now:        time.Now,
	}
}

func (s *matcherService) Run(ctx context.Context) (*MatchRunResult, error) {
	acct, err := queryEntries(ctx, s.pool, `
		SELECT `+entryColumns+`
		FROM reconciliation_entries
		WHERE merged_into IS NULL
		  AND acctsys_payment_id IS NOT NULL AND fsp_payment_id IS NULL
		  AND match_status = ANY($1)
	`, []string{string(MatchUnmatched), string(MatchPendingReview)})
	if err != nil {
		return nil, err
	}
	fsp, err := queryEntries(ctx, s.pool, `
		SELECT `+entryColumns+`
		FROM reconciliation_entries
		WHERE merged_into IS NULL
		  AND fsp_payment_id IS NOT NULL AND acctsys_payment_id IS NULL
		  AND match_status = $1
	`, string(MatchSTOnly))
	if err != nil {
		return nil, err
	}

	res := &MatchRunResult{Errors: BatchErrors{Cap: s.errorCap}}
	current := make(map[int64]MatchStatus, len(acct))
	for _, e := range acct {
		current[e.ID] = e.MatchStatus
	}

	for _, d := range ProposeMatches(acct, fsp, s.windowDays) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Examined++

		var applied bool
		var err error
		switch d.Outcome {
		case OutcomeAutoMatch:
			applied, err = s.autoMatch(ctx, d.EntryID, d.CandidateIDs[0])
			if applied {
				res.AutoMatched++
			}
		case OutcomeAmbiguous:
			if current[d.EntryID] == MatchPendingReview {
				applied = true
			} else {
				applied, err = s.setStatus(ctx, d.EntryID, MatchPendingReview)
			}
			if applied {
				res.PendingReview++
			}
		case OutcomeNoCandidate:
			// A pending_review entry whose candidates are gone goes back to unmatched.
			if current[d.EntryID] == MatchPendingReview {
				applied, err = s.setStatus(ctx, d.EntryID, MatchUnmatched)
			} else {
				applied = true
			}
			if applied {
				res.Unmatched++
			}
		}
		if err != nil {
			res.Errors.Add(fmt.Sprintf("entry %d: %v", d.EntryID, err))
			s.log.Warn().Err(err).Int64("entry_id", d.EntryID).Str("outcome", d.Outcome.String()).Msg("match decision failed")
			continue
		}
		if !applied {
			res.Skipped++
		}
	}

	s.log.Info().
		Int("examined", res.Examined).
		Int("auto_matched", res.AutoMatched).
		Int("pending_review", res.PendingReview).
		Int("unmatched", res.Unmatched).
		Int("skipped", res.Skipped).
		Int("errors", res.Errors.Count()).
		Msg("matcher run complete")
	return res, nil
}

// autoMatch binds the pair if both rows are still eligible once locked.
func (s *matcherService) autoMatch(ctx context.Context, acctID, fspID int64) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	first, second := acctID, fspID
	if second < first {
		first, second = second, first
	}
	locked := make(map[int64]*ReconciliationEntry, 2)
	for _, id := range []int64{first, second} {
		e, err := getEntry(ctx, tx, id, true)
		if err != nil {
			return false, err
		}
		locked[id] = e
	}
	acct, fsp := locked[acctID], locked[fspID]
	if !eligibleAcctSys(*acct) || !eligibleFSP(*fsp) {
		return false, nil
	}

	if _, err := bindPair(ctx, tx, acct, fsp, MatchAuto, s.now(), nil); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit auto match: %w", err)
	}
	return true, nil
}

// setStatus moves an entry between the matcher-owned statuses only.
func (s *matcherService) setStatus(ctx context.Context, id int64, status MatchStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reconciliation_entries
		SET match_status = $2, updated_at = now()
		WHERE id = $1 AND merged_into IS NULL AND match_status = ANY($3) AND match_status <> $2
	`, id, string(status), []string{string(MatchUnmatched), string(MatchPendingReview)})
	if err != nil {
		return false, fmt.Errorf("failed to set entry %d to %s: %w", id, status, err)
	}
	return tag.RowsAffected() == 1, nil
}
