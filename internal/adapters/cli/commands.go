package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"receivables/internal/acctsys"
	"receivables/internal/adapters/web"
	"receivables/internal/app"
	"receivables/internal/core"
	"receivables/internal/logger"

	"github.com/spf13/cobra"
)

func newSyncCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull new field-service payments for every financed invoice",
		Long: `Fetch payments from the field-service platform for each invoice with a
financing plan, record the new ones in the ledger and rebuild the affected
schedules. Invoices that fail are listed in the output; the run continues.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			strict, _ := cmd.Flags().GetBool("strict")
			return withService(cmd, deps, func(ctx context.Context, svc app.ApplicationService) error {
				res, err := svc.SyncFinancedPayments(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if strict {
					return res.Err()
				}
				return nil
			})
		},
	}
	cmd.Flags().Bool("strict", false, "Exit non-zero when any invoice failed")
	return cmd
}

func newMatchCommand(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "match",
		Short: "Run the automatic matcher over unmatched ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, deps, func(ctx context.Context, svc app.ApplicationService) error {
				res, err := svc.RunMatcher(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newRegenerateCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regenerate [invoice-id]",
		Short: "Rebuild financing schedules",
		Example: `  arctl regenerate 42
  arctl regenerate --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			if all == (len(args) == 1) {
				return errors.New("pass exactly one of an invoice id or --all")
			}
			return withService(cmd, deps, func(ctx context.Context, svc app.ApplicationService) error {
				if all {
					res, err := svc.RegenerateAll(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), res)
				}
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				schedule, err := svc.RegenerateSchedule(ctx, id)
				if err != nil {
					return err
				}
				printSchedule(cmd.OutOrStdout(), schedule)
				return nil
			})
		},
	}
	cmd.Flags().Bool("all", false, "Rebuild every financed invoice")
	return cmd
}

// newNightlyCommand chains the batch steps in data-flow order.
func newNightlyCommand(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "nightly",
		Short: "Sync, match and regenerate in one run",
		Long: `Run the nightly pipeline: pull field-service payments, run the matcher,
then rebuild every financing schedule. A sync without field-service
credentials is skipped; other failures stop the pipeline.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.WithComponent("nightly")
			return withService(cmd, deps, func(ctx context.Context, svc app.ApplicationService) error {
				type report struct {
					Sync       *core.SyncResult       `json:"sync,omitempty"`
					Match      *core.MatchRunResult   `json:"match"`
					Regenerate *core.RegenerateResult `json:"regenerate"`
				}
				var out report

				res, err := svc.SyncFinancedPayments(ctx)
				switch {
				case errors.Is(err, core.ErrSourceUnavailable):
					log.Warn().Msg("field-service credentials not set, skipping sync")
				case err != nil:
					return fmt.Errorf("sync: %w", err)
				default:
					out.Sync = res
				}

				if out.Match, err = svc.RunMatcher(ctx); err != nil {
					return fmt.Errorf("match: %w", err)
				}
				if out.Regenerate, err = svc.RegenerateAll(ctx); err != nil {
					return fmt.Errorf("regenerate: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
}

func newImportDepositsCommand(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "import-deposits <file.csv>",
		Short: "Import an accounting-system deposit export",
		Long: `Read a CSV export with columns id,amount,date,method,deposited and record
each payment in the ledger. Payments already recorded are skipped, except that
their deposit flag is set once the export shows them deposited.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := acctsys.ParseDepositsFile(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, deps, func(ctx context.Context, svc app.ApplicationService) error {
				res, err := svc.ImportDeposits(ctx, records)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newSummaryCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print ledger totals by status and method",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseFlagDate(cmd, "from")
			if err != nil {
				return err
			}
			to, err := parseFlagDate(cmd, "to")
			if err != nil {
				return err
			}
			method, _ := cmd.Flags().GetString("method")
			statuses, _ := cmd.Flags().GetStringSlice("status")
			return withService(cmd, deps, func(ctx context.Context, svc app.ApplicationService) error {
				summary, err := svc.Summarize(ctx, app.SummaryRequest{From: from, To: to, Method: method, Statuses: statuses})
				if err != nil {
					return err
				}
				printSummary(cmd.OutOrStdout(), summary)
				return nil
			})
		},
	}
	cmd.Flags().String("from", "", "First payment date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last payment date (YYYY-MM-DD)")
	cmd.Flags().String("method", "", "Only this payment method")
	cmd.Flags().StringSlice("status", nil, "Only these match statuses")
	return cmd
}

func newEntriesCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			return withService(cmd, deps, func(ctx context.Context, svc app.ApplicationService) error {
				res, err := svc.ListEntries(ctx, app.ListEntriesRequest{Status: status, Limit: limit})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().String("status", "", "Only entries with this match status")
	cmd.Flags().Int("limit", 100, "Maximum entries to list")
	return cmd
}

func newScheduleCommand(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <invoice-id>",
		Short: "Print an invoice's financing schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, deps, func(ctx context.Context, svc app.ApplicationService) error {
				schedule, err := svc.GetSchedule(ctx, id)
				if err != nil {
					return err
				}
				printSchedule(cmd.OutOrStdout(), schedule)
				return nil
			})
		},
	}
}

func newTokenCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			operator, _ := cmd.Flags().GetString("operator")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			tok, err := web.IssueToken(deps.JWTSecret, operator, role, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().String("operator", "", "Operator name recorded on manual matches")
	cmd.Flags().String("role", "operator", "Role claim")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
