package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"receivables/internal/app"

	"github.com/spf13/cobra"
)

// ServiceFactory opens the application service for one command run.
// The returned func releases its resources.
type ServiceFactory func(ctx context.Context) (app.ApplicationService, func(), error)

// Deps are the collaborators the command tree needs.
type Deps struct {
	Service   ServiceFactory
	JWTSecret string
	Version   string
}

// NewRootCommand builds the arctl command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	root := &cobra.Command{
		Use:   "arctl",
		Short: "Operate the receivables ledger and financing schedules",
		Long: `arctl runs the batch side of the receivables service: pulling
field-service payments, importing accounting deposits, running the matcher and
rebuilding financing schedules. Each command is safe to re-run.`,
		Version:       deps.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newSyncCommand(deps),
		newMatchCommand(deps),
		newRegenerateCommand(deps),
		newNightlyCommand(deps),
		newImportDepositsCommand(deps),
		newSummaryCommand(deps),
		newEntriesCommand(deps),
		newScheduleCommand(deps),
		newTokenCommand(deps),
	)
	return root
}

// withService opens the service, runs fn and releases the service.
func withService(cmd *cobra.Command, deps Deps, fn func(ctx context.Context, svc app.ApplicationService) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, closeFn, err := deps.Service(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, svc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseFlagDate(cmd *cobra.Command, name string) (string, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return "", nil
	}
	if _, err := time.Parse("2006-01-02", raw); err != nil {
		return "", fmt.Errorf("invalid --%s, use YYYY-MM-DD: %w", name, err)
	}
	return raw, nil
}
