package app

import (
	"context"
	"fmt"

	"receivables/internal/config"
	"receivables/internal/core"
	"receivables/internal/fieldservice"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Build wires the core services over pool. Without field-service credentials
// the sync is disabled and everything else works.
func Build(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log zerolog.Logger) (ApplicationService, error) {
	ledger := core.NewReconciliationService(pool)
	matcher := core.NewMatcherService(pool, cfg.MatchWindowDays, cfg.SyncErrorCap, log)
	financing := core.NewFinancingService(pool, cfg.SyncErrorCap, log)

	var source core.PaymentSource
	if cfg.FSPConfigured() {
		client, err := fieldservice.NewClient(ctx, cfg.GetFieldServiceConfig())
		if err != nil {
			return nil, fmt.Errorf("field-service client: %w", err)
		}
		source = client
	} else {
		log.Warn().Msg("field-service credentials not set, payment sync disabled")
	}

	syncer := core.NewSyncService(source, financing, ledger, financing, cfg.GetSyncConfig(), log)
	return NewAppService(pool, ledger, matcher, financing, syncer), nil
}
