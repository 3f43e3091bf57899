package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"itsm-ticket-bridge/internal/domain/ports/repository"
	"itsm-ticket-bridge/internal/infra/metrics"
	"itsm-ticket-bridge/internal/infra/worker"
	"itsm-ticket-bridge/internal/usecase"
)

// SyncWorker periodically pulls remote ticket state for every request that
// owns at least one created ticket. Status synchronization is pull-based;
// this worker is just a ticker around the explicit SyncStatuses operation,
// so cadence stays a deployment decision.
type SyncWorker struct {
	uc       usecase.RequestUseCase
	tickets  repository.TicketRepository
	pool     *worker.Pool
	interval time.Duration
	limit    int
	log      *zerolog.Logger
}

func NewSyncWorker(uc usecase.RequestUseCase, tickets repository.TicketRepository, pool *worker.Pool, interval time.Duration, limit int, logger *zerolog.Logger) *SyncWorker {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	if limit <= 0 {
		limit = 100
	}
	l := logger.With().Str("component", "SyncWorker").Logger()
	return &SyncWorker{uc: uc, tickets: tickets, pool: pool, interval: interval, limit: limit, log: &l}
}

func (w *SyncWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting sync worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping sync worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SyncWorker) tick(ctx context.Context) {
	ids, err := w.tickets.ListSyncableRequestIDs(ctx, nil, w.limit)
	if err != nil {
		w.log.Error().Err(err).Msg("list syncable requests")
		return
	}
	for _, id := range ids {
		id := id
		err := w.pool.Submit(func(ctx context.Context) error {
			n, err := w.uc.SyncStatuses(ctx, id)
			if err != nil {
				// Contention with a live submit/retry/cancel is expected;
				// the next tick will catch up.
				w.log.Warn().Err(err).Str("request_id", id).Msg("sync failed")
				return nil
			}
			if n > 0 {
				metrics.AddTicketsSynced(n)
				w.log.Debug().Str("request_id", id).Int("synced", n).Msg("tickets synced")
			}
			return nil
		})
		if err != nil {
			// Pool saturated; remaining requests wait for the next tick.
			w.log.Warn().Err(err).Msg("sync pool full")
			return
		}
	}
}
