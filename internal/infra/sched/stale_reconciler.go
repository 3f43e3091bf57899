package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"itsm-ticket-bridge/internal/domain/model"
	"itsm-ticket-bridge/internal/domain/ports/repository"
	"itsm-ticket-bridge/internal/infra/metrics"
	"itsm-ticket-bridge/internal/usecase"
)

// StaleReconciler scans for requests stuck in processing and re-drives
// them. This covers the crash-mid-submit case: the process died between the
// remote batch call and the roll-up, leaving the request PROCESSING with an
// unknown mix of created tickets.
type StaleReconciler struct {
	uc         usecase.RequestUseCase
	requests   repository.RequestRepository
	tickets    repository.TicketRepository
	interval   time.Duration
	staleAfter time.Duration
	log        *zerolog.Logger
}

func NewStaleReconciler(uc usecase.RequestUseCase, requests repository.RequestRepository, tickets repository.TicketRepository, interval, staleAfter time.Duration, logger *zerolog.Logger) *StaleReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	l := logger.With().Str("component", "StaleReconciler").Logger()
	return &StaleReconciler{uc: uc, requests: requests, tickets: tickets, interval: interval, staleAfter: staleAfter, log: &l}
}

func (w *StaleReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("stale_after", w.staleAfter).Msg("starting stale reconciler")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping stale reconciler")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *StaleReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stuck, err := w.requests.ListProcessingOlderThan(ctx, nil, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale processing requests")
		return
	}
	for _, req := range stuck {
		w.reconcile(ctx, req)
	}

	// A request can also get stranded in pending: the submission stored the
	// aggregate and its stubs but the creation attempt never started (crash
	// or lock failure right after the insert). Re-drive those through the
	// engine.
	stranded, err := w.requests.ListPendingOlderThan(ctx, nil, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale pending requests")
		return
	}
	for _, req := range stranded {
		resumed, err := w.uc.Resume(ctx, req.ID)
		if err != nil {
			w.log.Warn().Err(err).Str("request_id", req.ID).Msg("resume failed")
			continue
		}
		metrics.IncRequestOutcome(string(resumed.Status))
		w.log.Info().Str("request_id", req.ID).Str("status", string(resumed.Status)).Msg("stranded request resumed")
	}
}

// reconcile settles one stuck request from its tickets' persisted state:
// every ticket created remotely means the attempt actually succeeded, and
// anything less is a failure eligible for an explicit retry.
func (w *StaleReconciler) reconcile(ctx context.Context, req *model.Request) {
	tickets, err := w.tickets.ListByRequestID(ctx, nil, req.ID)
	if err != nil {
		w.log.Error().Err(err).Str("request_id", req.ID).Msg("list tickets")
		return
	}

	created := 0
	for _, t := range tickets {
		if t.IsCreatedExternally() {
			created++
		}
	}

	if created == len(tickets) && len(tickets) > 0 {
		if err := req.Complete(); err != nil {
			w.log.Error().Err(err).Str("request_id", req.ID).Msg("complete stale request")
			return
		}
	} else {
		if err := req.Fail("interrupted during processing; reconciled as failed"); err != nil {
			w.log.Error().Err(err).Str("request_id", req.ID).Msg("fail stale request")
			return
		}
	}
	if err := w.requests.Save(ctx, nil, req); err != nil {
		w.log.Error().Err(err).Str("request_id", req.ID).Msg("persist reconciled request")
		return
	}
	metrics.IncRequestOutcome(string(req.Status))
	w.log.Info().Str("request_id", req.ID).Str("status", string(req.Status)).Int("created", created).Int("total", len(tickets)).Msg("stale request reconciled")

	// Pull fresh remote state for whatever did get created.
	if created > 0 {
		if _, err := w.uc.SyncStatuses(ctx, req.ID); err != nil {
			w.log.Warn().Err(err).Str("request_id", req.ID).Msg("post-reconcile sync failed")
		}
	}
}
