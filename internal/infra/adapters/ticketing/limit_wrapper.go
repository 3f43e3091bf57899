package ticketing

import (
	"context"
	"errors"
	"time"

	"itsm-ticket-bridge/internal/domain"
	"itsm-ticket-bridge/internal/domain/ports/adapter"
	red "itsm-ticket-bridge/internal/infra/redis"
)

// Compile-time check
var _ adapter.TicketingClient = (*limitedClient)(nil)

// limitedClient throttles remote calls through the shared redis counter so
// the bridge stays under the provider's rate limits regardless of how many
// instances run.
type limitedClient struct {
	inner   adapter.TicketingClient
	limiter *red.RateLimiter
	limit   int
	window  time.Duration
}

func NewLimitedClient(inner adapter.TicketingClient, limiter *red.RateLimiter, limit int, window time.Duration) adapter.TicketingClient {
	if limiter == nil || limit <= 0 {
		return inner
	}
	return &limitedClient{inner: inner, limiter: limiter, limit: limit, window: window}
}

// acquire waits for a slot, polling the shared counter. Gives up after one
// full window so a saturated limiter surfaces as a transport failure rather
// than hanging the engine.
func (l *limitedClient) acquire(ctx context.Context, op string) error {
	deadline := time.Now().Add(l.window)
	for {
		ok, err := l.limiter.Allow(ctx, red.RemoteAPIKey(l.inner.Name()), l.limit, l.window)
		if err != nil {
			return &domain.TransportError{Op: op, Err: err}
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return &domain.TransportError{Op: op, Err: errors.New("remote rate limit saturated")}
		}
		select {
		case <-ctx.Done():
			return &domain.TransportError{Op: op, Err: ctx.Err()}
		case <-time.After(l.window / 10):
		}
	}
}

func (l *limitedClient) Name() string { return l.inner.Name() }

func (l *limitedClient) CreateTicket(ctx context.Context, req adapter.TicketRequest) (adapter.TicketCreateResult, error) {
	if err := l.acquire(ctx, "create"); err != nil {
		return adapter.TicketCreateResult{}, err
	}
	return l.inner.CreateTicket(ctx, req)
}

func (l *limitedClient) CreateBatch(ctx context.Context, reqs []adapter.TicketRequest) []adapter.BatchItemResult {
	if err := l.acquire(ctx, "batch_create"); err != nil {
		results := make([]adapter.BatchItemResult, len(reqs))
		for i := range results {
			results[i] = adapter.BatchItemResult{Err: err}
		}
		return results
	}
	return l.inner.CreateBatch(ctx, reqs)
}

func (l *limitedClient) FetchStatus(ctx context.Context, externalID string) (adapter.RemoteTicketState, error) {
	if err := l.acquire(ctx, "fetch_status"); err != nil {
		return adapter.RemoteTicketState{}, err
	}
	return l.inner.FetchStatus(ctx, externalID)
}

func (l *limitedClient) UpdateStatus(ctx context.Context, externalID, state string, extra map[string]interface{}) error {
	if err := l.acquire(ctx, "update_status"); err != nil {
		return err
	}
	return l.inner.UpdateStatus(ctx, externalID, state, extra)
}

func (l *limitedClient) HealthCheck(ctx context.Context) bool {
	return l.inner.HealthCheck(ctx)
}
