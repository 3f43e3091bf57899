package ticketing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"itsm-ticket-bridge/internal/domain"
	"itsm-ticket-bridge/internal/domain/ports/adapter"
)

var _ adapter.TicketingClient = (*NoopClient)(nil)

// NoopClient implements adapter.TicketingClient for local/dev runs. It
// fabricates remote identities and remembers their state in memory.
type NoopClient struct {
	mu      sync.Mutex
	seq     int
	tickets map[string]string // externalID -> state
}

func NewNoopClient() *NoopClient {
	return &NoopClient{tickets: make(map[string]string)}
}

func (n *NoopClient) Name() string { return "noop" }

func (n *NoopClient) CreateTicket(ctx context.Context, req adapter.TicketRequest) (adapter.TicketCreateResult, error) {
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return adapter.TicketCreateResult{}, &domain.TransportError{Op: "create", Err: ctx.Err()}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	id := uuid.NewString()
	n.tickets[id] = "new"
	return adapter.TicketCreateResult{
		ExternalID:      id,
		ReferenceNumber: fmt.Sprintf("INC%07d", n.seq),
	}, nil
}

func (n *NoopClient) CreateBatch(ctx context.Context, reqs []adapter.TicketRequest) []adapter.BatchItemResult {
	results := make([]adapter.BatchItemResult, len(reqs))
	for i, r := range reqs {
		res, err := n.CreateTicket(ctx, r)
		results[i] = adapter.BatchItemResult{Result: res, Err: err}
	}
	return results
}

func (n *NoopClient) FetchStatus(ctx context.Context, externalID string) (adapter.RemoteTicketState, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	state, ok := n.tickets[externalID]
	if !ok {
		return adapter.RemoteTicketState{}, &domain.RemoteRejection{Code: 404, Reason: "unknown ticket"}
	}
	return adapter.RemoteTicketState{ExternalID: externalID, State: state}, nil
}

func (n *NoopClient) UpdateStatus(ctx context.Context, externalID, state string, extra map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.tickets[externalID]; !ok {
		return &domain.RemoteRejection{Code: 404, Reason: "unknown ticket"}
	}
	n.tickets[externalID] = state
	return nil
}

func (n *NoopClient) HealthCheck(ctx context.Context) bool { return true }
