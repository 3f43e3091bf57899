//go:build !integration

package usecase

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"itsm-ticket-bridge/internal/domain"
	"itsm-ticket-bridge/internal/domain/model"
	"itsm-ticket-bridge/internal/domain/ports/adapter"
	"itsm-ticket-bridge/internal/domain/ports/repository"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// --- In-Memory Request Repository ---

type memRequestRepo struct {
	mu      sync.RWMutex
	items   map[string]*model.Request
	tickets *memTicketRepo
	saveErr error
}

var _ repository.RequestRepository = (*memRequestRepo)(nil)

func newMemRequestRepo(tickets *memTicketRepo) *memRequestRepo {
	return &memRequestRepo{items: make(map[string]*model.Request), tickets: tickets}
}

func (m *memRequestRepo) Save(ctx context.Context, tx repository.Tx, r *model.Request) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Version++
	cp := *r
	m.items[r.ID] = &cp
	return nil
}

func (m *memRequestRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRequestRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.RequestStatus, limit int) ([]*model.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Request
	for _, r := range m.items {
		if r.Status == status {
			cp := *r
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memRequestRepo) ListProcessingOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Request
	for _, r := range m.items {
		if r.Status == model.RequestStatusProcessing && r.ProcessingStartedAt != nil && r.ProcessingStartedAt.Before(cutoff) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRequestRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Request
	for _, r := range m.items {
		if r.Status == model.RequestStatusPending && r.UpdatedAt.Before(cutoff) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRequestRepo) CreateWithTickets(ctx context.Context, r *model.Request, tickets []*model.Ticket) error {
	if err := m.Save(ctx, nil, r); err != nil {
		return err
	}
	for _, t := range tickets {
		if err := m.tickets.Save(ctx, nil, t); err != nil {
			return err
		}
	}
	return nil
}

// --- In-Memory Ticket Repository ---

type memTicketRepo struct {
	mu      sync.RWMutex
	items   map[string]*model.Ticket
	order   []string
	saveErr error
}

var _ repository.TicketRepository = (*memTicketRepo)(nil)

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{items: make(map[string]*model.Ticket)}
}

func (m *memTicketRepo) Save(ctx context.Context, tx repository.Tx, t *model.Ticket) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[t.ID]; !ok {
		m.order = append(m.order, t.ID)
	}
	t.Version++
	cp := *t
	m.items[t.ID] = &cp
	return nil
}

func (m *memTicketRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTicketRepo) ListByRequestID(ctx context.Context, tx repository.Tx, requestID string) ([]*model.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Ticket
	for _, id := range m.order {
		if t := m.items[id]; t.RequestID == requestID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTicketRepo) ListSyncableRequestIDs(ctx context.Context, tx repository.Tx, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, id := range m.order {
		t := m.items[id]
		if t.ExternalID == nil || seen[t.RequestID] {
			continue
		}
		seen[t.RequestID] = true
		out = append(out, t.RequestID)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- Mock Ticketing Client ---

type mockClient struct {
	mu            sync.Mutex
	createBatchFn func(ctx context.Context, reqs []adapter.TicketRequest) []adapter.BatchItemResult
	fetchStatusFn func(ctx context.Context, externalID string) (adapter.RemoteTicketState, error)
	updateErr     error

	batchCalls  [][]adapter.TicketRequest
	updateCalls []string
	seq         int
}

var _ adapter.TicketingClient = (*mockClient)(nil)

func newMockClient() *mockClient { return &mockClient{} }

func (m *mockClient) Name() string { return "mock" }

// nextIdentity fabricates a deterministic external identity per call.
func (m *mockClient) nextIdentity() (string, string) {
	m.seq++
	return fmt.Sprintf("sys-%d", m.seq), fmt.Sprintf("INC%07d", m.seq)
}

func (m *mockClient) CreateTicket(ctx context.Context, req adapter.TicketRequest) (adapter.TicketCreateResult, error) {
	res := m.CreateBatch(ctx, []adapter.TicketRequest{req})
	return res[0].Result, res[0].Err
}

func (m *mockClient) CreateBatch(ctx context.Context, reqs []adapter.TicketRequest) []adapter.BatchItemResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls = append(m.batchCalls, reqs)
	if m.createBatchFn != nil {
		return m.createBatchFn(ctx, reqs)
	}
	out := make([]adapter.BatchItemResult, 0, len(reqs))
	for range reqs {
		id, ref := m.nextIdentity()
		out = append(out, adapter.BatchItemResult{Result: adapter.TicketCreateResult{ExternalID: id, ReferenceNumber: ref}})
	}
	return out
}

func (m *mockClient) FetchStatus(ctx context.Context, externalID string) (adapter.RemoteTicketState, error) {
	if m.fetchStatusFn != nil {
		return m.fetchStatusFn(ctx, externalID)
	}
	return adapter.RemoteTicketState{ExternalID: externalID, State: "1"}, nil
}

func (m *mockClient) UpdateStatus(ctx context.Context, externalID, state string, extra map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls = append(m.updateCalls, externalID)
	return m.updateErr
}

func (m *mockClient) HealthCheck(ctx context.Context) bool { return true }

// allTransportErrors is a createBatchFn that fails every item the way a
// network outage would.
func allTransportErrors(ctx context.Context, reqs []adapter.TicketRequest) []adapter.BatchItemResult {
	err := &domain.TransportError{Op: "create batch", Err: fmt.Errorf("connection refused")}
	out := make([]adapter.BatchItemResult, len(reqs))
	for i := range out {
		out[i] = adapter.BatchItemResult{Err: err}
	}
	return out
}

// --- Mock Locker ---

type mockLocker struct {
	mu      sync.Mutex
	fail    bool
	locks   int
	unlocks int
}

var _ Locker = (*mockLocker)(nil)

func (m *mockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", domain.ErrConflict
	}
	m.locks++
	return "token", nil
}

func (m *mockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlocks++
	return nil
}

// --- Mock Notifier ---

type mockNotifier struct {
	mu        sync.Mutex
	summaries []string
}

var _ adapter.Notifier = (*mockNotifier)(nil)

func (m *mockNotifier) RequestFinished(ctx context.Context, r *model.Request, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, summary)
	return nil
}

// --- Test Fixture ---

type ucFixture struct {
	uc       *requestUC
	requests *memRequestRepo
	tickets  *memTicketRepo
	client   *mockClient
	locker   *mockLocker
	notifier *mockNotifier
}

func newFixture() *ucFixture {
	tickets := newMemTicketRepo()
	requests := newMemRequestRepo(tickets)
	client := newMockClient()
	locker := &mockLocker{}
	notifier := &mockNotifier{}
	uc := NewRequestUseCase(requests, tickets, client, locker, notifier, testLogger())
	return &ucFixture{uc: uc, requests: requests, tickets: tickets, client: client, locker: locker, notifier: notifier}
}

func submitInput(n int) SubmitInput {
	in := SubmitInput{RequestedBy: "user-1", Title: "Onboarding", Priority: model.PriorityHigh}
	for i := 0; i < n; i++ {
		in.Tickets = append(in.Tickets, TicketInput{
			Title:           fmt.Sprintf("ticket-%d", i+1),
			Category:        "hardware",
			AssignmentGroup: "infra",
		})
	}
	return in
}
