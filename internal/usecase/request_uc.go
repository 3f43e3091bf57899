// File: internal/usecase/request_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"itsm-ticket-bridge/internal/domain"
	"itsm-ticket-bridge/internal/domain/model"
	"itsm-ticket-bridge/internal/domain/ports/adapter"
	"itsm-ticket-bridge/internal/domain/ports/repository"
	"itsm-ticket-bridge/internal/infra/logging"
)

// Compile-time check
var _ RequestUseCase = (*requestUC)(nil)

// aggregateLockTTL bounds how long a crashed operation can keep a request
// locked.
const aggregateLockTTL = 2 * time.Minute

// Locker serializes operations on a single request aggregate. Satisfied by
// the redis locker.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// TicketInput describes one desired ticket in a submission.
type TicketInput struct {
	Title           string
	Description     string
	Priority        model.Priority
	Category        string
	Subcategory     string
	AssignmentGroup string
	Fields          map[string]interface{}
}

// SubmitInput is the full payload for SubmitAndCreate.
type SubmitInput struct {
	RequestedBy string
	Title       string
	Description string
	Priority    model.Priority
	Payload     map[string]interface{}
	Tickets     []TicketInput
}

// TicketSummary is the per-ticket slice of a submission result.
type TicketSummary struct {
	ID     string             `json:"id"`
	Title  string             `json:"title"`
	Status model.TicketStatus `json:"status"`
}

type SubmitResult struct {
	RequestID string              `json:"requestId"`
	Status    model.RequestStatus `json:"status"`
	Tickets   []TicketSummary     `json:"tickets"`
}

// RequestUseCase is the synchronization engine: it owns batch creation of
// remote tickets, retry and cancellation of requests, and pulling remote
// status back into local records.
type RequestUseCase interface {
	SubmitAndCreate(ctx context.Context, in SubmitInput) (*SubmitResult, error)
	Retry(ctx context.Context, requestID string) (*model.Request, error)
	// Resume re-drives a request that was persisted but whose creation
	// attempt never started (crash or lock failure right after the
	// aggregate was stored). A request in any other state is returned
	// unchanged.
	Resume(ctx context.Context, requestID string) (*model.Request, error)
	Cancel(ctx context.Context, requestID string) (*model.Request, error)
	// SyncStatuses polls the remote system for every created ticket of the
	// request and returns how many were synced successfully.
	SyncStatuses(ctx context.Context, requestID string) (int, error)
	ListTicketsForRequest(ctx context.Context, requestID string) ([]*model.Ticket, error)
}

type requestUC struct {
	requests repository.RequestRepository
	tickets  repository.TicketRepository
	client   adapter.TicketingClient
	locker   Locker
	notifier adapter.Notifier
	log      *zerolog.Logger
}

func NewRequestUseCase(
	requests repository.RequestRepository,
	tickets repository.TicketRepository,
	client adapter.TicketingClient,
	locker Locker,
	notifier adapter.Notifier,
	logger *zerolog.Logger,
) *requestUC {
	l := logger.With().Str("component", "RequestUC").Logger()
	return &requestUC{
		requests: requests,
		tickets:  tickets,
		client:   client,
		locker:   locker,
		notifier: notifier,
		log:      &l,
	}
}

func (u *requestUC) SubmitAndCreate(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	defer logging.TraceDuration(u.log, "RequestUC.SubmitAndCreate")()
	if len(in.Tickets) == 0 {
		return nil, fmt.Errorf("%w: at least one ticket is required", domain.ErrInvalidArgument)
	}

	req, err := model.NewRequest(in.RequestedBy, in.Title, in.Description, in.Priority, in.Payload)
	if err != nil {
		return nil, err
	}
	stubs := make([]*model.Ticket, 0, len(in.Tickets))
	for _, ti := range in.Tickets {
		t, err := model.NewTicket(req.ID, ti.Title, ti.Description, ti.Priority, ti.Category, ti.Subcategory, ti.AssignmentGroup, ti.Fields)
		if err != nil {
			return nil, err
		}
		stubs = append(stubs, t)
	}

	// Request + stubs land in one transaction; no partial stub set is valid.
	if err := u.requests.CreateWithTickets(ctx, req, stubs); err != nil {
		return nil, err
	}

	opLog := u.opLogger(req.ID, "submit")
	token, err := u.locker.TryLock(ctx, lockKey(req.ID), aggregateLockTTL)
	if err != nil {
		return nil, domain.ErrConflict
	}
	defer func() { _ = u.locker.Unlock(ctx, lockKey(req.ID), token) }()

	if err := u.processCreation(ctx, req, stubs, opLog); err != nil {
		return nil, err
	}

	out := &SubmitResult{RequestID: req.ID, Status: req.Status, Tickets: make([]TicketSummary, 0, len(stubs))}
	for _, t := range stubs {
		out.Tickets = append(out.Tickets, TicketSummary{ID: t.ID, Title: t.Title, Status: t.Status})
	}
	return out, nil
}

func (u *requestUC) Retry(ctx context.Context, requestID string) (*model.Request, error) {
	defer logging.TraceDuration(u.log, "RequestUC.Retry")()
	if requestID == "" {
		return nil, domain.ErrInvalidArgument
	}
	token, err := u.locker.TryLock(ctx, lockKey(requestID), aggregateLockTTL)
	if err != nil {
		return nil, domain.ErrConflict
	}
	defer func() { _ = u.locker.Unlock(ctx, lockKey(requestID), token) }()

	req, err := u.requests.FindByID(ctx, nil, requestID)
	if err != nil {
		return nil, err
	}
	if err := req.PrepareRetry(); err != nil {
		return nil, err
	}
	if err := u.requests.Save(ctx, nil, req); err != nil {
		return nil, err
	}

	tickets, err := u.tickets.ListByRequestID(ctx, nil, requestID)
	if err != nil {
		return nil, err
	}

	opLog := u.opLogger(req.ID, "retry")
	if err := u.processCreation(ctx, req, tickets, opLog); err != nil {
		return req, err
	}
	return req, nil
}

func (u *requestUC) Resume(ctx context.Context, requestID string) (*model.Request, error) {
	defer logging.TraceDuration(u.log, "RequestUC.Resume")()
	if requestID == "" {
		return nil, domain.ErrInvalidArgument
	}
	token, err := u.locker.TryLock(ctx, lockKey(requestID), aggregateLockTTL)
	if err != nil {
		return nil, domain.ErrConflict
	}
	defer func() { _ = u.locker.Unlock(ctx, lockKey(requestID), token) }()

	req, err := u.requests.FindByID(ctx, nil, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != model.RequestStatusPending {
		// Someone else already drove it; nothing to do.
		return req, nil
	}

	tickets, err := u.tickets.ListByRequestID(ctx, nil, requestID)
	if err != nil {
		return nil, err
	}

	opLog := u.opLogger(req.ID, "resume")
	if err := u.processCreation(ctx, req, tickets, opLog); err != nil {
		return req, err
	}
	return req, nil
}

func (u *requestUC) Cancel(ctx context.Context, requestID string) (*model.Request, error) {
	defer logging.TraceDuration(u.log, "RequestUC.Cancel")()
	if requestID == "" {
		return nil, domain.ErrInvalidArgument
	}
	token, err := u.locker.TryLock(ctx, lockKey(requestID), aggregateLockTTL)
	if err != nil {
		return nil, domain.ErrConflict
	}
	defer func() { _ = u.locker.Unlock(ctx, lockKey(requestID), token) }()

	req, err := u.requests.FindByID(ctx, nil, requestID)
	if err != nil {
		return nil, err
	}
	if err := req.Cancel(); err != nil {
		return nil, err
	}
	if err := u.requests.Save(ctx, nil, req); err != nil {
		return nil, err
	}

	// Best-effort remote cancellation. Local state is authoritative; a
	// remote failure here is logged and dropped.
	opLog := u.opLogger(req.ID, "cancel")
	tickets, err := u.tickets.ListByRequestID(ctx, nil, requestID)
	if err == nil {
		for _, t := range tickets {
			if !t.IsCreatedExternally() {
				continue
			}
			if err := u.client.UpdateStatus(ctx, *t.ExternalID, string(model.TicketStatusCancelled), nil); err != nil {
				opLog.Warn().Err(err).Str("ticket_id", t.ID).Msg("remote cancel failed")
			}
		}
	}
	u.notifyFinished(ctx, req, "request cancelled")
	return req, nil
}

func (u *requestUC) SyncStatuses(ctx context.Context, requestID string) (int, error) {
	defer logging.TraceDuration(u.log, "RequestUC.SyncStatuses")()
	if requestID == "" {
		return 0, domain.ErrInvalidArgument
	}
	token, err := u.locker.TryLock(ctx, lockKey(requestID), aggregateLockTTL)
	if err != nil {
		return 0, domain.ErrConflict
	}
	defer func() { _ = u.locker.Unlock(ctx, lockKey(requestID), token) }()

	req, err := u.requests.FindByID(ctx, nil, requestID)
	if err != nil {
		return 0, err
	}
	tickets, err := u.tickets.ListByRequestID(ctx, nil, requestID)
	if err != nil {
		return 0, err
	}

	opLog := u.opLogger(requestID, "sync")
	synced := 0
	for _, t := range tickets {
		if !t.IsCreatedExternally() {
			// Stubs without a remote identity are skipped, not errored.
			continue
		}
		remote, err := u.client.FetchStatus(ctx, *t.ExternalID)
		if err != nil {
			// One ticket's failure never aborts the rest of the loop.
			t.RecordSyncFailure(err.Error())
			if saveErr := u.tickets.Save(ctx, nil, t); saveErr != nil {
				opLog.Error().Err(saveErr).Str("ticket_id", t.ID).Msg("persist sync failure")
			}
			opLog.Warn().Err(err).Str("ticket_id", t.ID).Msg("status fetch failed")
			continue
		}

		status, ok := model.MapRemoteState(remote.State)
		if !ok {
			// Deliberate policy: unknown remote states fall back to NEW and
			// the raw value is kept for audit instead of being dropped.
			t.PreserveUnmappedState(remote.State)
			opLog.Warn().Str("ticket_id", t.ID).Str("raw_state", remote.State).Msg("unmapped remote state, defaulting to new")
		}
		changed := t.ApplyRemoteStatus(status)
		if err := u.tickets.Save(ctx, nil, t); err != nil {
			return synced, err
		}
		synced++
		if changed {
			opLog.Info().Str("ticket_id", t.ID).Str("status", string(status)).Msg("ticket status updated")
		}
	}

	// A failed request whose tickets all exist remotely by now is complete.
	if req.Status == model.RequestStatusFailed && allCreated(tickets) {
		if err := req.ReconcileCompleted(); err != nil {
			return synced, err
		}
		if err := u.requests.Save(ctx, nil, req); err != nil {
			return synced, err
		}
		opLog.Info().Msg("request reconciled to completed")
	}
	return synced, nil
}

func (u *requestUC) ListTicketsForRequest(ctx context.Context, requestID string) ([]*model.Ticket, error) {
	defer logging.TraceDuration(u.log, "RequestUC.ListTicketsForRequest")()
	if requestID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if _, err := u.requests.FindByID(ctx, nil, requestID); err != nil {
		return nil, err
	}
	return u.tickets.ListByRequestID(ctx, nil, requestID)
}

// processCreation drives one creation attempt: mark processing, batch-create
// every ticket still lacking a remote identity, merge per-item outcomes and
// roll the request status up. Any failure past the processing mark is
// persisted onto the request before it is returned, so stored state reflects
// the failure even if the caller dies with the error in hand.
func (u *requestUC) processCreation(ctx context.Context, req *model.Request, tickets []*model.Ticket, opLog *zerolog.Logger) error {
	if err := req.MarkProcessing(); err != nil {
		return err
	}
	if err := u.requests.Save(ctx, nil, req); err != nil {
		return err
	}

	if err := u.createPending(ctx, req, tickets, opLog); err != nil {
		reason := err.Error()
		opLog.Error().Err(err).Bool("retryable", errIsRetryable(err)).Msg("creation attempt failed")
		if failErr := req.Fail(reason); failErr == nil {
			if saveErr := u.requests.Save(ctx, nil, req); saveErr != nil {
				opLog.Error().Err(saveErr).Msg("persist failure state")
			}
		}
		u.notifyFinished(ctx, req, reason)
		return err
	}

	if req.IsTerminal() || req.Status == model.RequestStatusFailed {
		u.notifyFinished(ctx, req, summarize(tickets))
	}
	return nil
}

func (u *requestUC) createPending(ctx context.Context, req *model.Request, tickets []*model.Ticket, opLog *zerolog.Logger) error {
	pending := make([]*model.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if !t.IsCreatedExternally() {
			pending = append(pending, t)
		}
	}

	if len(pending) > 0 {
		reqs := make([]adapter.TicketRequest, 0, len(pending))
		for _, t := range pending {
			reqs = append(reqs, adapter.TicketRequest{
				Title:           t.Title,
				Description:     t.Description,
				Priority:        string(t.Priority),
				Category:        t.Category,
				Subcategory:     t.Subcategory,
				AssignmentGroup: t.AssignmentGroup,
				Extra:           t.Fields,
			})
		}

		results := u.client.CreateBatch(ctx, reqs)
		if len(results) != len(pending) {
			return fmt.Errorf("batch result count %d does not match input %d", len(results), len(pending))
		}

		for i, res := range results {
			t := pending[i]
			if res.Err != nil {
				t.RecordCreateFailure(res.Err.Error())
				opLog.Warn().Err(res.Err).Str("ticket_id", t.ID).Msg("ticket creation failed")
			} else if err := t.ApplyCreation(res.Result.ExternalID, res.Result.ReferenceNumber); err != nil {
				t.RecordCreateFailure("remote returned incomplete identity")
			} else if len(res.Result.Fields) > 0 {
				if t.Fields == nil {
					t.Fields = make(map[string]interface{}, len(res.Result.Fields))
				}
				for k, v := range res.Result.Fields {
					t.Fields[k] = v
				}
			}
			if err := u.tickets.Save(ctx, nil, t); err != nil {
				return err
			}
		}
	}

	// Roll-up over ALL tickets of the request, not only this attempt's
	// pending slice, so retries account for previously created ones.
	if allCreated(tickets) {
		if err := req.Complete(); err != nil {
			return err
		}
		if err := u.requests.Save(ctx, nil, req); err != nil {
			return err
		}
		opLog.Info().Int("tickets", len(tickets)).Msg("request completed")
		return nil
	}

	reason := failureSummary(tickets)
	if err := req.Fail(reason); err != nil {
		return err
	}
	if err := u.requests.Save(ctx, nil, req); err != nil {
		return err
	}
	opLog.Warn().Str("reason", reason).Msg("request failed")
	return nil
}

func (u *requestUC) notifyFinished(ctx context.Context, req *model.Request, summary string) {
	if u.notifier == nil {
		return
	}
	if err := u.notifier.RequestFinished(ctx, req, summary); err != nil {
		u.log.Warn().Err(err).Str("request_id", req.ID).Msg("notify failed")
	}
}

func (u *requestUC) opLogger(requestID, op string) *zerolog.Logger {
	l := u.log.With().
		Str("request_id", requestID).
		Str("op", op).
		Str("op_id", ulid.Make().String()).
		Logger()
	return &l
}

func lockKey(requestID string) string { return "reqlock:" + requestID }

func allCreated(tickets []*model.Ticket) bool {
	for _, t := range tickets {
		if !t.IsCreatedExternally() {
			return false
		}
	}
	return len(tickets) > 0
}

// failureSummary enumerates the tickets that still lack a remote identity.
func failureSummary(tickets []*model.Ticket) string {
	var failed []string
	for _, t := range tickets {
		if t.IsCreatedExternally() {
			continue
		}
		msg := t.Title
		if t.SyncError != nil {
			msg = fmt.Sprintf("%s: %s", t.Title, *t.SyncError)
		}
		failed = append(failed, msg)
	}
	return fmt.Sprintf("%d of %d tickets not created externally [%s]", len(failed), len(tickets), strings.Join(failed, "; "))
}

func summarize(tickets []*model.Ticket) string {
	created := 0
	for _, t := range tickets {
		if t.IsCreatedExternally() {
			created++
		}
	}
	return fmt.Sprintf("%d/%d tickets created externally", created, len(tickets))
}

// errIsRetryable is kept for callers that want to distinguish transport
// failures from remote rejections in logs or metrics.
func errIsRetryable(err error) bool {
	var te *domain.TransportError
	return errors.As(err, &te)
}
