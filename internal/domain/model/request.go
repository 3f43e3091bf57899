package model

import (
	"time"

	"github.com/google/uuid"

	"itsm-ticket-bridge/internal/domain"
)

type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"    // persisted with ticket stubs, not yet sent
	RequestStatusProcessing RequestStatus = "processing" // batch creation in flight
	RequestStatusCompleted  RequestStatus = "completed"  // every ticket exists remotely
	RequestStatusFailed     RequestStatus = "failed"     // zero or partial remote creation
	RequestStatusCancelled  RequestStatus = "cancelled"  // explicit cancel
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

const DefaultMaxRetries = 3

// Request is one submitted business task. It owns 1..N tickets that are
// created in the external ticketing system on its behalf.
type Request struct {
	ID          string // UUID
	RequestedBy string // principal id from the identity collaborator
	Title       string
	Description string
	Status      RequestStatus
	Priority    Priority
	Payload     map[string]interface{} // arbitrary structured payload (JSONB in DB)
	RetryCount  int
	MaxRetries  int
	Version     int // optimistic locking; bumped by the store on every save

	CreatedAt             time.Time
	UpdatedAt             time.Time
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
	EstimatedCompletionAt *time.Time
	ActualCompletionAt    *time.Time
	FailureReason         *string
}

// NewRequest validates input and builds a pending request.
func NewRequest(requestedBy, title, description string, priority Priority, payload map[string]interface{}) (*Request, error) {
	if requestedBy == "" || title == "" {
		return nil, domain.ErrInvalidArgument
	}
	if priority == "" {
		priority = PriorityMedium
	}
	now := time.Now()
	return &Request{
		ID:          uuid.NewString(),
		RequestedBy: requestedBy,
		Title:       title,
		Description: description,
		Status:      RequestStatusPending,
		Priority:    priority,
		Payload:     payload,
		MaxRetries:  DefaultMaxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsTerminal reports whether no further transitions are allowed.
func (r *Request) IsTerminal() bool {
	return r.Status == RequestStatusCompleted || r.Status == RequestStatusCancelled
}

// MarkProcessing moves a pending request into processing and stamps the
// start time.
func (r *Request) MarkProcessing() error {
	if r.Status != RequestStatusPending {
		return domain.ErrInvalidArgument
	}
	now := time.Now()
	r.Status = RequestStatusProcessing
	r.ProcessingStartedAt = &now
	r.UpdatedAt = now
	return nil
}

// Complete marks the request completed after every ticket was created
// remotely.
func (r *Request) Complete() error {
	if r.Status != RequestStatusProcessing {
		return domain.ErrInvalidArgument
	}
	now := time.Now()
	r.Status = RequestStatusCompleted
	r.ProcessingCompletedAt = &now
	r.ActualCompletionAt = &now
	r.FailureReason = nil
	r.UpdatedAt = now
	return nil
}

// Fail records an unrecoverable (for this attempt) failure with a reason.
func (r *Request) Fail(reason string) error {
	if r.IsTerminal() {
		return domain.ErrRequestTerminal
	}
	now := time.Now()
	r.Status = RequestStatusFailed
	r.FailureReason = &reason
	r.ProcessingCompletedAt = &now
	r.UpdatedAt = now
	return nil
}

// CanRetry is true only for failed requests with retry budget left.
func (r *Request) CanRetry() bool {
	return r.Status == RequestStatusFailed && r.RetryCount < r.MaxRetries
}

// PrepareRetry consumes one retry and resets the request to pending.
// Processing timestamps and the failure reason are cleared; tickets that
// already exist remotely are left to the engine to skip.
func (r *Request) PrepareRetry() error {
	if !r.CanRetry() {
		return domain.ErrRequestNotRetryable
	}
	r.RetryCount++
	r.Status = RequestStatusPending
	r.ProcessingStartedAt = nil
	r.ProcessingCompletedAt = nil
	r.ActualCompletionAt = nil
	r.FailureReason = nil
	r.UpdatedAt = time.Now()
	return nil
}

// ReconcileCompleted settles a failed request whose tickets all turned out
// to exist remotely: the earlier failure was transient and already
// recovered. Clears the failure reason and stamps completion.
func (r *Request) ReconcileCompleted() error {
	if r.Status != RequestStatusFailed {
		return domain.ErrInvalidArgument
	}
	now := time.Now()
	r.Status = RequestStatusCompleted
	r.FailureReason = nil
	r.ProcessingCompletedAt = &now
	r.ActualCompletionAt = &now
	r.UpdatedAt = now
	return nil
}

// Cancel is allowed from any non-completed, non-cancelled state.
func (r *Request) Cancel() error {
	if r.IsTerminal() {
		return domain.ErrRequestTerminal
	}
	now := time.Now()
	r.Status = RequestStatusCancelled
	r.ProcessingCompletedAt = &now
	r.UpdatedAt = now
	return nil
}
