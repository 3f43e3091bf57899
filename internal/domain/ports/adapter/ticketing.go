package adapter

import (
	"context"
	"time"
)

// TicketRequest is the provider-agnostic payload for creating one remote
// ticket.
type TicketRequest struct {
	Title           string
	Description     string
	Priority        string
	Category        string
	Subcategory     string
	AssignmentGroup string
	Extra           map[string]interface{}
}

// TicketCreateResult is what the remote system returns for a successful
// creation.
type TicketCreateResult struct {
	ExternalID      string
	ReferenceNumber string
	Fields          map[string]interface{}
}

// BatchItemResult pairs one batch input with its outcome. Result is valid
// only when Err is nil. A batch call may yield mixed outcomes; callers must
// handle every item individually.
type BatchItemResult struct {
	Result TicketCreateResult
	Err    error
}

// RemoteTicketState is a snapshot of one remote ticket's current state.
type RemoteTicketState struct {
	ExternalID      string
	ReferenceNumber string
	State           string // raw remote representation; see model.MapRemoteState
	Assignee        string
	OpenedAt        *time.Time
	ClosedAt        *time.Time
}

// TicketingClient is the hex port for the external ticketing system. Every
// call carries its own fixed transport timeout and implementations never
// retry internally; retry policy belongs to the synchronization engine.
type TicketingClient interface {
	Name() string

	// CreateTicket creates a single remote ticket.
	CreateTicket(ctx context.Context, req TicketRequest) (TicketCreateResult, error)
	// CreateBatch creates many tickets and returns per-item results in the
	// same order as the input.
	CreateBatch(ctx context.Context, reqs []TicketRequest) []BatchItemResult
	// FetchStatus retrieves the current remote state of one ticket.
	FetchStatus(ctx context.Context, externalID string) (RemoteTicketState, error)
	// UpdateStatus pushes a state change (plus optional extra fields) to the
	// remote ticket.
	UpdateStatus(ctx context.Context, externalID, state string, extra map[string]interface{}) error
	// HealthCheck probes connectivity only; never used for business
	// decisions.
	HealthCheck(ctx context.Context) bool
}
