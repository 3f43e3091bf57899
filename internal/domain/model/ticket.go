package model

import (
	"time"

	"github.com/google/uuid"

	"itsm-ticket-bridge/internal/domain"
)

type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusOnHold     TicketStatus = "on_hold"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
	TicketStatusCancelled  TicketStatus = "cancelled"
)

type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusFailed  SyncStatus = "failed"
)

// FieldUnmappedRemoteState is the Fields key under which an unrecognized
// remote state value is preserved for audit when the mapper falls back to
// TicketStatusNew.
const FieldUnmappedRemoteState = "unmapped_remote_state"

// Ticket is one external work item derived from a Request. ExternalID and
// ReferenceNumber stay nil until the remote system confirms creation; they
// are always set together.
type Ticket struct {
	ID              string // UUID
	RequestID       string
	ExternalID      *string // remote sys_id; nil until created
	ReferenceNumber *string // remote human-readable number; nil until created
	Title           string
	Description     string
	Status          TicketStatus
	Priority        Priority
	Category        string
	Subcategory     string
	AssignmentGroup string
	Fields          map[string]interface{} // extra remote fields (JSONB in DB)
	Version         int

	LastSyncAt          *time.Time
	SyncStatus          SyncStatus
	SyncError           *string
	CreatedInExternalAt *time.Time
	UpdatedInExternalAt *time.Time
	ClosedInExternalAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTicket builds a local stub for a ticket that does not yet exist
// remotely.
func NewTicket(requestID, title, description string, priority Priority, category, subcategory, assignmentGroup string, fields map[string]interface{}) (*Ticket, error) {
	if requestID == "" || title == "" {
		return nil, domain.ErrInvalidArgument
	}
	if priority == "" {
		priority = PriorityMedium
	}
	now := time.Now()
	return &Ticket{
		ID:              uuid.NewString(),
		RequestID:       requestID,
		Title:           title,
		Description:     description,
		Status:          TicketStatusNew,
		Priority:        priority,
		Category:        category,
		Subcategory:     subcategory,
		AssignmentGroup: assignmentGroup,
		Fields:          fields,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// IsCreatedExternally reports whether the remote system has confirmed this
// ticket.
func (t *Ticket) IsCreatedExternally() bool {
	return t.ExternalID != nil && t.ReferenceNumber != nil
}

// ApplyCreation records a successful remote creation. External identity is
// set atomically: both values or neither.
func (t *Ticket) ApplyCreation(externalID, referenceNumber string) error {
	if externalID == "" || referenceNumber == "" {
		return domain.ErrInvalidArgument
	}
	now := time.Now()
	t.ExternalID = &externalID
	t.ReferenceNumber = &referenceNumber
	t.Status = TicketStatusNew
	t.SyncStatus = SyncStatusSuccess
	t.SyncError = nil
	t.CreatedInExternalAt = &now
	t.LastSyncAt = &now
	t.UpdatedAt = now
	return nil
}

// RecordCreateFailure marks a failed remote creation attempt. The external
// identity stays unset so a later retry re-attempts this ticket.
func (t *Ticket) RecordCreateFailure(reason string) {
	now := time.Now()
	t.SyncStatus = SyncStatusFailed
	t.SyncError = &reason
	t.LastSyncAt = &now
	t.UpdatedAt = now
}

// ApplyRemoteStatus merges a freshly fetched remote status into the ticket.
// Returns true when the status actually changed.
func (t *Ticket) ApplyRemoteStatus(status TicketStatus) bool {
	now := time.Now()
	t.SyncStatus = SyncStatusSuccess
	t.SyncError = nil
	t.LastSyncAt = &now
	if t.Status == status {
		t.UpdatedAt = now
		return false
	}
	t.Status = status
	t.UpdatedInExternalAt = &now
	if status == TicketStatusResolved || status == TicketStatusClosed {
		t.ClosedInExternalAt = &now
	}
	t.UpdatedAt = now
	return true
}

// RecordSyncFailure marks a failed status poll without touching the ticket
// status itself.
func (t *Ticket) RecordSyncFailure(reason string) {
	now := time.Now()
	t.SyncStatus = SyncStatusFailed
	t.SyncError = &reason
	t.LastSyncAt = &now
	t.UpdatedAt = now
}

// PreserveUnmappedState stashes a raw remote state value that the mapper
// did not recognize.
func (t *Ticket) PreserveUnmappedState(raw string) {
	if t.Fields == nil {
		t.Fields = make(map[string]interface{})
	}
	t.Fields[FieldUnmappedRemoteState] = raw
}
