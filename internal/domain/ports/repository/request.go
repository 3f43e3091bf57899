package repository

import (
	"context"
	"time"

	"itsm-ticket-bridge/internal/domain/model"
)

// RequestRepository persists Request aggregates. Save enforces optimistic
// locking on Request.Version and returns domain.ErrConflict on a lost
// update.
type RequestRepository interface {
	Save(ctx context.Context, tx Tx, r *model.Request) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Request, error)
	ListByStatus(ctx context.Context, tx Tx, status model.RequestStatus, limit int) ([]*model.Request, error)
	// ListProcessingOlderThan returns requests stuck in processing since
	// before cutoff; used by the stale reconciler.
	ListProcessingOlderThan(ctx context.Context, tx Tx, cutoff time.Time, limit int) ([]*model.Request, error)
	// ListPendingOlderThan returns requests that stayed pending past cutoff.
	// A request lands here when its submission persisted the aggregate but
	// the creation attempt never started (crash or lock failure right after
	// CreateWithTickets); the reconciler re-drives them.
	ListPendingOlderThan(ctx context.Context, tx Tx, cutoff time.Time, limit int) ([]*model.Request, error)
	// CreateWithTickets persists the request and all of its ticket stubs in
	// one transaction. Either everything is stored or nothing is.
	CreateWithTickets(ctx context.Context, r *model.Request, tickets []*model.Ticket) error
}
