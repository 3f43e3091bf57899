package repository

import (
	"context"

	"itsm-ticket-bridge/internal/domain/model"
)

type TicketRepository interface {
	Save(ctx context.Context, tx Tx, t *model.Ticket) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Ticket, error)
	ListByRequestID(ctx context.Context, tx Tx, requestID string) ([]*model.Ticket, error)
	// ListSyncableRequestIDs returns ids of requests that own at least one
	// ticket with an external id; used by the periodic sync worker.
	ListSyncableRequestIDs(ctx context.Context, tx Tx, limit int) ([]string, error)
}
