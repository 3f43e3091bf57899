package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"itsm-ticket-bridge/internal/domain"
	"itsm-ticket-bridge/internal/domain/model"
	"itsm-ticket-bridge/internal/domain/ports/repository"
)

var _ repository.TicketRepository = (*ticketRepo)(nil)

type ticketRepo struct {
	pool *pgxpool.Pool
}

func NewTicketRepo(pool *pgxpool.Pool) *ticketRepo {
	return &ticketRepo{pool: pool}
}

const ticketColumns = `id, request_id, external_id, reference_number, title, description, status, priority, category, subcategory, assignment_group, fields, sync_status, sync_error, version, last_sync_at, created_in_external_at, updated_in_external_at, closed_in_external_at, created_at, updated_at`

func (r *ticketRepo) Save(ctx context.Context, tx repository.Tx, t *model.Ticket) error {
	return saveTicket(ctx, r.pool, tx, t)
}

// saveTicket is shared with the request repo's atomic create-with-stubs
// path. Same version-guarded upsert as requests.
func saveTicket(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, t *model.Ticket) error {
	const q = `
INSERT INTO tickets (
  id, request_id, external_id, reference_number, title, description, status, priority, category, subcategory, assignment_group, fields, sync_status, sync_error, version, last_sync_at, created_in_external_at, updated_in_external_at, closed_in_external_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15+1,$16,$17,$18,$19,$20,$21
) ON CONFLICT (id) DO UPDATE SET
  external_id=$3, reference_number=$4, status=$7, priority=$8, category=$9, subcategory=$10, assignment_group=$11,
  fields=$12, sync_status=$13, sync_error=$14, version=tickets.version+1, last_sync_at=$16,
  created_in_external_at=$17, updated_in_external_at=$18, closed_in_external_at=$19, updated_at=$21
WHERE tickets.version = $15;`

	cmd, err := execSQL(ctx, pool, tx, q,
		t.ID, t.RequestID, t.ExternalID, t.ReferenceNumber, t.Title, t.Description, string(t.Status), string(t.Priority),
		t.Category, t.Subcategory, t.AssignmentGroup, t.Fields, string(t.SyncStatus), t.SyncError, t.Version,
		t.LastSyncAt, t.CreatedInExternalAt, t.UpdatedInExternalAt, t.ClosedInExternalAt, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	t.Version++
	return nil
}

func (r *ticketRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanTicket(row)
}

func (r *ticketRepo) ListByRequestID(ctx context.Context, tx repository.Tx, requestID string) ([]*model.Ticket, error) {
	const q = `SELECT ` + ticketColumns + ` FROM tickets WHERE request_id=$1 ORDER BY created_at;`
	rows, err := pickRows(ctx, r.pool, tx, q, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *ticketRepo) ListSyncableRequestIDs(ctx context.Context, tx repository.Tx, limit int) ([]string, error) {
	const q = `SELECT DISTINCT request_id FROM tickets WHERE external_id IS NOT NULL LIMIT $1;`
	rows, err := pickRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return ids, nil
}

func scanTicket(row pgx.Row) (*model.Ticket, error) {
	t := &model.Ticket{}
	var status, priority, syncStatus string
	err := row.Scan(
		&t.ID, &t.RequestID, &t.ExternalID, &t.ReferenceNumber, &t.Title, &t.Description, &status, &priority,
		&t.Category, &t.Subcategory, &t.AssignmentGroup, &t.Fields, &syncStatus, &t.SyncError, &t.Version,
		&t.LastSyncAt, &t.CreatedInExternalAt, &t.UpdatedInExternalAt, &t.ClosedInExternalAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	t.Status = model.TicketStatus(status)
	t.Priority = model.Priority(priority)
	t.SyncStatus = model.SyncStatus(syncStatus)
	return t, nil
}
