package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"itsm-ticket-bridge/internal/domain"
	"itsm-ticket-bridge/internal/domain/model"
	"itsm-ticket-bridge/internal/domain/ports/repository"
)

var _ repository.RequestRepository = (*requestRepo)(nil)

type requestRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewRequestRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *requestRepo {
	return &requestRepo{pool: pool, tm: tm}
}

const requestColumns = `id, requested_by, title, description, status, priority, payload, retry_count, max_retries, version, created_at, updated_at, processing_started_at, processing_completed_at, estimated_completion_at, actual_completion_at, failure_reason`

// Save upserts the request. The version guard makes a lost update visible:
// the ON CONFLICT branch only fires when the stored version still matches
// the one this aggregate was loaded with.
func (r *requestRepo) Save(ctx context.Context, tx repository.Tx, req *model.Request) error {
	const q = `
INSERT INTO requests (
  id, requested_by, title, description, status, priority, payload, retry_count, max_retries, version, created_at, updated_at, processing_started_at, processing_completed_at, estimated_completion_at, actual_completion_at, failure_reason
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10+1,$11,$12,$13,$14,$15,$16,$17
) ON CONFLICT (id) DO UPDATE SET
  status=$5, priority=$6, payload=$7, retry_count=$8, max_retries=$9, version=requests.version+1, updated_at=$12,
  processing_started_at=$13, processing_completed_at=$14, estimated_completion_at=$15, actual_completion_at=$16, failure_reason=$17
WHERE requests.version = $10;`

	cmd, err := execSQL(ctx, r.pool, tx, q,
		req.ID, req.RequestedBy, req.Title, req.Description, string(req.Status), string(req.Priority), req.Payload,
		req.RetryCount, req.MaxRetries, req.Version, req.CreatedAt, req.UpdatedAt,
		req.ProcessingStartedAt, req.ProcessingCompletedAt, req.EstimatedCompletionAt, req.ActualCompletionAt, req.FailureReason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	req.Version++
	return nil
}

func (r *requestRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Request, error) {
	q := `SELECT ` + requestColumns + ` FROM requests WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanRequest(row)
}

func (r *requestRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.RequestStatus, limit int) ([]*model.Request, error) {
	const q = `SELECT ` + requestColumns + ` FROM requests WHERE status=$1 ORDER BY created_at LIMIT $2;`
	rows, err := pickRows(ctx, r.pool, tx, q, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (r *requestRepo) ListProcessingOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Request, error) {
	const q = `SELECT ` + requestColumns + ` FROM requests WHERE status='processing' AND processing_started_at < $1 ORDER BY processing_started_at LIMIT $2;`
	rows, err := pickRows(ctx, r.pool, tx, q, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (r *requestRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Request, error) {
	const q = `SELECT ` + requestColumns + ` FROM requests WHERE status='pending' AND updated_at < $1 ORDER BY updated_at LIMIT $2;`
	rows, err := pickRows(ctx, r.pool, tx, q, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

// CreateWithTickets stores the request and all of its stubs atomically.
func (r *requestRepo) CreateWithTickets(ctx context.Context, req *model.Request, tickets []*model.Ticket) error {
	return r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := r.Save(ctx, tx, req); err != nil {
			return err
		}
		for _, t := range tickets {
			if err := saveTicket(ctx, r.pool, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

func scanRequest(row pgx.Row) (*model.Request, error) {
	req := &model.Request{}
	var status, priority string
	err := row.Scan(
		&req.ID, &req.RequestedBy, &req.Title, &req.Description, &status, &priority, &req.Payload,
		&req.RetryCount, &req.MaxRetries, &req.Version, &req.CreatedAt, &req.UpdatedAt,
		&req.ProcessingStartedAt, &req.ProcessingCompletedAt, &req.EstimatedCompletionAt, &req.ActualCompletionAt, &req.FailureReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	req.Status = model.RequestStatus(status)
	req.Priority = model.Priority(priority)
	return req, nil
}

func scanRequests(rows pgx.Rows) ([]*model.Request, error) {
	var out []*model.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
