package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"itsm-ticket-bridge/internal/domain"
	"itsm-ticket-bridge/internal/domain/ports/repository"
)

// queryRunner is the common surface of *pgxpool.Pool and pgx.Tx.
type queryRunner interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// runner resolves the execution context: a pgx.Tx when one was passed down,
// the pool otherwise. Anything else is a caller bug.
func runner(pool *pgxpool.Pool, tx repository.Tx) (queryRunner, error) {
	if tx == nil {
		if pool == nil {
			return nil, domain.ErrInvalidExecContext
		}
		return pool, nil
	}
	if t, ok := tx.(pgx.Tx); ok {
		return t, nil
	}
	return nil, domain.ErrInvalidExecContext
}

func execSQL(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	q, err := runner(pool, tx)
	if err != nil {
		return nil, err
	}
	cmd, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return nil, translateErr(err)
	}
	return cmd, nil
}

func pickRow(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, sql string, args ...interface{}) (pgx.Row, error) {
	q, err := runner(pool, tx)
	if err != nil {
		return nil, err
	}
	return q.QueryRow(ctx, sql, args...), nil
}

func pickRows(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, sql string, args ...interface{}) (pgx.Rows, error) {
	q, err := runner(pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, translateErr(err)
	}
	return rows, nil
}

// translateErr maps driver errors onto domain sentinels. Unique violations
// and serialization failures both surface as ErrConflict so callers see one
// concurrency error regardless of which guard tripped.
func translateErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001": // unique_violation, serialization_failure
			return domain.ErrConflict
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return domain.ErrOperationFailed
}
