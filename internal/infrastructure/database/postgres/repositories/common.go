// Package repositories implements the domain repositories on PostgreSQL via
// database/sql and lib/pq.
package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/turtacn/toda-franchise/internal/infrastructure/database/postgres"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/toda-franchise/pkg/errors"
)

// queryExecutor abstracts sql.DB and sql.Tx.
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

const pqUniqueViolation = "23505"

// mapError translates driver errors: no rows becomes notFound, a unique
// violation becomes ConflictingRecord, anything else a DatabaseError.
func mapError(err error, notFound func() error, op string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, sql.ErrNoRows) && notFound != nil {
		return notFound()
	}
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return errors.Wrap(err, errors.ErrCodeConflictingRecord, op+": record already exists").
			WithDetail(pqErr.Constraint)
	}
	return errors.Wrap(err, errors.ErrCodeDatabaseError, op)
}

// withTx runs fn inside a transaction on conn, rolling back on error.
func withTx(ctx context.Context, conn *postgres.Connection, log logging.Logger, fn func(tx *sql.Tx) error) error {
	tx, err := conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !stderrors.Is(rbErr, sql.ErrTxDone) {
			log.Warn("transaction rollback failed", logging.Err(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to commit transaction")
	}
	return nil
}

// requireAffected turns a zero-row update into err.
func requireAffected(res sql.Result, err error) error {
	n, rerr := res.RowsAffected()
	if rerr != nil {
		return errors.Wrap(rerr, errors.ErrCodeDatabaseError, "failed to read affected rows")
	}
	if n == 0 {
		return err
	}
	return nil
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}
