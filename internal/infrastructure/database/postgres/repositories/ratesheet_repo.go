package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/turtacn/toda-franchise/internal/domain/ratesheet"
	"github.com/turtacn/toda-franchise/internal/infrastructure/database/postgres"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/toda-franchise/pkg/errors"
)

const rateSheetColumns = `id, name, fee_type, created_at, updated_at, deleted_at`

const feeColumns = `id, rate_sheet_id, name, amount, is_penalty, activate_penalty_after_expiry_days`

type postgresRateSheetRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

// NewPostgresRateSheetRepo returns a ratesheet.Repository backed by conn.
func NewPostgresRateSheetRepo(conn *postgres.Connection, log logging.Logger) ratesheet.Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresRateSheetRepo{conn: conn, log: log, executor: conn.DB()}
}

func rateSheetNotFound(detail string) func() error {
	return func() error {
		return errors.New(errors.ErrCodeRateSheetNotFound, "rate sheet not found").WithDetail(detail)
	}
}

func scanRateSheet(row scanner) (*ratesheet.RateSheet, error) {
	s := &ratesheet.RateSheet{}
	if err := row.Scan(&s.ID, &s.Name, &s.FeeType, &s.CreatedAt, &s.UpdatedAt, &s.DeletedAt); err != nil {
		return nil, err
	}
	s.Fees = make([]*ratesheet.Fee, 0)
	return s, nil
}

func insertFees(ctx context.Context, tx *sql.Tx, s *ratesheet.RateSheet) error {
	for _, f := range s.Fees {
		f.RateSheetID = s.ID
		err := tx.QueryRowContext(ctx, `
			INSERT INTO rate_sheet_fees (rate_sheet_id, name, amount, is_penalty, activate_penalty_after_expiry_days)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			s.ID, f.Name, f.Amount, f.IsPenalty, f.ActivatePenaltyAfterExpiryDays,
		).Scan(&f.ID)
		if err != nil {
			return mapError(err, nil, "failed to insert fee")
		}
	}
	return nil
}

func (r *postgresRateSheetRepo) Create(ctx context.Context, s *ratesheet.RateSheet) error {
	return withTx(ctx, r.conn, r.log, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO rate_sheets (name, fee_type) VALUES ($1, $2) RETURNING id, created_at, updated_at`,
			s.Name, s.FeeType,
		).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return mapError(err, nil, "failed to create rate sheet")
		}
		return insertFees(ctx, tx, s)
	})
}

// Update rewrites the name and replaces the fee list. The bumped updated_at
// only affects the asOf cutoff; version order stays by created_at.
func (r *postgresRateSheetRepo) Update(ctx context.Context, s *ratesheet.RateSheet) error {
	return withTx(ctx, r.conn, r.log, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`UPDATE rate_sheets SET name = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL RETURNING updated_at`,
			s.ID, s.Name,
		).Scan(&s.UpdatedAt)
		if err != nil {
			return mapError(err, rateSheetNotFound(fmt.Sprintf("id=%d", s.ID)), "failed to update rate sheet")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM rate_sheet_fees WHERE rate_sheet_id = $1`, s.ID); err != nil {
			return mapError(err, nil, "failed to clear fees")
		}
		return insertFees(ctx, tx, s)
	})
}

func (r *postgresRateSheetRepo) SoftDelete(ctx context.Context, id int64) error {
	res, err := r.executor.ExecContext(ctx,
		`UPDATE rate_sheets SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return mapError(err, nil, "failed to delete rate sheet")
	}
	return requireAffected(res, rateSheetNotFound(fmt.Sprintf("id=%d", id))())
}

// attachFees loads the fees of every sheet in one query, in insertion order.
func (r *postgresRateSheetRepo) attachFees(ctx context.Context, sheets []*ratesheet.RateSheet) error {
	if len(sheets) == 0 {
		return nil
	}
	ids := lo.Map(sheets, func(s *ratesheet.RateSheet, _ int) int64 { return s.ID })
	rows, err := r.executor.QueryContext(ctx,
		`SELECT `+feeColumns+` FROM rate_sheet_fees WHERE rate_sheet_id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return mapError(err, nil, "failed to query fees")
	}
	defer rows.Close()

	byID := lo.KeyBy(sheets, func(s *ratesheet.RateSheet) int64 { return s.ID })
	for rows.Next() {
		f := &ratesheet.Fee{}
		if err := rows.Scan(&f.ID, &f.RateSheetID, &f.Name, &f.Amount, &f.IsPenalty, &f.ActivatePenaltyAfterExpiryDays); err != nil {
			return mapError(err, nil, "failed to scan fee")
		}
		if s, ok := byID[f.RateSheetID]; ok {
			s.Fees = append(s.Fees, f)
		}
	}
	return mapError(rows.Err(), nil, "failed to iterate fees")
}

func (r *postgresRateSheetRepo) GetByID(ctx context.Context, id int64) (*ratesheet.RateSheet, error) {
	s, err := scanRateSheet(r.executor.QueryRowContext(ctx,
		`SELECT `+rateSheetColumns+` FROM rate_sheets WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil {
		return nil, mapError(err, rateSheetNotFound(fmt.Sprintf("id=%d", id)), "failed to get rate sheet")
	}
	if err := r.attachFees(ctx, []*ratesheet.RateSheet{s}); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *postgresRateSheetRepo) List(ctx context.Context, t ratesheet.FeeType) ([]*ratesheet.RateSheet, error) {
	query := `SELECT ` + rateSheetColumns + ` FROM rate_sheets WHERE deleted_at IS NULL`
	var args []interface{}
	if t != "" {
		args = append(args, t)
		query += ` AND fee_type = $1`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, nil, "failed to list rate sheets")
	}
	defer rows.Close()

	sheets := make([]*ratesheet.RateSheet, 0)
	for rows.Next() {
		s, err := scanRateSheet(rows)
		if err != nil {
			return nil, mapError(err, nil, "failed to scan rate sheet")
		}
		sheets = append(sheets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, nil, "failed to iterate rate sheets")
	}
	if err := r.attachFees(ctx, sheets); err != nil {
		return nil, err
	}
	return sheets, nil
}

// Latest returns the most recently created live sheet of t. With asOf, only
// sheets last updated at or before asOf are candidates.
func (r *postgresRateSheetRepo) Latest(ctx context.Context, t ratesheet.FeeType, asOf *time.Time) (*ratesheet.RateSheet, error) {
	query := `SELECT ` + rateSheetColumns + ` FROM rate_sheets WHERE fee_type = $1 AND deleted_at IS NULL`
	args := []interface{}{t}
	if asOf != nil {
		args = append(args, *asOf)
		query += ` AND updated_at <= $2`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT 1`

	s, err := scanRateSheet(r.executor.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(err, rateSheetNotFound("fee_type="+string(t)), "failed to find latest rate sheet")
	}
	if err := r.attachFees(ctx, []*ratesheet.RateSheet{s}); err != nil {
		return nil, err
	}
	return s, nil
}

type postgresUsageChecker struct {
	executor queryExecutor
}

// NewPostgresUsageChecker reports sheet usage from settled approvals.
func NewPostgresUsageChecker(conn *postgres.Connection) ratesheet.UsageChecker {
	return &postgresUsageChecker{executor: conn.DB()}
}

// ApprovedSince checks registrations for registration sheets and renewals
// for renewal sheets.
func (c *postgresUsageChecker) ApprovedSince(ctx context.Context, t ratesheet.FeeType, since time.Time) (bool, error) {
	table := "franchises"
	if t == ratesheet.FeeTypeRenewal {
		table = "franchise_renewals"
	}
	var used bool
	err := c.executor.QueryRowContext(ctx, `SELECT EXISTS (
		SELECT 1 FROM `+table+`
		WHERE deleted_at IS NULL
		  AND approval_status IN ('paid', 'approved')
		  AND approval_date >= $1)`, since).Scan(&used)
	if err != nil {
		return false, mapError(err, nil, "failed to check rate sheet usage")
	}
	return used, nil
}
