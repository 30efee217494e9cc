package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/turtacn/toda-franchise/internal/domain/franchise"
	"github.com/turtacn/toda-franchise/internal/infrastructure/database/postgres"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/toda-franchise/pkg/errors"
)

const associationColumns = `id, name, authorized_route, president_first_name, president_last_name,
	president_middle_name, created_at, updated_at`

type postgresAssociationRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

func NewPostgresAssociationRepo(conn *postgres.Connection, log logging.Logger) franchise.AssociationRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresAssociationRepo{conn: conn, log: log, executor: conn.DB()}
}

func scanAssociation(row scanner) (*franchise.Association, error) {
	a := &franchise.Association{}
	err := row.Scan(&a.ID, &a.Name, &a.AuthorizedRoute, &a.PresidentFirstName, &a.PresidentLastName,
		&a.PresidentMiddleName, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *postgresAssociationRepo) Create(ctx context.Context, a *franchise.Association) error {
	err := r.executor.QueryRowContext(ctx, `
		INSERT INTO toda_associations (name, authorized_route, president_first_name, president_last_name, president_middle_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		a.Name, a.AuthorizedRoute, a.PresidentFirstName, a.PresidentLastName, a.PresidentMiddleName,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return mapError(err, nil, "failed to create association")
}

func (r *postgresAssociationRepo) GetByID(ctx context.Context, id int64) (*franchise.Association, error) {
	a, err := scanAssociation(r.executor.QueryRowContext(ctx,
		`SELECT `+associationColumns+` FROM toda_associations WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, func() error {
			return errors.New(errors.ErrCodeAssociationNotFound, "association not found").WithDetail(fmt.Sprintf("id=%d", id))
		}, "failed to get association")
	}
	return a, nil
}

// List returns associations whose name or route matches query, by name.
func (r *postgresAssociationRepo) List(ctx context.Context, query string) ([]*franchise.Association, error) {
	sqlQuery := `SELECT ` + associationColumns + ` FROM toda_associations`
	var args []interface{}
	if q := strings.TrimSpace(query); q != "" {
		args = append(args, "%"+q+"%")
		sqlQuery += ` WHERE name ILIKE $1 OR authorized_route ILIKE $1`
	}
	sqlQuery += ` ORDER BY name, id`

	rows, err := r.executor.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, mapError(err, nil, "failed to list associations")
	}
	defer rows.Close()

	out := make([]*franchise.Association, 0)
	for rows.Next() {
		a, err := scanAssociation(rows)
		if err != nil {
			return nil, mapError(err, nil, "failed to scan association")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, nil, "failed to iterate associations")
	}
	return out, nil
}
