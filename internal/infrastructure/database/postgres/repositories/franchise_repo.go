package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/turtacn/toda-franchise/internal/domain/approval"
	"github.com/turtacn/toda-franchise/internal/domain/franchise"
	"github.com/turtacn/toda-franchise/internal/infrastructure/database/postgres"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/toda-franchise/pkg/errors"
)

const franchiseColumns = `id, owner_id, toda_association_id, mv_file_no, plate_no, vehicle_make,
	vehicle_motor_no, vehicle_chassis_no, owner_driver_license_no, owner_driver_license_no_img_url,
	is_driver_owner, driver_profile_id, vehicle_or_img_url, vehicle_cr_img_url,
	toda_assoc_membership_img_url, brgy_clearance_img_url, voter_reg_record_img_url,
	approval_status, approval_date, expiry_date, payment_or_no, created_at, updated_at, deleted_at`

const renewalColumns = `id, franchise_id, toda_association_id, is_driver_owner, driver_profile_id,
	driver_license_no_img_url, ctc_cedula_img_url, vehicle_or_img_url, vehicle_cr_img_url,
	toda_assoc_membership_img_url, brgy_clearance_img_url, voter_reg_record_img_url,
	approval_status, approval_date, expiry_date, payment_or_no, created_at, updated_at, deleted_at`

const remarkColumns = `id, franchise_id, franchise_renewal_id, field_name, remark, created_at`

type postgresFranchiseRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

// NewPostgresFranchiseRepo returns a franchise.Repository backed by conn.
func NewPostgresFranchiseRepo(conn *postgres.Connection, log logging.Logger) franchise.Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresFranchiseRepo{conn: conn, log: log, executor: conn.DB()}
}

func franchiseNotFound(id int64) func() error {
	return func() error {
		return errors.New(errors.ErrCodeFranchiseNotFound, "franchise not found").WithDetail(fmt.Sprintf("id=%d", id))
	}
}

func renewalNotFound(id int64) func() error {
	return func() error {
		return errors.New(errors.ErrCodeRenewalNotFound, "franchise renewal not found").WithDetail(fmt.Sprintf("id=%d", id))
	}
}

func concurrentModification(kind franchise.Kind, id int64) error {
	return errors.New(errors.ErrCodeConcurrentModification, "record was modified concurrently").
		WithDetail(fmt.Sprintf("%s_id=%d", kind, id))
}

func (r *postgresFranchiseRepo) WithTx(ctx context.Context, fn func(franchise.Repository) error) error {
	if _, inTx := r.executor.(*sql.Tx); inTx {
		return fn(r)
	}
	return withTx(ctx, r.conn, r.log, func(tx *sql.Tx) error {
		return fn(&postgresFranchiseRepo{conn: r.conn, log: r.log, executor: tx})
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanFranchise(row scanner) (*franchise.Franchise, error) {
	f := &franchise.Franchise{}
	err := row.Scan(
		&f.ID, &f.OwnerID, &f.AssociationID, &f.MVFileNo, &f.PlateNo, &f.VehicleMake,
		&f.VehicleMotorNo, &f.VehicleChassisNo, &f.OwnerDriverLicenseNo, &f.OwnerDriverLicenseNoImgURL,
		&f.IsDriverOwner, &f.DriverProfileID, &f.VehicleORImgURL, &f.VehicleCRImgURL,
		&f.TodaAssocMembershipImgURL, &f.BrgyClearanceImgURL, &f.VoterRegRecordImgURL,
		&f.Status, &f.ApprovedAt, &f.ExpiresAt, &f.PaymentORNo, &f.CreatedAt, &f.UpdatedAt, &f.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func scanRenewal(row scanner) (*franchise.Renewal, error) {
	rn := &franchise.Renewal{}
	err := row.Scan(
		&rn.ID, &rn.FranchiseID, &rn.AssociationID, &rn.IsDriverOwner, &rn.DriverProfileID,
		&rn.DriverLicenseNoImgURL, &rn.CtcCedulaImgURL, &rn.VehicleORImgURL, &rn.VehicleCRImgURL,
		&rn.TodaAssocMembershipImgURL, &rn.BrgyClearanceImgURL, &rn.VoterRegRecordImgURL,
		&rn.Status, &rn.ApprovedAt, &rn.ExpiresAt, &rn.PaymentORNo, &rn.CreatedAt, &rn.UpdatedAt, &rn.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return rn, nil
}

func scanRemark(row scanner) (*franchise.StatusRemark, error) {
	rm := &franchise.StatusRemark{}
	if err := row.Scan(&rm.ID, &rm.FranchiseID, &rm.RenewalID, &rm.FieldName, &rm.Remark, &rm.CreatedAt); err != nil {
		return nil, err
	}
	return rm, nil
}

func (r *postgresFranchiseRepo) queryFranchises(ctx context.Context, query string, args ...interface{}) ([]*franchise.Franchise, error) {
	rows, err := r.executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, nil, "failed to query franchises")
	}
	defer rows.Close()

	var out []*franchise.Franchise
	for rows.Next() {
		f, err := scanFranchise(rows)
		if err != nil {
			return nil, mapError(err, nil, "failed to scan franchise")
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, nil, "failed to iterate franchises")
	}
	return out, nil
}

// attachRenewals loads the live renewal chains of fs in one query.
func (r *postgresFranchiseRepo) attachRenewals(ctx context.Context, fs []*franchise.Franchise) error {
	if len(fs) == 0 {
		return nil
	}
	ids := lo.Map(fs, func(f *franchise.Franchise, _ int) int64 { return f.ID })
	rows, err := r.executor.QueryContext(ctx,
		`SELECT `+renewalColumns+` FROM franchise_renewals
		 WHERE franchise_id = ANY($1) AND deleted_at IS NULL
		 ORDER BY created_at DESC, id DESC`, pq.Array(ids))
	if err != nil {
		return mapError(err, nil, "failed to query renewals")
	}
	defer rows.Close()

	byID := lo.KeyBy(fs, func(f *franchise.Franchise) int64 { return f.ID })
	for rows.Next() {
		rn, err := scanRenewal(rows)
		if err != nil {
			return mapError(err, nil, "failed to scan renewal")
		}
		if f, ok := byID[rn.FranchiseID]; ok {
			f.Renewals = append(f.Renewals, rn)
		}
	}
	if err := rows.Err(); err != nil {
		return mapError(err, nil, "failed to iterate renewals")
	}
	return nil
}

// attachRemarks loads the remarks of f and of every renewal in its chain.
func (r *postgresFranchiseRepo) attachRemarks(ctx context.Context, f *franchise.Franchise) error {
	renewalIDs := lo.Map(f.Renewals, func(rn *franchise.Renewal, _ int) int64 { return rn.ID })
	rows, err := r.executor.QueryContext(ctx,
		`SELECT `+remarkColumns+` FROM franchise_status_remarks
		 WHERE franchise_id = $1 OR franchise_renewal_id = ANY($2)
		 ORDER BY created_at, id`, f.ID, pq.Array(renewalIDs))
	if err != nil {
		return mapError(err, nil, "failed to query remarks")
	}
	defer rows.Close()

	byRenewal := lo.KeyBy(f.Renewals, func(rn *franchise.Renewal) int64 { return rn.ID })
	for rows.Next() {
		rm, err := scanRemark(rows)
		if err != nil {
			return mapError(err, nil, "failed to scan remark")
		}
		switch {
		case rm.FranchiseID != nil:
			f.Remarks = append(f.Remarks, rm)
		case rm.RenewalID != nil:
			if rn, ok := byRenewal[*rm.RenewalID]; ok {
				rn.Remarks = append(rn.Remarks, rm)
			}
		}
	}
	return mapError(rows.Err(), nil, "failed to iterate remarks")
}

// ─────────────────────────────────────────────────────────────────────────────
// Franchises
// ─────────────────────────────────────────────────────────────────────────────

func (r *postgresFranchiseRepo) Create(ctx context.Context, f *franchise.Franchise) error {
	query := `
		INSERT INTO franchises (
			owner_id, toda_association_id, mv_file_no, plate_no, vehicle_make, vehicle_motor_no,
			vehicle_chassis_no, owner_driver_license_no, owner_driver_license_no_img_url, is_driver_owner,
			driver_profile_id, vehicle_or_img_url, vehicle_cr_img_url, toda_assoc_membership_img_url,
			brgy_clearance_img_url, voter_reg_record_img_url, approval_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at, updated_at`
	err := r.executor.QueryRowContext(ctx, query,
		f.OwnerID, f.AssociationID, f.MVFileNo, f.PlateNo, f.VehicleMake, f.VehicleMotorNo,
		f.VehicleChassisNo, f.OwnerDriverLicenseNo, f.OwnerDriverLicenseNoImgURL, f.IsDriverOwner,
		f.DriverProfileID, f.VehicleORImgURL, f.VehicleCRImgURL, f.TodaAssocMembershipImgURL,
		f.BrgyClearanceImgURL, f.VoterRegRecordImgURL, f.Status,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	return mapError(err, nil, "failed to create franchise")
}

func (r *postgresFranchiseRepo) Update(ctx context.Context, f *franchise.Franchise) error {
	query := `
		UPDATE franchises SET
			toda_association_id = $2, mv_file_no = $3, plate_no = $4, vehicle_make = $5,
			vehicle_motor_no = $6, vehicle_chassis_no = $7, owner_driver_license_no = $8,
			owner_driver_license_no_img_url = $9, is_driver_owner = $10, driver_profile_id = $11,
			vehicle_or_img_url = $12, vehicle_cr_img_url = $13, toda_assoc_membership_img_url = $14,
			brgy_clearance_img_url = $15, voter_reg_record_img_url = $16, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.executor.ExecContext(ctx, query,
		f.ID, f.AssociationID, f.MVFileNo, f.PlateNo, f.VehicleMake,
		f.VehicleMotorNo, f.VehicleChassisNo, f.OwnerDriverLicenseNo,
		f.OwnerDriverLicenseNoImgURL, f.IsDriverOwner, f.DriverProfileID,
		f.VehicleORImgURL, f.VehicleCRImgURL, f.TodaAssocMembershipImgURL,
		f.BrgyClearanceImgURL, f.VoterRegRecordImgURL,
	)
	if err != nil {
		return mapError(err, nil, "failed to update franchise")
	}
	return requireAffected(res, franchiseNotFound(f.ID)())
}

func (r *postgresFranchiseRepo) SoftDelete(ctx context.Context, id int64) error {
	res, err := r.executor.ExecContext(ctx,
		`UPDATE franchises SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return mapError(err, nil, "failed to delete franchise")
	}
	return requireAffected(res, franchiseNotFound(id)())
}

func (r *postgresFranchiseRepo) get(ctx context.Context, id int64, forUpdate bool) (*franchise.Franchise, error) {
	query := `SELECT ` + franchiseColumns + ` FROM franchises WHERE id = $1 AND deleted_at IS NULL`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	f, err := scanFranchise(r.executor.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err, franchiseNotFound(id), "failed to get franchise")
	}
	if err := r.attachRenewals(ctx, []*franchise.Franchise{f}); err != nil {
		return nil, err
	}
	if err := r.attachRemarks(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *postgresFranchiseRepo) GetByID(ctx context.Context, id int64) (*franchise.Franchise, error) {
	return r.get(ctx, id, false)
}

func (r *postgresFranchiseRepo) GetByIDForUpdate(ctx context.Context, id int64) (*franchise.Franchise, error) {
	return r.get(ctx, id, true)
}

func (r *postgresFranchiseRepo) List(ctx context.Context, opts ...franchise.ListOption) ([]*franchise.Franchise, error) {
	o := franchise.ApplyListOptions(opts...)

	var (
		where = []string{"deleted_at IS NULL"}
		args  []interface{}
	)
	if o.OwnerID != nil {
		args = append(args, *o.OwnerID)
		where = append(where, "owner_id = "+placeholder(len(args)))
	}
	if len(o.IDs) > 0 {
		args = append(args, pq.Array(o.IDs))
		where = append(where, "id = ANY("+placeholder(len(args))+")")
	}
	if q := strings.TrimSpace(o.Query); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		p := placeholder(len(args))
		where = append(where, fmt.Sprintf("(plate_no ILIKE %[1]s OR vehicle_make ILIKE %[1]s OR vehicle_motor_no ILIKE %[1]s OR vehicle_chassis_no ILIKE %[1]s)", p))
	}

	dir := "ASC"
	if o.SortDesc {
		dir = "DESC"
	}
	query := fmt.Sprintf(`SELECT %s FROM franchises WHERE %s ORDER BY %s %s, id %s`,
		franchiseColumns, strings.Join(where, " AND "), o.SortBy, dir, dir)
	if o.Limit > 0 {
		args = append(args, o.Limit)
		query += " LIMIT " + placeholder(len(args))
	}

	fs, err := r.queryFranchises(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if err := r.attachRenewals(ctx, fs); err != nil {
		return nil, err
	}
	return fs, nil
}

func (r *postgresFranchiseRepo) FindByPlate(ctx context.Context, plateNo string) ([]*franchise.Franchise, error) {
	fs, err := r.queryFranchises(ctx,
		`SELECT `+franchiseColumns+` FROM franchises WHERE plate_no = $1 AND deleted_at IS NULL ORDER BY id`,
		franchise.NormalizeIdentifier(plateNo))
	if err != nil {
		return nil, err
	}
	if err := r.attachRenewals(ctx, fs); err != nil {
		return nil, err
	}
	return fs, nil
}

func (r *postgresFranchiseRepo) SaveLifecycle(ctx context.Context, id int64, prev approval.Status, lc franchise.Lifecycle) error {
	res, err := r.executor.ExecContext(ctx, `
		UPDATE franchises SET
			approval_status = $2, approval_date = $3, expiry_date = $4, payment_or_no = $5, updated_at = NOW()
		WHERE id = $1 AND approval_status = $6 AND deleted_at IS NULL`,
		id, lc.Status, lc.ApprovedAt, lc.ExpiresAt, lc.PaymentORNo, prev)
	if err != nil {
		return mapError(err, nil, "failed to save franchise status")
	}
	return requireAffected(res, concurrentModification(franchise.KindFranchise, id))
}

// ─────────────────────────────────────────────────────────────────────────────
// Renewals
// ─────────────────────────────────────────────────────────────────────────────

func (r *postgresFranchiseRepo) CreateRenewal(ctx context.Context, rn *franchise.Renewal) error {
	query := `
		INSERT INTO franchise_renewals (
			franchise_id, toda_association_id, is_driver_owner, driver_profile_id,
			driver_license_no_img_url, ctc_cedula_img_url, vehicle_or_img_url, vehicle_cr_img_url,
			toda_assoc_membership_img_url, brgy_clearance_img_url, voter_reg_record_img_url, approval_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`
	err := r.executor.QueryRowContext(ctx, query,
		rn.FranchiseID, rn.AssociationID, rn.IsDriverOwner, rn.DriverProfileID,
		rn.DriverLicenseNoImgURL, rn.CtcCedulaImgURL, rn.VehicleORImgURL, rn.VehicleCRImgURL,
		rn.TodaAssocMembershipImgURL, rn.BrgyClearanceImgURL, rn.VoterRegRecordImgURL, rn.Status,
	).Scan(&rn.ID, &rn.CreatedAt, &rn.UpdatedAt)
	return mapError(err, nil, "failed to create renewal")
}

func (r *postgresFranchiseRepo) UpdateRenewal(ctx context.Context, rn *franchise.Renewal) error {
	query := `
		UPDATE franchise_renewals SET
			toda_association_id = $2, is_driver_owner = $3, driver_profile_id = $4,
			driver_license_no_img_url = $5, ctc_cedula_img_url = $6, vehicle_or_img_url = $7,
			vehicle_cr_img_url = $8, toda_assoc_membership_img_url = $9, brgy_clearance_img_url = $10,
			voter_reg_record_img_url = $11, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.executor.ExecContext(ctx, query,
		rn.ID, rn.AssociationID, rn.IsDriverOwner, rn.DriverProfileID,
		rn.DriverLicenseNoImgURL, rn.CtcCedulaImgURL, rn.VehicleORImgURL,
		rn.VehicleCRImgURL, rn.TodaAssocMembershipImgURL, rn.BrgyClearanceImgURL,
		rn.VoterRegRecordImgURL,
	)
	if err != nil {
		return mapError(err, nil, "failed to update renewal")
	}
	return requireAffected(res, renewalNotFound(rn.ID)())
}

func (r *postgresFranchiseRepo) SoftDeleteRenewal(ctx context.Context, id int64) error {
	res, err := r.executor.ExecContext(ctx,
		`UPDATE franchise_renewals SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return mapError(err, nil, "failed to delete renewal")
	}
	return requireAffected(res, renewalNotFound(id)())
}

func (r *postgresFranchiseRepo) getRenewal(ctx context.Context, id int64, forUpdate bool) (*franchise.Renewal, error) {
	query := `SELECT ` + renewalColumns + ` FROM franchise_renewals WHERE id = $1 AND deleted_at IS NULL`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rn, err := scanRenewal(r.executor.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err, renewalNotFound(id), "failed to get renewal")
	}
	return rn, nil
}

func (r *postgresFranchiseRepo) GetRenewal(ctx context.Context, id int64) (*franchise.Renewal, error) {
	return r.getRenewal(ctx, id, false)
}

func (r *postgresFranchiseRepo) GetRenewalForUpdate(ctx context.Context, id int64) (*franchise.Renewal, error) {
	return r.getRenewal(ctx, id, true)
}

func (r *postgresFranchiseRepo) SaveRenewalLifecycle(ctx context.Context, id int64, prev approval.Status, lc franchise.Lifecycle) error {
	res, err := r.executor.ExecContext(ctx, `
		UPDATE franchise_renewals SET
			approval_status = $2, approval_date = $3, expiry_date = $4, payment_or_no = $5, updated_at = NOW()
		WHERE id = $1 AND approval_status = $6 AND deleted_at IS NULL`,
		id, lc.Status, lc.ApprovedAt, lc.ExpiresAt, lc.PaymentORNo, prev)
	if err != nil {
		return mapError(err, nil, "failed to save renewal status")
	}
	return requireAffected(res, concurrentModification(franchise.KindRenewal, id))
}

// ─────────────────────────────────────────────────────────────────────────────
// Remarks
// ─────────────────────────────────────────────────────────────────────────────

func (r *postgresFranchiseRepo) AddRemarks(ctx context.Context, remarks []*franchise.StatusRemark) error {
	for _, rm := range remarks {
		err := r.executor.QueryRowContext(ctx, `
			INSERT INTO franchise_status_remarks (franchise_id, franchise_renewal_id, field_name, remark, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			rm.FranchiseID, rm.RenewalID, rm.FieldName, rm.Remark, rm.CreatedAt,
		).Scan(&rm.ID)
		if err != nil {
			return mapError(err, nil, "failed to add remark")
		}
	}
	return nil
}
