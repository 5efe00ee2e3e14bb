package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/passe"
)

const (
	passColumns       = "id, user_id, code, updated_at, active, totp_secret"
	validationColumns = "id, pass_id, user_id, validator_id, code, method, validated_at, valid, ip_address, note"
)

type passRow struct {
	ID         int       `db:"id"`
	UserID     int       `db:"user_id"`
	Code       string    `db:"code"`
	UpdatedAt  time.Time `db:"updated_at"`
	Active     bool      `db:"active"`
	TOTPSecret string    `db:"totp_secret"`
}

func (row passRow) unmarshal() passe.Pass {
	return passe.Pass{
		ID:         row.ID,
		UserID:     row.UserID,
		Code:       row.Code,
		UpdatedAt:  row.UpdatedAt.UTC(),
		Active:     row.Active,
		TOTPSecret: row.TOTPSecret,
	}
}

type validationRow struct {
	ID          int         `db:"id"`
	PassID      null.Int    `db:"pass_id"`
	UserID      null.Int    `db:"user_id"`
	ValidatorID null.Int    `db:"validator_id"`
	Code        string      `db:"code"`
	Method      string      `db:"method"`
	ValidatedAt time.Time   `db:"validated_at"`
	Valid       bool        `db:"valid"`
	IPAddress   null.String `db:"ip_address"`
	Note        string      `db:"note"`
}

func (row validationRow) unmarshal() passe.Validation {
	return passe.Validation{
		ID:          row.ID,
		PassID:      row.PassID.Ptr(),
		UserID:      row.UserID.Ptr(),
		ValidatorID: row.ValidatorID.Ptr(),
		Code:        row.Code,
		Method:      row.Method,
		ValidatedAt: row.ValidatedAt.UTC(),
		Valid:       row.Valid,
		IPAddress:   row.IPAddress.String,
		Note:        row.Note,
	}
}

type passeRepository struct {
	repo
}

var _ passe.Repository = (*passeRepository)(nil) // interface compliance check

func NewPasseRepository(db *sqlx.DB) passe.Repository {
	return &passeRepository{repo{db: db}}
}

func (r passeRepository) GetPass(ctx context.Context, filter passe.GetFilter, exec ...core.DBExecutor) (passe.Pass, error) {
	var row passRow
	var err error
	switch {
	case filter.UserID != 0:
		err = sqlx.GetContext(ctx, r.getExt(exec), &row, "SELECT "+passColumns+" FROM passes WHERE user_id = $1", filter.UserID)
	case filter.Code != "":
		err = sqlx.GetContext(ctx, r.getExt(exec), &row, "SELECT "+passColumns+" FROM passes WHERE code = $1", filter.Code)
	default:
		return passe.Pass{}, passe.ErrPassNotFound
	}
	if err != nil {
		if err == sql.ErrNoRows {
			return passe.Pass{}, passe.ErrPassNotFound
		}
		return passe.Pass{}, errors.Wrap(err, "finding pass")
	}
	return row.unmarshal(), nil
}

func (r passeRepository) CreatePass(ctx context.Context, p passe.Pass, exec ...core.DBExecutor) (passe.Pass, error) {
	q := "INSERT INTO passes (user_id, code, updated_at, active, totp_secret) VALUES ($1, $2, $3, $4, $5) RETURNING id"
	if err := sqlx.GetContext(ctx, r.getExt(exec), &p.ID, q, p.UserID, p.Code, p.UpdatedAt.UTC(), p.Active, p.TOTPSecret); err != nil {
		return passe.Pass{}, errors.Wrap(err, "inserting pass")
	}
	return p, nil
}

func (r passeRepository) UpdatePass(ctx context.Context, p passe.Pass, exec ...core.DBExecutor) (passe.Pass, error) {
	q := "UPDATE passes SET code = $1, updated_at = $2, active = $3, totp_secret = $4 WHERE id = $5"
	n, err := rowsAffected(r.getExec(exec).ExecContext(ctx, q, p.Code, p.UpdatedAt.UTC(), p.Active, p.TOTPSecret, p.ID))
	if err != nil {
		return passe.Pass{}, errors.Wrap(err, "updating pass")
	}
	if n == 0 {
		return passe.Pass{}, passe.ErrPassNotFound
	}
	return p, nil
}

func (r passeRepository) RotateCode(ctx context.Context, passID int, oldCode, newCode string, now time.Time, exec ...core.DBExecutor) (bool, error) {
	q := "UPDATE passes SET code = $3, updated_at = $4 WHERE id = $1 AND code = $2 AND active"
	n, err := rowsAffected(r.getExec(exec).ExecContext(ctx, q, passID, oldCode, newCode, now.UTC()))
	if err != nil {
		return false, errors.Wrap(err, "rotating pass code")
	}
	return n == 1, nil
}

func (r passeRepository) DeletePasses(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	n, err := rowsAffected(r.getExec(exec).ExecContext(ctx, "DELETE FROM passes"))
	if err != nil {
		return 0, errors.Wrap(err, "deleting passes")
	}
	return n, nil
}

func (r passeRepository) CreateValidation(ctx context.Context, v passe.Validation, exec ...core.DBExecutor) (passe.Validation, error) {
	q := `INSERT INTO pass_validations (pass_id, user_id, validator_id, code, method, validated_at, valid, ip_address, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	err := sqlx.GetContext(ctx, r.getExt(exec), &v.ID, q,
		null.IntFromPtr(v.PassID),
		null.IntFromPtr(v.UserID),
		null.IntFromPtr(v.ValidatorID),
		v.Code,
		v.Method,
		v.ValidatedAt.UTC(),
		v.Valid,
		null.NewString(v.IPAddress, v.IPAddress != ""),
		v.Note,
	)
	if err != nil {
		return passe.Validation{}, errors.Wrap(err, "inserting validation")
	}
	return v, nil
}

func (r passeRepository) ListValidations(ctx context.Context, filter passe.ValidationFilter, exec ...core.DBExecutor) ([]passe.Validation, error) {
	var w where
	if filter.UserID != 0 {
		w.add("user_id = ?", filter.UserID)
	}
	if filter.ValidOnly {
		w.add("valid")
	}
	if !filter.Since.IsZero() {
		w.add("validated_at >= ?", filter.Since.UTC())
	}
	q := "SELECT " + validationColumns + " FROM pass_validations" + w.String() + " ORDER BY validated_at DESC, id DESC"
	args := w.args
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []validationRow
	if err := sqlx.SelectContext(ctx, r.getExt(exec), &rows, rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "listing validations")
	}
	vals := make([]passe.Validation, 0, len(rows))
	for _, row := range rows {
		vals = append(vals, row.unmarshal())
	}
	return vals, nil
}

func (r passeRepository) CountValidations(ctx context.Context, since time.Time, exec ...core.DBExecutor) (passe.Counts, error) {
	var counts passe.Counts
	q := `SELECT COUNT(*) AS total,
		COUNT(*) FILTER (WHERE valid) AS valid,
		COUNT(*) FILTER (WHERE NOT valid) AS invalid
		FROM pass_validations WHERE validated_at >= $1`
	if err := queries.Raw(q, since.UTC()).Bind(ctx, r.getExec(exec), &counts); err != nil {
		return passe.Counts{}, errors.Wrap(err, "counting validations")
	}
	return counts, nil
}
