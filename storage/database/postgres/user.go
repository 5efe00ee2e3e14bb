package pgrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/user"
)

const userColumns = "id, name, email, role, is_staff, is_superuser, is_active, phone, birth_date, password_hash, created_at, updated_at, last_login"

type userRow struct {
	ID           int       `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	Role         string    `db:"role"`
	IsStaff      bool      `db:"is_staff"`
	IsSuperuser  bool      `db:"is_superuser"`
	IsActive     bool      `db:"is_active"`
	Phone        string    `db:"phone"`
	BirthDate    null.Time `db:"birth_date"`
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastLogin    null.Time `db:"last_login"`
}

func (row userRow) unmarshal() user.User {
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		Role:         row.Role,
		IsStaff:      row.IsStaff,
		IsSuperuser:  row.IsSuperuser,
		IsActive:     row.IsActive,
		Phone:        row.Phone,
		BirthDate:    row.BirthDate.Ptr(),
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		LastLogin:    row.LastLogin.Time.UTC(),
	}
}

func userArgs(usr user.User) []interface{} {
	return []interface{}{
		usr.Name,
		usr.Email,
		usr.Role,
		usr.IsStaff,
		usr.IsSuperuser,
		usr.IsActive,
		usr.Phone,
		null.TimeFromPtr(usr.BirthDate),
		usr.PasswordHash,
		usr.CreatedAt.UTC(),
		usr.UpdatedAt.UTC(),
		null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

type userRepository struct {
	repo
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{repo{db: db}}
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (r userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (r userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedIDs []int, exec ...core.DBExecutor) error {
	var w where
	w.add("LOWER(email) = LOWER(?)", email)
	if len(excludedIDs) > 0 {
		w.add("NOT (id = ANY(?))", pq.Array(excludedIDs))
	}
	cnt, err := r.count(ctx, exec, rebind("SELECT COUNT(*) AS count FROM users"+w.String()), w.args...)
	if err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if cnt > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (r userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	q := `INSERT INTO users (name, email, role, is_staff, is_superuser, is_active, phone, birth_date, password_hash, created_at, updated_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`
	if err := sqlx.GetContext(ctx, r.getExt(exec), &usr.ID, q, userArgs(usr)...); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (r userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var row userRow
	var err error
	switch {
	case filter.ID != 0:
		err = sqlx.GetContext(ctx, r.getExt(exec), &row, "SELECT "+userColumns+" FROM users WHERE id = $1", filter.ID)
	case filter.Email != "":
		err = sqlx.GetContext(ctx, r.getExt(exec), &row, "SELECT "+userColumns+" FROM users WHERE LOWER(email) = LOWER($1)", filter.Email)
	default:
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, r.trapNoRowsErr(err, "finding user")
	}
	return row.unmarshal(), nil
}

func papelCondition(papel string) string {
	switch papel {
	case user.PapelSuperuser:
		return "is_superuser"
	case user.PapelManager:
		return "(NOT is_superuser AND role = '" + user.RoleManager + "')"
	case user.PapelEvents:
		return "(NOT is_superuser AND role = '" + user.RoleEvents + "')"
	case user.PapelNone:
		return "(NOT is_superuser AND role = '')"
	}
	return ""
}

func userWhere(filter *user.QueryFilter) where {
	var w where
	if filter == nil {
		return w
	}
	// users with Name or Email matching the search keyword
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		w.add("(name ILIKE ? OR email ILIKE ?)", val, val)
	}
	if len(filter.Papeis) > 0 {
		conds := make([]string, 0, len(filter.Papeis))
		for _, p := range filter.Papeis {
			if c := papelCondition(p); c != "" {
				conds = append(conds, c)
			}
		}
		if len(conds) > 0 {
			w.add("(" + strings.Join(conds, " OR ") + ")")
		}
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	if filter.IsStaff != nil {
		w.add("is_staff = ?", *filter.IsStaff)
	}
	if !filter.CreatedFrom.IsZero() {
		w.add("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		w.add("created_at <= ?", filter.CreatedTo.UTC())
	}
	return w
}

func (r userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, page core.Page, exec ...core.DBExecutor) ([]user.User, int, error) {
	w := userWhere(filter)

	count, err := r.count(ctx, exec, rebind("SELECT COUNT(*) AS count FROM users"+w.String()), w.args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting users")
	}

	ordering = core.CleanOrderings(ordering, user.OrderingFields)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	q := "SELECT " + userColumns + " FROM users" + w.String() + orderBy(ordering) + " LIMIT ? OFFSET ?"
	args := append(w.args, page.Size, page.Offset())

	var rows []userRow
	if err = sqlx.SelectContext(ctx, r.getExt(exec), &rows, rebind(q), args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.unmarshal())
	}
	return users, count, nil
}

func (r userRepository) CountUsers(ctx context.Context, exec ...core.DBExecutor) (user.Counts, error) {
	var counts user.Counts
	q := `SELECT COUNT(*) AS total,
		COUNT(*) FILTER (WHERE is_active) AS active,
		COUNT(*) FILTER (WHERE NOT is_active) AS inactive,
		COUNT(*) FILTER (WHERE is_staff OR is_superuser) AS admins
		FROM users`
	if err := queries.Raw(q).Bind(ctx, r.getExec(exec), &counts); err != nil {
		return user.Counts{}, errors.Wrap(err, "counting users")
	}
	return counts, nil
}

func (r userRepository) ListActiveUserIDs(ctx context.Context, exec ...core.DBExecutor) ([]int, error) {
	ids := make([]int, 0)
	if err := sqlx.SelectContext(ctx, r.getExt(exec), &ids, "SELECT id FROM users WHERE is_active ORDER BY id"); err != nil {
		return nil, errors.Wrap(err, "listing active users")
	}
	return ids, nil
}

func (r userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	q := `UPDATE users SET name = $1, email = $2, role = $3, is_staff = $4, is_superuser = $5, is_active = $6, phone = $7,
		birth_date = $8, password_hash = $9, created_at = $10, updated_at = $11, last_login = $12 WHERE id = $13`
	n, err := rowsAffected(r.getExec(exec).ExecContext(ctx, q, append(userArgs(usr), usr.ID)...))
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (r userRepository) DeleteUsers(ctx context.Context, ids []int, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.getExec(exec).ExecContext(ctx, "DELETE FROM users WHERE id = ANY($1)", pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}
