package pgrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/sgacop30/sga/core"
)

const uniqueViolation = "23505"

// repo is embedded by every repository. Calls use db unless the service passes an executor (a transaction).
type repo struct {
	db *sqlx.DB
}

func (r repo) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return r.db
}

func (r repo) getExt(svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 {
		if ext, ok := svcExec[0].(sqlx.ExtContext); ok {
			return ext
		}
	}
	return r.db
}

type countRow struct {
	Count int `boil:"count"`
}

// count binds a "SELECT COUNT(*) AS count ..." query.
func (r repo) count(ctx context.Context, exec []core.DBExecutor, query string, args ...interface{}) (int, error) {
	var row countRow
	if err := queries.Raw(query, args...).Bind(ctx, r.getExec(exec), &row); err != nil {
		return 0, err
	}
	return row.Count, nil
}

func rowsAffected(res sql.Result, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// where accumulates AND-ed conditions written with "?" placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func orderBy(ordering []core.DBOrdering) string {
	if len(ordering) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		parts = append(parts, ord.String())
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func rebind(query string) string {
	return sqlx.Rebind(sqlx.DOLLAR, query)
}
