package core

import (
	"context"
	"database/sql"

	"github.com/volatiletech/strmangle"
)

type (
	DBExecutor interface {
		Exec(query string, args ...interface{}) (sql.Result, error)
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		Query(query string, args ...interface{}) (*sql.Rows, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRow(query string, args ...interface{}) *sql.Row
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	DB interface {
		DBExecutor

		Begin() (*sql.Tx, error)
		BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// CleanOrderings maps the requested fields to columns through allowed. Fields match in either
// spelling (createdAt or created_at). Unknown fields are dropped.
func CleanOrderings(ords []DBOrdering, allowed map[string]string) []DBOrdering {
	columns := make(map[string]string, len(allowed))
	for field, col := range allowed {
		columns[strmangle.CamelCase(field)] = col
	}

	cleaned := make([]DBOrdering, 0, len(ords))
	for _, ord := range ords {
		if col, ok := columns[strmangle.CamelCase(ord.Field)]; ok {
			cleaned = append(cleaned, DBOrdering{Field: col, Ascending: ord.Ascending})
		}
	}
	return cleaned
}

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

const DefaultPageSize = 10

func (p Page) Clean() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 || p.Size > 100 {
		p.Size = DefaultPageSize
	}
	return p
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}
