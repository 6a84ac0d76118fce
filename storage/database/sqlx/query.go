// Package sqlxrepos implements the repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/speddy/speddy/core"
)

const (
	pqUniqueViolation = "23505"
	pqInvalidTextRepr = "22P02"
)

// where accumulates AND'ed conditions written with `?` placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

// anyOf adds the OR of conds as a single condition. Nothing is added when conds is empty.
func (w *where) anyOf(conds []string, args []interface{}) {
	if len(conds) == 0 {
		return
	}
	w.add("("+strings.Join(conds, " OR ")+")", args...)
}

func (w where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// rebind expands slice args of `IN (?)` clauses and converts placeholders to the driver's bindvar.
func rebind(exec core.DBExecutor, query string, args []interface{}) (string, []interface{}, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return exec.Rebind(query), args, nil
}

func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	query, args, err := rebind(exec, query, args)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, exec, dest, query, args...)
}

func getOne(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	query, args, err := rebind(exec, query, args)
	if err != nil {
		return err
	}
	return sqlx.GetContext(ctx, exec, dest, query, args...)
}

// execAffected runs query and returns the number of affected rows.
func execAffected(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (int, error) {
	query, args, err := rebind(exec, query, args)
	if err != nil {
		return 0, err
	}
	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func pqCode(err error) string {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		return string(pqErr.Code)
	}
	return ""
}

// trapNotFound maps "no rows" and malformed ids to notFound.
func trapNotFound(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows || pqCode(err) == pqInvalidTextRepr {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

// nullDate stores a nil date as NULL through core.Date's zero value.
func nullDate(d *core.Date) core.Date {
	if d == nil {
		return core.Date{}
	}
	return *d
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

func joinComma(parts []string) string {
	return strings.Join(parts, ", ")
}
