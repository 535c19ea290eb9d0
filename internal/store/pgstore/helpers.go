package pgstore

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// pgUniqueViolation is Postgres' SQLSTATE for a unique_violation.
const pgUniqueViolation = "23505"

// mapUniqueErr turns a Postgres unique constraint violation into want,
// leaving every other error untouched.
func mapUniqueErr(err error, want error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return want
	}
	return err
}

// globToSQLLike translates a shell-style glob (spec.md §4.5's
// group_search pattern, matched case-insensitively by filepath.Match in
// memstore) into an ILIKE pattern: * -> %, ? -> _, with literal %, _ and
// \ escaped.
func globToSQLLike(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
