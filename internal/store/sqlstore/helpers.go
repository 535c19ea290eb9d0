package sqlstore

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// mapUniqueErr turns a sqlite3 UNIQUE constraint violation into want,
// leaving every other error untouched.
func mapUniqueErr(err error, want error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return want
	}
	return err
}

// globToSQLLike translates a shell-style glob (spec.md §4.5's group_search
// pattern, the same syntax memstore matches with filepath.Match) into a
// SQL LIKE pattern: * -> %, ? -> _, with any literal %, _ or \ escaped so
// they aren't mistaken for wildcards.
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
