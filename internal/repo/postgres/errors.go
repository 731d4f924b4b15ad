package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation = "23505"

	accountsUsernameConstraint = "accounts_username_uniq"
)

// isUsernameViolation reports a unique violation on accounts.username.
// Other unique violations (e.g. a primary key clash) stay internal errors.
func isUsernameViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == accountsUsernameConstraint
}
