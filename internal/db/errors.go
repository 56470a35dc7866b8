package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the postgres error code for a unique constraint.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a postgres unique-constraint
// failure, the signal that a concurrent writer won a get-or-create
// race.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
