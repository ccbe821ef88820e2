package repository

import (
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// openSubscriptionIndex は終端でない購読をユーザーごとに 1 件に制限する部分一意インデックス
const openSubscriptionIndex = "uq_subscriptions_open_user"

// isUniqueViolation reports whether err is a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// violatedConstraint returns the constraint name of a unique violation, or "".
func violatedConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName
	}
	return ""
}

// validID reports whether id can be compared against a UUID column.
// 不正な id は Postgres に渡さず ErrNotFound として扱う。
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
