package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TxBeginner is satisfied by *pgxpool.Pool and by the in-memory store.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// ReadOnly is the option set used by pure read projections.
var ReadOnly = pgx.TxOptions{AccessMode: pgx.ReadOnly}

// ParseIsolation accepts "read committed", "repeatable_read", "SERIALIZABLE" and
// similar spellings. An empty string selects read committed.
func ParseIsolation(s string) (pgx.TxIsoLevel, error) {
	norm := strings.ToLower(strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(s)))
	switch norm {
	case "", "read committed":
		return pgx.ReadCommitted, nil
	case "repeatable read":
		return pgx.RepeatableRead, nil
	case "serializable":
		return pgx.Serializable, nil
	default:
		return "", fmt.Errorf("db: unknown isolation level %q", s)
	}
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports SQLSTATE 23505.
func IsUniqueViolation(err error) bool { return pgCode(err) == "23505" }

// IsSerializationFailure reports SQLSTATE 40001 and deadlocks (40P01).
func IsSerializationFailure(err error) bool {
	code := pgCode(err)
	return code == "40001" || code == "40P01"
}

// IsInvalidText reports SQLSTATE 22P02, raised when a non-uuid id reaches a uuid column.
func IsInvalidText(err error) bool { return pgCode(err) == "22P02" }

// IsNotFound folds pgx.ErrNoRows and malformed ids together; both mean the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || IsInvalidText(err)
}
