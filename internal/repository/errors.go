package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

var (
	ErrAlreadyExists     = errors.New("already exists")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnavailable       = errors.New("storage unavailable")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// classify maps driver errors onto the package sentinels. Unknown errors are
// returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return ErrAlreadyExists
		case pgErr.Code == pgForeignKeyViolation:
			return ErrNotFound
		case isTransientCode(pgErr.Code):
			return errors.Wrap(ErrUnavailable, pgErr.Error())
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return errors.Wrap(ErrUnavailable, err.Error())
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errors.Wrap(ErrUnavailable, err.Error())
	}

	return err
}

// isTransientCode covers connection exceptions, serialization failures,
// deadlocks, resource exhaustion and operator intervention.
func isTransientCode(code string) bool {
	switch code {
	case "40001", "40P01":
		return true
	}
	return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "53") || strings.HasPrefix(code, "57P")
}

// IsUnavailable reports whether err, classified or raw, means the store could
// not serve the request and the call may be retried.
func IsUnavailable(err error) bool {
	return errors.Is(classify(err), ErrUnavailable)
}
