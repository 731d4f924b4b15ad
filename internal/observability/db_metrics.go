package observability

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ObserveDB times fn under the logical operation name op (e.g.
// "accounts.get_by_id"). A nil receiver runs fn unobserved. pgx.ErrNoRows
// is a lookup miss, not an error.
func (p *Prom) ObserveDB(op string, fn func() error) error {
	if p == nil {
		return fn()
	}

	start := time.Now()
	err := fn()

	status := "ok"
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		status = "error"
		p.DbErrorsTotal.WithLabelValues(op, classifyDBErr(err)).Inc()
	}
	p.DbQueryDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	return err
}

// pgErrorLabels names the SQLSTATEs worth telling apart on a dashboard.
var pgErrorLabels = map[string]string{
	"23505": "unique_violation",
	"23503": "foreign_key_violation",
	"23514": "check_violation",
	"40001": "serialization_failure",
	"40P01": "deadlock",
	"55P03": "lock_not_available",
	"57014": "query_canceled",
}

// classifyDBErr keeps the error label low-cardinality: named codes above,
// otherwise the two-character SQLSTATE class.
func classifyDBErr(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if label, ok := pgErrorLabels[pgErr.Code]; ok {
			return label
		}
		if len(pgErr.Code) >= 2 {
			return "pg_class_" + pgErr.Code[:2]
		}
		return "pg_unknown"
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) {
		return "connection"
	}
	return "unknown"
}
