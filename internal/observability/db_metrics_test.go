package observability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassifyDBErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), want: "timeout"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, want: "unique_violation"},
		{name: "wrapped deadlock", err: fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40P01"}), want: "deadlock"},
		{name: "other class", err: &pgconn.PgError{Code: "53300"}, want: "pg_class_53"},
		{name: "plain", err: errors.New("boom"), want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyDBErr(tt.err))
		})
	}
}

func TestObserveDB_NilPromAndMisses(t *testing.T) {
	var p *Prom
	called := false
	err := p.ObserveDB("accounts.get_by_id", func() error {
		called = true
		return pgx.ErrNoRows
	})
	assert.True(t, called)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}
