package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "credit_transactions_customer_sequence_key"}

	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pg any constraint", err: fmt.Errorf("insert: %w", pgErr), want: true},
		{name: "pg matching constraint", err: pgErr, constraint: "credit_transactions_customer_sequence_key", want: true},
		{name: "pg other constraint", err: pgErr, constraint: "orders_order_number_key", want: false},
		{name: "pg other code", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: credit_transactions.customer_id, credit_transactions.sequence"), want: true},
		{name: "plain", err: errors.New("connection reset"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUniqueViolation(tc.err, tc.constraint); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
