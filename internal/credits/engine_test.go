package credits

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fabzclean/fabzclean-backend/internal/customers"
	"github.com/fabzclean/fabzclean-backend/pkg/config"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	pkgerrors "github.com/fabzclean/fabzclean-backend/pkg/errors"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
)

func TestSignedAmount(t *testing.T) {
	cases := []struct {
		kind    enums.TransactionType
		amount  string
		want    string
		wantErr bool
	}{
		{enums.TransactionTypeCredit, "100", "100.00", false},
		{enums.TransactionTypePayment, "60", "-60.00", false},
		{enums.TransactionTypeRefund, "15.5", "-15.50", false},
		{enums.TransactionTypeAdjustment, "-42.10", "-42.10", false},
		{enums.TransactionTypeAdjustment, "42.10", "42.10", false},
		{enums.TransactionTypeCredit, "0", "", true},
		{enums.TransactionTypePayment, "-60", "", true},
		{enums.TransactionTypeRefund, "0", "", true},
		{enums.TransactionTypeAdjustment, "0", "", true},
		{"usage", "10", "", true},
	}
	for _, tc := range cases {
		got, err := SignedAmount(tc.kind, decimal.RequireFromString(tc.amount))
		if tc.wantErr {
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("%s %s: expected validation error, got %v", tc.kind, tc.amount, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s %s: unexpected error %v", tc.kind, tc.amount, err)
		}
		if got.StringFixed(2) != tc.want {
			t.Fatalf("%s %s: expected %s, got %s", tc.kind, tc.amount, tc.want, got.StringFixed(2))
		}
	}
}

func TestWithRetryStopsAfterMaxAttempts(t *testing.T) {
	svc := &service{
		cfg:  config.LedgerConfig{MaxRetries: 3},
		logg: logger.New(logger.Options{ServiceName: "credits-test"}),
	}
	attempts := 0
	err := svc.withRetry(context.Background(), func() error {
		attempts++
		return pkgerrors.Wrap(pkgerrors.CodeConflict, customers.ErrVersionConflict, "customer balance changed concurrently")
	})
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestWithRetryRecoversFromConflict(t *testing.T) {
	svc := &service{
		cfg:  config.LedgerConfig{MaxRetries: 3},
		logg: logger.New(logger.Options{ServiceName: "credits-test"}),
	}
	attempts := 0
	err := svc.withRetry(context.Background(), func() error {
		attempts++
		if attempts == 1 {
			return customers.ErrVersionConflict
		}
		return nil
	})
	if err != nil || attempts != 2 {
		t.Fatalf("expected success on second attempt, got err=%v attempts=%d", err, attempts)
	}
}

func TestWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	svc := &service{
		cfg:  config.LedgerConfig{MaxRetries: 3},
		logg: logger.New(logger.Options{ServiceName: "credits-test"}),
	}
	attempts := 0
	_ = svc.withRetry(context.Background(), func() error {
		attempts++
		return pkgerrors.New(pkgerrors.CodeValidation, "nope")
	})
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}
