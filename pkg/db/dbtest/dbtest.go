// Package dbtest opens isolated in-memory sqlite databases carrying the
// ledger schema, for repository and service tests.
package dbtest

import (
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
)

// Schema mirrors the goose migrations without the postgres enum types.
var Schema = []string{
	`CREATE TABLE franchises (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE customers (
  id TEXT PRIMARY KEY,
  franchise_id TEXT,
  name TEXT NOT NULL,
  phone TEXT,
  email TEXT,
  credit_balance NUMERIC NOT NULL DEFAULT 0,
  wallet_balance NUMERIC NOT NULL DEFAULT 0,
  opening_balance NUMERIC NOT NULL DEFAULT 0,
  balance_version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  franchise_id TEXT,
  customer_id TEXT,
  total_amount NUMERIC NOT NULL,
  amount_paid NUMERIC NOT NULL DEFAULT 0,
  payment_status TEXT NOT NULL DEFAULT 'pending',
  status TEXT NOT NULL DEFAULT 'created',
  last_payment_method TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE credit_transactions (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL REFERENCES customers(id),
  franchise_id TEXT,
  order_id TEXT,
  order_number TEXT,
  type TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  balance_after NUMERIC NOT NULL,
  payment_method TEXT,
  reference_number TEXT,
  reason TEXT NOT NULL,
  notes TEXT,
  recorded_by TEXT NOT NULL,
  recorded_by_name TEXT NOT NULL,
  sequence INTEGER NOT NULL,
  transaction_date DATETIME NOT NULL,
  created_at DATETIME,
  CONSTRAINT credit_transactions_customer_sequence_key UNIQUE (customer_id, sequence)
);`,
	`CREATE TABLE audit_logs (
  id TEXT PRIMARY KEY,
  employee_id TEXT NOT NULL,
  employee_name TEXT NOT NULL,
  franchise_id TEXT,
  action TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  details TEXT NOT NULL,
  ip_address TEXT,
  user_agent TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns a fresh database with the ledger schema applied. Every call
// gets its own named in-memory database; a single connection keeps the
// transaction semantics of the shared cache predictable.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(log.New(io.Discard, "", 0), gormlogger.Config{LogLevel: gormlogger.Silent}),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// Franchise inserts a franchise and returns its id.
func Franchise(t testing.TB, conn *gorm.DB, code string) uuid.UUID {
	t.Helper()
	franchise := models.Franchise{ID: uuid.New(), Code: code, Name: "FabZClean " + code}
	if err := conn.Create(&franchise).Error; err != nil {
		t.Fatalf("create franchise: %v", err)
	}
	return franchise.ID
}

// Customer inserts a customer with the given franchise and starting balance.
// The balance is recorded as the opening balance so replays stay consistent.
func Customer(t testing.TB, conn *gorm.DB, franchiseID *uuid.UUID, balance string) models.Customer {
	t.Helper()
	opening := decimal.RequireFromString(balance)
	customer := models.Customer{
		ID:             uuid.New(),
		FranchiseID:    franchiseID,
		Name:           "Customer " + uuid.NewString()[:8],
		CreditBalance:  opening,
		OpeningBalance: opening,
	}
	if err := conn.Create(&customer).Error; err != nil {
		t.Fatalf("create customer: %v", err)
	}
	return customer
}

// Order inserts an unpaid order for the given customer.
func Order(t testing.TB, conn *gorm.DB, franchiseID, customerID *uuid.UUID, total string) models.Order {
	t.Helper()
	order := models.Order{
		ID:            uuid.New(),
		OrderNumber:   fmt.Sprintf("FZC-%d", time.Now().UnixNano()),
		FranchiseID:   franchiseID,
		CustomerID:    customerID,
		TotalAmount:   decimal.RequireFromString(total),
		AmountPaid:    decimal.Zero,
		PaymentStatus: enums.PaymentStatusPending,
		Status:        enums.OrderStatusCreated,
	}
	if err := conn.Create(&order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}
