package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fabzclean/fabzclean-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestCreditTransactionsMigrationKeepsLedgerInvariants(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_credit_transactions.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one credit transactions migration, got %d", len(matches))
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS credit_transactions",
		"CONSTRAINT credit_transactions_customer_sequence_key UNIQUE (customer_id, sequence)",
		"balance_after numeric(12,2) NOT NULL",
		"BEFORE UPDATE OR DELETE ON credit_transactions",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestEnumMigrationMatchesOrderStatuses(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_enum_types.sql"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected enum migration, got %v (%v)", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	want := "('created', 'picked_up', 'processing', 'completed', 'delivered', 'cancelled')"
	if !strings.Contains(string(data), want) {
		t.Fatalf("order_status_enum does not list %s", want)
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Wallet Limits!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_wallet_limits.sql") {
		t.Fatalf("unexpected file name %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}
