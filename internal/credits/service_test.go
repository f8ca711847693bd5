package credits

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/fabzclean/fabzclean-backend/internal/access"
	"github.com/fabzclean/fabzclean-backend/internal/audit"
	"github.com/fabzclean/fabzclean-backend/internal/customers"
	"github.com/fabzclean/fabzclean-backend/internal/ledger"
	"github.com/fabzclean/fabzclean-backend/pkg/config"
	"github.com/fabzclean/fabzclean-backend/pkg/db"
	"github.com/fabzclean/fabzclean-backend/pkg/db/dbtest"
	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	pkgerrors "github.com/fabzclean/fabzclean-backend/pkg/errors"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox"
	"github.com/fabzclean/fabzclean-backend/pkg/pagination"
)

type harness struct {
	conn *gorm.DB
	svc  Service
}

func newHarness(t *testing.T) harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "credits-test", Output: io.Discard})
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	customerRepo := customers.NewRepository(conn)
	ledgerRepo := ledger.NewRepository(conn)

	engine, err := NewEngine(customerRepo, ledgerRepo, emitter)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	recorder, err := audit.NewService(audit.NewRepository(conn), emitter, logg)
	if err != nil {
		t.Fatalf("audit.NewService: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Tx:        db.NewFromConn(conn),
		Engine:    engine,
		Customers: customerRepo,
		Ledger:    ledgerRepo,
		Audit:     recorder,
		Outbox:    emitter,
		Logger:    logg,
		Config:    config.LedgerConfig{HistoryDefaultLimit: 50, HistoryMaxLimit: 200, MaxRetries: 3, SettlementTolerance: "0.01"},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return harness{conn: conn, svc: svc}
}

func admin() access.Actor {
	return access.Actor{UserID: uuid.New(), Name: "Root", Role: enums.RoleAdmin}
}

func manager(franchise uuid.UUID) access.Actor {
	return access.Actor{UserID: uuid.New(), Name: "Manager", Role: enums.RoleFranchiseManager, FranchiseID: &franchise}
}

func employee(franchise uuid.UUID) access.Actor {
	return access.Actor{UserID: uuid.New(), Name: "Clerk", Role: enums.RoleEmployee, FranchiseID: &franchise}
}

func amount(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func auditEntries(t *testing.T, conn *gorm.DB, entityID uuid.UUID) []models.AuditLogEntry {
	t.Helper()
	var rows []models.AuditLogEntry
	if err := conn.Where("entity_id = ?", entityID).Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
	return rows
}

func detailString(t *testing.T, entry models.AuditLogEntry, key string) string {
	t.Helper()
	var details map[string]any
	if err := json.Unmarshal(entry.Details, &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	value, _ := details[key].(string)
	return value
}

func TestCreditAndPaymentSignConvention(t *testing.T) {
	h := newHarness(t)
	franchise := uuid.New()
	customer := dbtest.Customer(t, h.conn, &franchise, "0")
	actor := manager(franchise)
	ctx := context.Background()

	credit, err := h.svc.IssueCredit(ctx, actor, customer.ID, CreditInput{Amount: amount("100")})
	if err != nil {
		t.Fatalf("IssueCredit: %v", err)
	}
	if credit.NewBalance.StringFixed(2) != "100.00" || credit.Transaction.Amount.StringFixed(2) != "100.00" {
		t.Fatalf("unexpected credit result %+v", credit)
	}

	payment, err := h.svc.RecordPayment(ctx, actor, customer.ID, PaymentInput{Amount: amount("60")})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if payment.Transaction.Amount.StringFixed(2) != "-60.00" {
		t.Fatalf("expected stored amount -60.00, got %s", payment.Transaction.Amount.StringFixed(2))
	}
	if payment.PreviousBalance.StringFixed(2) != "100.00" || payment.NewBalance.StringFixed(2) != "40.00" {
		t.Fatalf("unexpected payment result %+v", payment)
	}
	if payment.Amount.StringFixed(2) != "60.00" {
		t.Fatalf("expected amountPaid 60.00, got %s", payment.Amount.StringFixed(2))
	}
	if payment.Transaction.PaymentMethod == nil || *payment.Transaction.PaymentMethod != enums.PaymentMethodCash {
		t.Fatalf("expected payment method to default to cash")
	}
	if payment.Transaction.Sequence <= credit.Transaction.Sequence {
		t.Fatalf("expected increasing sequence, got %d then %d", credit.Transaction.Sequence, payment.Transaction.Sequence)
	}
}

func TestPaymentMayCreateAdvance(t *testing.T) {
	h := newHarness(t)
	customer := dbtest.Customer(t, h.conn, nil, "30")
	result, err := h.svc.RecordPayment(context.Background(), admin(), customer.ID, PaymentInput{Amount: amount("50")})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if result.NewBalance.StringFixed(2) != "-20.00" {
		t.Fatalf("expected -20.00 advance, got %s", result.NewBalance.StringFixed(2))
	}
}

func TestCreditBeyondColumnLimitIsRejected(t *testing.T) {
	h := newHarness(t)
	customer := dbtest.Customer(t, h.conn, nil, "9999999990.00")

	_, err := h.svc.IssueCredit(context.Background(), admin(), customer.ID, CreditInput{Amount: amount("20")})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	var stored models.Customer
	if err := h.conn.First(&stored, "id = ?", customer.ID).Error; err != nil {
		t.Fatalf("reload customer: %v", err)
	}
	if stored.CreditBalance.StringFixed(2) != "9999999990.00" || stored.BalanceVersion != 0 {
		t.Fatalf("customer mutated on rejection: %+v", stored)
	}
	var rows int64
	if err := h.conn.Model(&models.CreditTransaction{}).Where("customer_id = ?", customer.ID).Count(&rows).Error; err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected no ledger rows, got %d", rows)
	}
}

func TestPaymentValidation(t *testing.T) {
	h := newHarness(t)
	customer := dbtest.Customer(t, h.conn, nil, "30")
	ctx := context.Background()
	wallet := enums.PaymentMethodWallet

	for _, input := range []PaymentInput{
		{Amount: amount("0")},
		{Amount: amount("-5")},
		{Amount: amount("5"), PaymentMethod: &wallet},
	} {
		_, err := h.svc.RecordPayment(ctx, admin(), customer.ID, input)
		if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for %+v, got %v", input, err)
		}
	}
	if rows := auditEntries(t, h.conn, customer.ID); len(rows) != 0 {
		t.Fatalf("rejected payments must not be audited, got %d entries", len(rows))
	}

	_, err := h.svc.RecordPayment(ctx, admin(), uuid.New(), PaymentInput{Amount: amount("5")})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAdjustRequiresReasonAndAdmin(t *testing.T) {
	h := newHarness(t)
	franchise := uuid.New()
	customer := dbtest.Customer(t, h.conn, &franchise, "200")
	ctx := context.Background()

	_, err := h.svc.Adjust(ctx, admin(), customer.ID, AdjustInput{Amount: amount("-50"), Reason: "  "})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error without reason, got %v", err)
	}

	_, err = h.svc.Adjust(ctx, manager(franchise), customer.ID, AdjustInput{Amount: amount("-50"), Reason: "typo"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for manager, got %v", err)
	}

	notes := "double entry on 3 March"
	result, err := h.svc.Adjust(ctx, admin(), customer.ID, AdjustInput{Amount: amount("-50"), Reason: "typo", Notes: &notes})
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if result.NewBalance.StringFixed(2) != "150.00" || result.Amount.StringFixed(2) != "-50.00" {
		t.Fatalf("unexpected adjust result %+v", result)
	}

	rows := auditEntries(t, h.conn, customer.ID)
	if len(rows) != 1 || rows[0].Action != enums.AuditActionAdminAdjustment {
		t.Fatalf("expected one admin adjustment audit entry, got %+v", rows)
	}
	if detailString(t, rows[0], "previousBalance") != "200.00" || detailString(t, rows[0], "reason") != "typo" {
		t.Fatalf("adjustment audit details incomplete: %s", rows[0].Details)
	}
}

func TestEveryMutationWritesOneMatchingAuditEntry(t *testing.T) {
	h := newHarness(t)
	franchise := uuid.New()
	customer := dbtest.Customer(t, h.conn, &franchise, "0")
	actor := manager(franchise)
	ctx := context.Background()

	var returned []string
	credit, err := h.svc.IssueCredit(ctx, actor, customer.ID, CreditInput{Amount: amount("500")})
	if err != nil {
		t.Fatalf("IssueCredit: %v", err)
	}
	returned = append(returned, credit.NewBalance.StringFixed(2))
	payment, err := h.svc.RecordPayment(ctx, actor, customer.ID, PaymentInput{Amount: amount("120.25")})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	returned = append(returned, payment.NewBalance.StringFixed(2))
	refund, err := h.svc.Refund(ctx, actor, customer.ID, RefundInput{Amount: amount("20"), Reason: "damaged shirt"})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	returned = append(returned, refund.NewBalance.StringFixed(2))
	adjust, err := h.svc.Adjust(ctx, admin(), customer.ID, AdjustInput{Amount: amount("0.25"), Reason: "rounding"})
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	returned = append(returned, adjust.NewBalance.StringFixed(2))

	rows := auditEntries(t, h.conn, customer.ID)
	if len(rows) != len(returned) {
		t.Fatalf("expected %d audit entries, got %d", len(returned), len(rows))
	}
	wantActions := []enums.AuditAction{
		enums.AuditActionCreditAdd,
		enums.AuditActionCreditPayment,
		enums.AuditActionCreditRefund,
		enums.AuditActionAdminAdjustment,
	}
	for i, row := range rows {
		if row.Action != wantActions[i] {
			t.Fatalf("entry %d: expected action %s, got %s", i, wantActions[i], row.Action)
		}
		if got := detailString(t, row, "newBalance"); got != returned[i] {
			t.Fatalf("entry %d: details.newBalance %s != returned %s", i, got, returned[i])
		}
	}

	var events int64
	if err := h.conn.Model(&models.OutboxEvent{}).Count(&events).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if events != 8 {
		t.Fatalf("expected a ledger and an audit event per mutation, got %d", events)
	}

	report, err := h.svc.Reconcile(ctx, admin(), customer.ID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !report.Consistent || report.ReplayedBalance.StringFixed(2) != "360.00" {
		t.Fatalf("expected consistent replay at 360.00, got %+v", report)
	}
}

func TestFranchiseIsolation(t *testing.T) {
	h := newHarness(t)
	franchiseA := uuid.New()
	franchiseB := uuid.New()
	customer := dbtest.Customer(t, h.conn, &franchiseA, "10")
	ctx := context.Background()

	_, err := h.svc.Summary(ctx, manager(franchiseB), customer.ID, 0)
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for foreign franchise, got %v", err)
	}
	_, err = h.svc.IssueCredit(ctx, manager(franchiseB), customer.ID, CreditInput{Amount: amount("5")})
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden mutation, got %v", err)
	}
	_, err = h.svc.Summary(ctx, manager(franchiseB), uuid.New(), 0)
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for unknown customer, got %v", err)
	}

	global := dbtest.Customer(t, h.conn, nil, "0")
	if _, err := h.svc.IssueCredit(ctx, manager(franchiseB), global.ID, CreditInput{Amount: amount("5")}); err != nil {
		t.Fatalf("managers may act on unassigned customers: %v", err)
	}

	if _, err := h.svc.Summary(ctx, employee(franchiseA), customer.ID, 0); err != nil {
		t.Fatalf("employee summary: %v", err)
	}
	_, err = h.svc.History(ctx, employee(franchiseA), customer.ID, pagination.Params{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected employees to be denied history, got %v", err)
	}
	_, err = h.svc.RecordPayment(ctx, employee(franchiseA), customer.ID, PaymentInput{Amount: amount("5")})
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected employees to be denied mutations, got %v", err)
	}
}

func TestSummaryTotalsAndHistory(t *testing.T) {
	h := newHarness(t)
	customer := dbtest.Customer(t, h.conn, nil, "0")
	actor := admin()
	ctx := context.Background()

	for _, v := range []string{"100", "250", "50"} {
		if _, err := h.svc.IssueCredit(ctx, actor, customer.ID, CreditInput{Amount: amount(v)}); err != nil {
			t.Fatalf("IssueCredit: %v", err)
		}
	}
	for _, v := range []string{"300", "150"} {
		if _, err := h.svc.RecordPayment(ctx, actor, customer.ID, PaymentInput{Amount: amount(v)}); err != nil {
			t.Fatalf("RecordPayment: %v", err)
		}
	}

	summary, err := h.svc.Summary(ctx, actor, customer.ID, 2)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalCredited.StringFixed(2) != "400.00" || summary.TotalPaid.StringFixed(2) != "450.00" {
		t.Fatalf("unexpected totals credited=%s paid=%s", summary.TotalCredited, summary.TotalPaid)
	}
	if summary.CreditBalance.StringFixed(2) != "-50.00" || !summary.PendingBalance.IsZero() {
		t.Fatalf("unexpected balance=%s pending=%s", summary.CreditBalance, summary.PendingBalance)
	}
	if len(summary.History) != 2 || summary.History[0].Type != enums.TransactionTypePayment {
		t.Fatalf("expected newest two entries, got %+v", summary.History)
	}

	page, err := h.svc.History(ctx, actor, customer.ID, pagination.Params{Limit: 3})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(page.Items) != 3 || page.NextCursor == "" {
		t.Fatalf("expected a full first page with a cursor, got %d items", len(page.Items))
	}
	next, err := h.svc.History(ctx, actor, customer.ID, pagination.Params{Limit: 3, Cursor: page.NextCursor})
	if err != nil {
		t.Fatalf("History page 2: %v", err)
	}
	if len(next.Items) != 2 || next.NextCursor != "" {
		t.Fatalf("expected last page of 2, got %d cursor=%q", len(next.Items), next.NextCursor)
	}
	_, err = h.svc.History(ctx, actor, customer.ID, pagination.Params{Cursor: "%%%"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected invalid cursor to be a validation error, got %v", err)
	}
}

func TestOutstandingReport(t *testing.T) {
	h := newHarness(t)
	franchiseA := uuid.New()
	franchiseB := uuid.New()
	dbtest.Customer(t, h.conn, &franchiseA, "120")
	dbtest.Customer(t, h.conn, &franchiseA, "480.50")
	dbtest.Customer(t, h.conn, &franchiseB, "900")
	dbtest.Customer(t, h.conn, nil, "10")
	dbtest.Customer(t, h.conn, &franchiseA, "-40")
	ctx := context.Background()

	report, err := h.svc.Outstanding(ctx, manager(franchiseA), nil)
	if err != nil {
		t.Fatalf("Outstanding: %v", err)
	}
	if len(report.Customers) != 3 {
		t.Fatalf("expected 3 customers, got %d", len(report.Customers))
	}
	if report.Customers[0].Balance.StringFixed(2) != "480.50" {
		t.Fatalf("expected largest balance first, got %s", report.Customers[0].Balance)
	}
	if report.TotalOutstanding.StringFixed(2) != "610.50" {
		t.Fatalf("unexpected total %s", report.TotalOutstanding)
	}

	_, err = h.svc.Outstanding(ctx, manager(franchiseA), &franchiseB)
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden cross-franchise report, got %v", err)
	}

	report, err = h.svc.Outstanding(ctx, admin(), &franchiseB)
	if err != nil || len(report.Customers) != 1 {
		t.Fatalf("expected admin to filter to franchise B, got %v %+v", err, report)
	}
	report, err = h.svc.Outstanding(ctx, admin(), nil)
	if err != nil || len(report.Customers) != 4 {
		t.Fatalf("expected admin to see all 4 debtors, got %v %+v", err, report)
	}
}

func TestWalletTopUp(t *testing.T) {
	h := newHarness(t)
	franchise := uuid.New()
	customer := dbtest.Customer(t, h.conn, &franchise, "75")
	ctx := context.Background()
	upi := enums.PaymentMethodUPI

	result, err := h.svc.TopUpWallet(ctx, manager(franchise), customer.ID, WalletTopUpInput{Amount: amount("200"), PaymentMethod: &upi})
	if err != nil {
		t.Fatalf("TopUpWallet: %v", err)
	}
	if result.WalletBalance.StringFixed(2) != "200.00" {
		t.Fatalf("unexpected wallet balance %s", result.WalletBalance)
	}

	var stored models.Customer
	if err := h.conn.Where("id = ?", customer.ID).Take(&stored).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.CreditBalance.StringFixed(2) != "75.00" {
		t.Fatalf("wallet top-up must not touch the credit balance, got %s", stored.CreditBalance)
	}
	rows := auditEntries(t, h.conn, customer.ID)
	if len(rows) != 1 || rows[0].Action != enums.AuditActionWalletTopUp {
		t.Fatalf("expected one wallet audit entry, got %+v", rows)
	}

	_, err = h.svc.TopUpWallet(ctx, manager(franchise), customer.ID, WalletTopUpInput{Amount: amount("0")})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
