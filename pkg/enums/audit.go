package enums

import "fmt"

// AuditAction names a mutation recorded in the audit trail.
type AuditAction string

const (
	AuditActionCreditAdd         AuditAction = "CREDIT_ADD"
	AuditActionCreditPayment     AuditAction = "CREDIT_PAYMENT"
	AuditActionCreditRefund      AuditAction = "CREDIT_REFUND"
	AuditActionAdminAdjustment   AuditAction = "ADMIN_CREDIT_ADJUSTMENT"
	AuditActionCreditSettlement  AuditAction = "CREDIT_SETTLEMENT"
	AuditActionOrderStatusChange AuditAction = "ORDER_STATUS_CHANGE"
	AuditActionWalletTopUp       AuditAction = "WALLET_TOPUP"
)

var validAuditActions = []AuditAction{
	AuditActionCreditAdd,
	AuditActionCreditPayment,
	AuditActionCreditRefund,
	AuditActionAdminAdjustment,
	AuditActionCreditSettlement,
	AuditActionOrderStatusChange,
	AuditActionWalletTopUp,
}

// String implements fmt.Stringer.
func (a AuditAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AuditAction.
func (a AuditAction) IsValid() bool {
	for _, candidate := range validAuditActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// Severity is "high" for actions that bypass the ordinary ledger rules.
func (a AuditAction) Severity() string {
	if a == AuditActionAdminAdjustment {
		return "high"
	}
	return "normal"
}

// ParseAuditAction converts raw input into an AuditAction.
func ParseAuditAction(value string) (AuditAction, error) {
	for _, candidate := range validAuditActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit action %q", value)
}

// AuditEntityType names the kind of row an audit entry refers to.
type AuditEntityType string

const (
	AuditEntityCustomer AuditEntityType = "customer"
	AuditEntityOrder    AuditEntityType = "order"
)

// IsValid reports whether the value is a known AuditEntityType.
func (e AuditEntityType) IsValid() bool {
	return e == AuditEntityCustomer || e == AuditEntityOrder
}

// ParseAuditEntityType converts raw input into an AuditEntityType.
func ParseAuditEntityType(value string) (AuditEntityType, error) {
	candidate := AuditEntityType(value)
	if !candidate.IsValid() {
		return "", fmt.Errorf("invalid audit entity type %q", value)
	}
	return candidate, nil
}
