package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateCustomer OutboxAggregateType = "customer"
	AggregateOrder    OutboxAggregateType = "order"
	AggregateAuditLog OutboxAggregateType = "audit_log"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCustomer,
	AggregateOrder,
	AggregateAuditLog,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventLedgerEntryApplied OutboxEventType = "ledger_entry_applied"
	EventOrderSettled       OutboxEventType = "order_settled"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventWalletToppedUp     OutboxEventType = "wallet_topped_up"
	EventAuditRecorded      OutboxEventType = "audit_recorded"
)

var validOutboxEventTypes = []OutboxEventType{
	EventLedgerEntryApplied,
	EventOrderSettled,
	EventOrderStatusChanged,
	EventWalletToppedUp,
	EventAuditRecorded,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
