package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/fabzclean/fabzclean-backend/pkg/config"
	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	customerID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.LedgerEntryAppliedEvent{
		TransactionID: uuid.New(),
		CustomerID:    customerID,
		Type:          enums.TransactionTypePayment,
		Amount:        "-60.00",
		BalanceAfter:  "40.00",
		Sequence:      2,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventLedgerEntryApplied,
		AggregateType: enums.AggregateCustomer,
		AggregateID:   customerID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "audit-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.LedgerEntryAppliedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.CustomerID != customerID || payload.Amount != "-60.00" || payload.BalanceAfter != "40.00" {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
	if resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope missing occurred_at")
	}
}

func TestEventRegistryResolveAuditEvent(t *testing.T) {
	reg := newTestEventRegistry(t)

	auditID := uuid.New()
	event := models.OutboxEvent{
		EventType:     enums.EventAuditRecorded,
		AggregateType: enums.AggregateAuditLog,
		AggregateID:   auditID,
		Payload: mustEnvelope(t, mustMarshal(t, payloads.AuditRecordedEvent{
			AuditID:  auditID,
			Action:   enums.AuditActionAdminAdjustment,
			Severity: "high",
			Details:  map[string]any{"newBalance": "75.00"},
		})),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := resolved.Payload.(*payloads.AuditRecordedEvent)
	if payload.Severity != "high" || payload.Details["newBalance"] != "75.00" {
		t.Fatalf("payload mismatch %+v", payload)
	}
}

func TestEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatalf("expected missing topic to fail")
	}
}

func TestEventRegistryResolveFailuresAreNonRetryable(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     "loyalty_points_awarded",
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{"reason":"none"}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventOrderSettled,
			AggregateType: enums.AggregateCustomer,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{"order_id":"00000000-0000-0000-0000-000000000000"}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventOrderSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.Nil,
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventOrderSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte("null")),
		},
		"broken envelope": {
			EventType:     enums.EventOrderSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       datatypes.JSON(`{"version":`),
		},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			if err == nil {
				t.Fatalf("expected error")
			}
			var nonRetry NonRetryableError
			if !errors.As(err, &nonRetry) {
				t.Fatalf("expected non-retryable error, got %T", err)
			}
		})
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{AuditTopic: "audit-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) datatypes.JSON {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
