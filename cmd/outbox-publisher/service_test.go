package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fabzclean/fabzclean-backend/pkg/config"
	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
	"github.com/fabzclean/fabzclean-backend/pkg/metrics"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox/payloads"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox/registry"
)

func ledgerResolved() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "audit-topic",
			AggregateType: enums.AggregateCustomer,
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    uuid.NewString(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.LedgerEntryAppliedEvent{},
	}
}

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			{
				ID:            uuid.New(),
				EventType:     enums.EventLedgerEntryApplied,
				AggregateType: enums.AggregateCustomer,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelopePayload(t, "event-one"),
			},
			{
				ID:            uuid.New(),
				EventType:     enums.EventLedgerEntryApplied,
				AggregateType: enums.AggregateCustomer,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelopePayload(t, "event-two"),
			},
		},
	}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	eventRegistry := &fakeRegistry{resolved: ledgerResolved()}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, eventRegistry, dlqRepo, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(repo.failed); got != 1 {
		t.Fatalf("unexpected number of failed rows: %d", got)
	}
	if got := len(repo.published); got != 1 {
		t.Fatalf("unexpected number of published rows: %d", got)
	}
	if repo.failed[0] != repo.events[0].ID {
		t.Fatalf("failed row recorded wrong ID")
	}
	if repo.published[0] != repo.events[1].ID {
		t.Fatalf("published row recorded wrong ID")
	}
	if len(dlqRepo.entries) != 0 {
		t.Fatalf("transient failure must not dead-letter")
	}
}

func TestAuditEventsCarrySeverityAttributes(t *testing.T) {
	franchiseID := uuid.New()
	actorID := uuid.New()
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventAuditRecorded,
		AggregateType: enums.AggregateAuditLog,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "audit"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: "audit-topic"},
		Envelope: outbox.PayloadEnvelope{
			Actor: &outbox.ActorRef{UserID: actorID, FranchiseID: &franchiseID},
		},
		Payload: &payloads.AuditRecordedEvent{
			Action:   enums.AuditActionAdminAdjustment,
			Severity: "high",
		},
	}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolved}, &fakeDLQRepo{}, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one published message, got %d", len(pub.messages))
	}
	attrs := pub.messages[0].Attributes
	if attrs["severity"] != "high" || attrs["action"] != string(enums.AuditActionAdminAdjustment) {
		t.Fatalf("unexpected audit attributes %v", attrs)
	}
	if attrs["franchise_id"] != franchiseID.String() || attrs["actor_id"] != actorID.String() {
		t.Fatalf("unexpected actor attributes %v", attrs)
	}
	if attrs["event_type"] != string(enums.EventAuditRecorded) {
		t.Fatalf("unexpected event type attribute %q", attrs["event_type"])
	}
}

func TestPublishersAreReusedAndStopped(t *testing.T) {
	events := []models.OutboxEvent{
		{ID: uuid.New(), EventType: enums.EventLedgerEntryApplied, AggregateType: enums.AggregateCustomer, AggregateID: uuid.New(), Payload: mustEnvelopePayload(t, "a")},
		{ID: uuid.New(), EventType: enums.EventLedgerEntryApplied, AggregateType: enums.AggregateCustomer, AggregateID: uuid.New(), Payload: mustEnvelopePayload(t, "b")},
	}
	repo := &fakeRepo{events: events}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}, fakePublishResult{}}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: ledgerResolved()}, &fakeDLQRepo{}, nil)
	created := 0
	service.publisherFactory = func(topic string) publisher {
		if topic != "audit-topic" {
			t.Fatalf("unexpected topic %q", topic)
		}
		created++
		return pub
	}

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected one publisher for the topic, got %d", created)
	}
	service.stopPublishers()
	if !pub.stopped {
		t.Fatalf("expected publisher to be stopped")
	}
	if len(service.publishers) != 0 {
		t.Fatalf("expected publisher cache to be cleared")
	}
}

func TestServiceProcessBatchWritesDLQOnNonRetryable(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderSettled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "nonretryable"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	registry := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, &fakePublisher{}, registry, dlqRepo, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if entry.Payload == nil || !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq payload mismatch")
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
}

func TestServiceProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventLedgerEntryApplied,
		AggregateType: enums.AggregateCustomer,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "max-attempts"),
		AttemptCount:  1,
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
		},
	}
	registry := &fakeRegistry{resolved: ledgerResolved()}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, registry, dlqRepo, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if entry.ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
}

func TestServiceRecordsOutboxMetrics(t *testing.T) {
	newEvent := func(id string, attempts int) models.OutboxEvent {
		return models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventOrderSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelopePayload(t, id),
			AttemptCount:  attempts,
		}
	}
	repo := &fakeRepo{events: []models.OutboxEvent{
		newEvent("published", 0),
		newEvent("retry", 0),
		newEvent("exhausted", 4),
	}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{},
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{err: errors.New("still down")},
		},
	}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: ledgerResolved()}, &fakeDLQRepo{}, nil)
	reg := prometheus.NewRegistry()
	service.metrics = metrics.NewOutboxMetrics(reg)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	totals := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			totals[mf.GetName()] += m.GetCounter().GetValue()
		}
	}
	if totals["fabzclean_outbox_published_total"] != 1 {
		t.Fatalf("expected 1 published, got %v", totals["fabzclean_outbox_published_total"])
	}
	if totals["fabzclean_outbox_publish_failures_total"] != 1 {
		t.Fatalf("expected 1 failure, got %v", totals["fabzclean_outbox_publish_failures_total"])
	}
	if totals["fabzclean_outbox_dead_lettered_total"] != 1 {
		t.Fatalf("expected 1 dead-lettered, got %v", totals["fabzclean_outbox_dead_lettered_total"])
	}
}

func TestNextBackoffIsCapped(t *testing.T) {
	base := 500 * time.Millisecond
	if got := nextBackoff(0, base, maxBackoff); got != time.Second {
		t.Fatalf("expected doubling from base, got %s", got)
	}
	if got := nextBackoff(8*time.Second, base, maxBackoff); got != maxBackoff {
		t.Fatalf("expected cap at %s, got %s", maxBackoff, got)
	}
}

func newTestService(t *testing.T, repo outboxStore, pub publisher, registry eventResolver, dlq deadLetterStore, outboxCfgOverride *config.OutboxConfig) *Service {
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{
		Outbox: outboxCfg,
		PubSub: config.PubSubConfig{AuditTopic: "audit-topic"},
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logg,
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         registry,
		PublisherFactory: func(_ string) publisher { return pub },
		DLQRepository:    dlq,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func mustEnvelopePayload(tb testing.TB, eventID string) datatypes.JSON {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return datatypes.JSON(payload)
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error {
	return nil
}

func (f *fakePubSubClient) Publisher(name string) *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
	stopped  bool
}

func (f *fakePublisher) Stop() {
	f.stopped = true
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
