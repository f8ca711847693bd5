package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fabzclean/fabzclean-backend/pkg/config"
	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
	"github.com/fabzclean/fabzclean-backend/pkg/metrics"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox/payloads"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox/registry"
)

const (
	fallbackBatch       = 50
	fallbackPoll        = 500 * time.Millisecond
	fallbackMaxAttempts = 10
	publishDeadline     = 15 * time.Second
	maxBackoff          = 10 * time.Second
	pollJitter          = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

// outboxStore claims rows and records the relay outcome for each of them.
type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// stopper is implemented by publishers that buffer messages and must be
// flushed on shutdown.
type stopper interface {
	Stop()
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               txRunner
	PubSub           topicSource
	Repository       outboxStore
	Registry         eventResolver
	PublisherFactory publisherFactory
	DLQRepository    deadLetterStore
	Metrics          *metrics.OutboxMetrics
}

// Service relays committed outbox rows to the audit topic. A row is
// published, left for another attempt, or moved to the DLQ; the outcome is
// written in the same transaction that claimed the row.
type Service struct {
	log              *logger.Logger
	tx               txRunner
	broker           topicSource
	store            outboxStore
	deadLetters      deadLetterStore
	events           eventResolver
	publisherFactory publisherFactory
	publishers       map[string]publisher
	metrics          *metrics.OutboxMetrics
	limit            int
	attempts         int
	idle             time.Duration
	jitter           *rand.Rand
}

func NewService(params ServiceParams) (*Service, error) {
	required := []struct {
		name   string
		absent bool
	}{
		{"config", params.Config == nil},
		{"logger", params.Logger == nil},
		{"database client", params.DB == nil},
		{"pubsub client", params.PubSub == nil},
		{"outbox store", params.Repository == nil},
		{"event registry", params.Registry == nil},
		{"dlq store", params.DLQRepository == nil},
	}
	for _, dep := range required {
		if dep.absent {
			return nil, fmt.Errorf("outbox publisher: %s is required", dep.name)
		}
	}

	svc := &Service{
		log:              params.Logger,
		tx:               params.DB,
		broker:           params.PubSub,
		store:            params.Repository,
		deadLetters:      params.DLQRepository,
		events:           params.Registry,
		publisherFactory: params.PublisherFactory,
		publishers:       make(map[string]publisher),
		metrics:          params.Metrics,
		limit:            fallbackBatch,
		attempts:         fallbackMaxAttempts,
		idle:             fallbackPoll,
		jitter:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	cfg := params.Config.Outbox
	if cfg.BatchSize > 0 {
		svc.limit = cfg.BatchSize
	}
	if cfg.MaxAttempts > 0 {
		svc.attempts = cfg.MaxAttempts
	}
	if cfg.PollIntervalMS > 0 {
		svc.idle = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	}
	if svc.publisherFactory == nil {
		svc.publisherFactory = svc.brokerPublisher
	}
	return svc, nil
}

func (s *Service) brokerPublisher(topic string) publisher {
	if p := s.broker.Publisher(topic); p != nil {
		return gcpPublisher{p}
	}
	return nil
}

// Run drains the outbox until ctx is cancelled. A non-empty batch is
// followed immediately by the next poll; batch errors back off exponentially.
func (s *Service) Run(ctx context.Context) error {
	if err := s.tx.Ping(ctx); err != nil {
		return s.unready(ctx, "database", err)
	}
	if err := s.broker.Ping(ctx); err != nil {
		return s.unready(ctx, "pubsub", err)
	}
	defer s.stopPublishers()

	var backoff time.Duration
	for {
		drained, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.log.Error(ctx, "relay batch failed", err)
			backoff = nextBackoff(backoff, s.idle, maxBackoff)
			wait = backoff
		case drained:
			backoff = 0
		default:
			backoff = 0
			wait = s.idle
		}
		if ctx.Err() != nil || s.sleep(ctx, wait) != nil {
			s.log.Info(ctx, "outbox relay stopping")
			return ctx.Err()
		}
	}
}

func (s *Service) unready(ctx context.Context, dependency string, err error) error {
	s.log.Error(s.log.WithField(ctx, "dependency", dependency), "relay dependency unavailable", err)
	return fmt.Errorf("%s unavailable: %w", dependency, err)
}

// processBatch claims up to one batch of rows and relays each of them. It
// reports whether any row was claimed.
func (s *Service) processBatch(ctx context.Context) (claimed bool, err error) {
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.store.FetchUnpublishedForPublish(tx, s.limit, s.attempts)
		if err != nil {
			return err
		}
		claimed = len(rows) > 0
		for i := range rows {
			if err := s.relay(ctx, tx, rows[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// relay publishes one row and records the outcome. Only bookkeeping
// failures are returned; publish failures become retries or DLQ rows.
func (s *Service) relay(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	ctx = s.log.WithFields(ctx, map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"attempt_count": row.AttemptCount,
	})

	resolved, resolveErr := s.events.Resolve(row)
	if resolveErr != nil {
		return s.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, resolveErr)
	}
	ctx = s.log.WithField(ctx, "topic", resolved.Descriptor.Topic)

	pubErr := s.publish(ctx, row, resolved)
	var permanent registry.NonRetryableError
	switch {
	case pubErr == nil:
		if err := s.store.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		s.metrics.IncPublished(string(row.EventType))
		s.log.Debug(ctx, "outbox row relayed")
		return nil
	case errors.As(pubErr, &permanent):
		return s.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, pubErr)
	case row.AttemptCount+1 >= s.attempts:
		return s.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, pubErr))
	}

	s.log.Warn(s.log.WithField(ctx, "error", pubErr.Error()), "outbox row will be retried")
	if err := s.store.MarkFailedTx(tx, row.ID, pubErr); err != nil {
		return fmt.Errorf("mark %s failed: %w", row.ID, err)
	}
	s.metrics.IncFailed(string(row.EventType))
	return nil
}

// deadLetter copies the row into outbox_dlq and retires it from the outbox.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	msg := cause.Error()
	s.log.Warn(s.log.WithFields(ctx, map[string]any{"error_reason": reason, "error": msg}), "outbox row dead-lettered")

	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.deadLetters.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("dead-letter %s: %w", row.ID, err)
	}
	if err := s.store.MarkTerminalTx(tx, row.ID, cause, s.attempts); err != nil {
		return fmt.Errorf("retire %s: %w", row.ID, err)
	}
	s.metrics.IncDeadLettered(string(reason))
	return nil
}

// publish sends the row's payload and waits for the broker to acknowledge
// it. A missing publisher cannot heal on retry and is reported as such.
func (s *Service) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	ackCtx, cancel := context.WithTimeout(ctx, publishDeadline)
	defer cancel()
	res := pub.Publish(ackCtx, &gcppubsub.Message{
		Data:       row.Payload,
		Attributes: messageAttributes(row, resolved),
	})
	if res == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for topic %s returned no result", topic))
	}
	_, err := res.Get(ackCtx)
	return err
}

// messageAttributes lets subscribers filter without decoding the body. Audit
// rows also carry severity and action so high-severity adjustments can be
// routed to their own subscription.
func messageAttributes(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	env := resolved.Envelope
	attrs := make(map[string]string, 9)
	attrs["event_id"] = env.EventID
	attrs["event_type"] = string(row.EventType)
	attrs["aggregate_type"] = string(row.AggregateType)
	attrs["aggregate_id"] = row.AggregateID.String()
	attrs["created_at"] = row.CreatedAt.Format(time.RFC3339Nano)
	if env.Actor != nil {
		attrs["actor_id"] = env.Actor.UserID.String()
		if env.Actor.FranchiseID != nil {
			attrs["franchise_id"] = env.Actor.FranchiseID.String()
		}
	}
	if audit, ok := resolved.Payload.(*payloads.AuditRecordedEvent); ok {
		attrs["severity"] = audit.Severity
		attrs["action"] = string(audit.Action)
	}
	return attrs
}

// publisherFor returns the cached publisher for topic, creating it on first
// use. Nil publishers are not cached so a later batch can try again.
func (s *Service) publisherFor(topic string) publisher {
	pub, cached := s.publishers[topic]
	if !cached {
		if pub = s.publisherFactory(topic); pub != nil {
			s.publishers[topic] = pub
		}
	}
	return pub
}

// stopPublishers flushes buffered messages and empties the cache.
func (s *Service) stopPublishers() {
	for _, pub := range s.publishers {
		if flusher, ok := pub.(stopper); ok {
			flusher.Stop()
		}
	}
	clear(s.publishers)
}

// sleep waits d, stretched by up to pollJitter when d is non-zero so
// replicas do not poll in step.
func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	wake := time.After(d + time.Duration(s.jitter.Int63n(int64(pollJitter))))
	select {
	case <-wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// nextBackoff doubles prev, starting from base, and caps the result at max.
func nextBackoff(prev, base, max time.Duration) time.Duration {
	if prev <= 0 {
		prev = base
	}
	return min(2*prev, max)
}

// gcpPublisher adapts the Pub/Sub publisher to the relay's interfaces.
type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}

func (g gcpPublisher) Stop() {
	g.p.Stop()
}
