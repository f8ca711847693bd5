package cron

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/fabzclean/fabzclean-backend/pkg/db"
	"github.com/fabzclean/fabzclean-backend/pkg/db/dbtest"
	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox"
)

func TestOutboxRetentionPurgesOnlyOldDeliveredEvents(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-2 * 24 * time.Hour)

	insert := func(publishedAt *time.Time) uuid.UUID {
		event := models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventAuditRecorded,
			AggregateType: enums.AggregateAuditLog,
			AggregateID:   uuid.New(),
			Payload:       datatypes.JSON(`{}`),
			CreatedAt:     old,
			PublishedAt:   publishedAt,
		}
		require.NoError(t, conn.Create(&event).Error)
		return event.ID
	}
	oldDelivered := insert(&old)
	recentDelivered := insert(&recent)
	pending := insert(nil)

	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		DB:         db.NewFromConn(conn),
		Repository: outbox.NewRepository(conn),
	})
	require.NoError(t, err)
	job := jobIface.(*outboxRetentionJob)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	var remaining []uuid.UUID
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Pluck("id", &remaining).Error)
	require.ElementsMatch(t, []uuid.UUID{recentDelivered, pending}, remaining)
	require.NotContains(t, remaining, oldDelivered)
}

func TestNewOutboxRetentionJobValidates(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{})
	require.Error(t, err)
}
