package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/reelforge-backend/pkg/db/dbtest"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
)

func TestServiceEmitWritesEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	runID := uuid.New()
	userID := uuid.New()
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventGenerationRequested,
			AggregateType: enums.AggregateWorkflowRun,
			AggregateID:   runID,
			Actor:         &ActorRef{UserID: userID},
			Data:          map[string]string{"run_id": runID.String()},
			Version:       1,
		})
	})
	require.NoError(t, err)

	rows, err := repo.FetchDue(conn, time.Now(), 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].NextAttemptAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, userID, envelope.Actor.UserID)
	assert.JSONEq(t, `{"run_id":"`+runID.String()+`"}`, string(envelope.Data))
}

func TestServiceEmitRejectsIncompleteEvents(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	cases := map[string]DomainEvent{
		"unknown type":      {EventType: "video_deleted", AggregateType: enums.AggregateVideo, AggregateID: uuid.New()},
		"unknown aggregate": {EventType: enums.EventRenderCompleted, AggregateType: "scene", AggregateID: uuid.New()},
		"missing aggregate": {EventType: enums.EventRenderCompleted, AggregateType: enums.AggregateVideo},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, svc.Emit(context.Background(), conn, event))
		})
	}

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	now := time.Now()

	published := insertEvent(t, conn, repo)
	retrying := insertEvent(t, conn, repo)
	terminal := insertEvent(t, conn, repo)

	require.NoError(t, repo.MarkPublishedTx(conn, published, now))
	require.NoError(t, repo.ScheduleRetryTx(conn, retrying, errors.New("pubsub unavailable"), now.Add(time.Minute)))
	require.NoError(t, repo.MarkTerminalTx(conn, terminal, errors.New("bad payload"), 3))

	rows, err := repo.FetchDue(conn, now, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows, "retry is not due yet")

	rows, err = repo.FetchDue(conn, now.Add(2*time.Minute), 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, retrying, rows[0].ID)
	assert.Equal(t, 1, rows[0].AttemptCount)
	assert.False(t, rows[0].Published())
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "pubsub unavailable", *rows[0].LastError)

	var sent models.OutboxEvent
	require.NoError(t, conn.First(&sent, "id = ?", published).Error)
	assert.True(t, sent.Published())
	assert.Equal(t, 1, sent.AttemptCount, "a first-try publish still counts as an attempt")
}

func TestRepositoryFetchDueHonoursLimitAndOrder(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		id := insertEvent(t, conn, repo)
		require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", id).
			Update("created_at", time.Now().Add(time.Duration(i-3)*time.Minute)).Error)
		ids = append(ids, id)
	}

	rows, err := repo.FetchDue(conn, time.Now(), 2, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ids[0], rows[0].ID)
	assert.Equal(t, ids[1], rows[1].ID)

	_, err = repo.FetchDue(nil, time.Now(), 2, 0)
	assert.Error(t, err)
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	old := insertEvent(t, conn, repo)
	fresh := insertEvent(t, conn, repo)
	pending := insertEvent(t, conn, repo)
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", old).
		Update("published_at", time.Now().Add(-48*time.Hour)).Error)
	require.NoError(t, repo.MarkPublishedTx(conn, fresh, time.Now()))

	deleted, err := repo.DeletePublishedBefore(context.Background(), nil, time.Now().Add(-24*time.Hour), 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Order("created_at").Find(&remaining).Error)
	ids := []uuid.UUID{}
	for _, row := range remaining {
		ids = append(ids, row.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{fresh, pending}, ids)

	// retention runs with minAttemptCount 1; a first-try publish must qualify
	deleted, err = repo.DeletePublishedBefore(context.Background(), nil, time.Now().Add(time.Hour), 1, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestRepositoryDeletePublishedBeforeHonoursLimit(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	oldest := insertEvent(t, conn, repo)
	older := insertEvent(t, conn, repo)
	old := insertEvent(t, conn, repo)
	for i, id := range []uuid.UUID{oldest, older, old} {
		require.NoError(t, repo.MarkPublishedTx(conn, id, time.Now().Add(-time.Duration(72-i)*time.Hour)))
	}

	deleted, err := repo.DeletePublishedBefore(context.Background(), nil, time.Now().Add(-24*time.Hour), 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, old, remaining[0].ID)
}

func TestDLQRepositoryInsertAndFind(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	eventID := uuid.New()
	long := strings.Repeat("é", 700)

	entry := models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventRenderCompleted,
		AggregateType: enums.AggregateVideo,
		AggregateID:   uuid.New(),
		Topic:         "reelforge-analytics",
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &long,
		FailedAt:      time.Now(),
	}
	require.NoError(t, dlq.InsertTx(conn, entry))
	require.NoError(t, dlq.InsertTx(conn, entry), "second insert for the same event is ignored")

	var count int64
	require.NoError(t, conn.Model(&models.OutboxDLQ{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	found, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "reelforge-analytics", found.Topic)
	require.NotNil(t, found.ErrorMessage)
	assert.Len(t, *found.ErrorMessage, maxDLQErrorLen)
	assert.True(t, utf8.ValidString(*found.ErrorMessage))

	missing, err := dlq.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"version":2,"eventId":"e-1","data":{"video_id":"v"}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, env.Version)
	assert.Equal(t, "e-1", env.EventID)

	_, err = DecodeEnvelope([]byte(`{"version":1,"eventId":"e-2","data":null}`))
	assert.ErrorIs(t, err, ErrEmptyData)

	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyData)
}

func insertEvent(t *testing.T, conn *gorm.DB, repo *Repository) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, repo.Insert(conn, models.OutboxEvent{
		ID:            id,
		EventType:     enums.EventGenerationRequested,
		AggregateType: enums.AggregateWorkflowRun,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"eventId":"x","data":{}}`),
	}))
	return id
}
